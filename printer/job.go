package printer

import (
	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

// Job is one print request. It is consumed by a single Submit.
type Job struct {
	// ID is assigned by Submit when empty.
	ID      string
	Payload []escpos.Block
	// Preferred is tried first when the printer has an address for it.
	// Empty means no preference.
	Preferred transport.Kind
}

// TextJob builds a job printing text split on newlines.
func TextJob(text string, preferred transport.Kind) Job {
	return Job{
		Payload:   []escpos.Block{escpos.Text{Lines: escpos.PlainLines(text)}},
		Preferred: preferred,
	}
}

// BarcodeJob builds a job printing a single barcode.
func BarcodeJob(b escpos.Barcode, preferred transport.Kind) Job {
	return Job{
		Payload:   []escpos.Block{b},
		Preferred: preferred,
	}
}

// Result is the outcome of a job.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Transport is the kind that printed the job, or the last one tried
	// on failure.
	Transport transport.Kind `json:"transport,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
}
