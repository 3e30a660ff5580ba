package printer

import "github.com/nixxel-company-limited/escpos-print-bridge/transport"

// State is the phase of one candidate attempt.
//
//	Idle -> Connecting -> Connected -> Sending -> Closing -> Done
//	Connecting -> Failed (open failed or timed out)
//	Sending -> Sending (retried write)
//	Closing -> Failed (write retries exhausted)
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Sending
	Closing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Sending:
		return "sending"
	case Closing:
		return "closing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateObserver is told about every state change of every attempt. It runs
// on the printer's worker goroutine and must not block.
type StateObserver func(jobID string, kind transport.Kind, state State)
