// Package printer resolves which transports to try for the active printer
// and runs print jobs against them.
package printer

import (
	"slices"
	"strings"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

// Candidate is one transport attempt for a job.
type Candidate struct {
	Kind    transport.Kind
	Address string
}

// Resolve lists the candidates for p in the order they are tried.
//
// Each kind gets at most one address: the profile's printer, then the
// profile's extra endpoints, then discovered printers with the same ID or
// name. The preferred kind goes first when it has an address; the others
// follow in transport.Priority order. Kinds without an address are left
// out.
func Resolve(p *profile.Profile, discovered []profile.PrinterInfo, preferred transport.Kind) ([]Candidate, error) {
	if p == nil {
		return nil, &printerr.ConfigError{Code: printerr.NoPrinterConfigured}
	}

	addrs := make(map[transport.Kind]string, len(transport.Priority))
	add := func(k transport.Kind, addr string) {
		addr = strings.TrimSpace(addr)
		if !k.Valid() || addr == "" || addrs[k] != "" {
			return
		}
		addrs[k] = addr
	}

	add(p.Printer.Type, p.Printer.Address)
	for _, k := range transport.Priority {
		add(k, p.Endpoints[k])
	}
	for _, d := range discovered {
		if samePrinter(p.Printer, d) {
			add(d.Type, d.Address)
		}
	}

	order := transport.Priority
	if addrs[preferred] != "" {
		order = append([]transport.Kind{preferred}, slices.DeleteFunc(slices.Clone(order), func(k transport.Kind) bool {
			return k == preferred
		})...)
	}

	candidates := make([]Candidate, 0, len(addrs))
	for _, k := range order {
		if addr := addrs[k]; addr != "" {
			candidates = append(candidates, Candidate{Kind: k, Address: addr})
		}
	}
	if len(candidates) == 0 {
		return nil, &printerr.ConfigError{
			Code:   printerr.NoPrinterConfigured,
			Detail: "profile has no usable address",
		}
	}
	return candidates, nil
}

func samePrinter(a, b profile.PrinterInfo) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	return a.Name != "" && strings.EqualFold(a.Name, b.Name)
}
