package discovery

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

// DefaultServices are the DNS-SD types advertised by raw socket printers.
var DefaultServices = []string{"_pdl-datastream._tcp"}

// LANSource browses DNS-SD for network printers until the scan context
// ends.
type LANSource struct {
	services []string
	domain   string
	logger   *zap.Logger
}

func NewLANSource(logger *zap.Logger, services ...string) *LANSource {
	if len(services) == 0 {
		services = DefaultServices
	}
	return &LANSource{
		services: services,
		domain:   "local.",
		logger:   logger.Named("lan"),
	}
}

func (s *LANSource) Name() string { return "lan" }

func (s *LANSource) Discover(ctx context.Context) ([]profile.PrinterInfo, error) {
	results := make([][]profile.PrinterInfo, len(s.services))

	g, ctx := errgroup.WithContext(ctx)
	for i, svc := range s.services {
		g.Go(func() error {
			found, err := s.browse(ctx, svc)
			results[i] = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var printers []profile.PrinterInfo
	for _, found := range results {
		printers = append(printers, found...)
	}
	return printers, nil
}

// browse collects entries for one service type. zeroconf closes the
// channel once ctx is done.
func (s *LANSource) browse(ctx context.Context, service string) ([]profile.PrinterInfo, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	s.logger.Debug("mDNS browse start", zap.String("service", service))
	if err := resolver.Browse(ctx, service, s.domain, entries); err != nil {
		return nil, err
	}

	var printers []profile.PrinterInfo
	for e := range entries {
		if p, ok := lanPrinterInfo(e); ok {
			printers = append(printers, p)
		}
	}
	return printers, nil
}

// lanPrinterInfo converts one DNS-SD answer. Entries without an address
// are skipped.
func lanPrinterInfo(e *zeroconf.ServiceEntry) (profile.PrinterInfo, bool) {
	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return profile.PrinterInfo{}, false
	}

	port := e.Port
	if port == 0 {
		port, _ = strconv.Atoi(transport.DefaultPort)
	}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))

	txt := parseTXT(e.Text)
	model := txt["ty"]
	if model == "" {
		model = strings.Trim(txt["product"], "()")
	}

	name := e.Instance
	if name == "" {
		name = strings.TrimSuffix(e.HostName, ".")
	}

	return profile.PrinterInfo{
		ID:      "lan:" + addr,
		Name:    name,
		Address: addr,
		Model:   model,
		Type:    transport.LAN,
	}, true
}

// parseTXT splits key=value TXT records. Keys are lower-cased.
func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out[k] = v
		}
	}
	return out
}
