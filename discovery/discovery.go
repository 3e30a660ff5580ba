// Package discovery enumerates attached and networked printers and feeds
// them to the profile store.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
)

// DefaultCacheTTL is how long a scan result is reused.
const DefaultCacheTTL = 30 * time.Second

// DefaultTimeout bounds one scan of all sources.
const DefaultTimeout = 3 * time.Second

// Source finds printers of one kind.
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]profile.PrinterInfo, error)
}

// Sink receives every fresh scan result.
type Sink interface {
	SetDiscovered(printers []profile.PrinterInfo)
}

// Options tunes a Discovery.
type Options struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Discovery scans its sources in parallel and caches the merged result.
type Discovery struct {
	sources  []Source
	sink     Sink
	timeout  time.Duration
	cacheTTL time.Duration
	logger   *zap.Logger

	mu          sync.RWMutex
	cache       []profile.PrinterInfo
	lastRefresh time.Time
}

// New creates a discovery service. sink may be nil.
func New(sources []Source, sink Sink, opts Options, logger *zap.Logger) *Discovery {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &Discovery{
		sources:  sources,
		sink:     sink,
		timeout:  opts.Timeout,
		cacheTTL: opts.CacheTTL,
		logger:   logger.Named("discovery"),
	}
}

// Printers returns cached printers or scans again when the cache is stale.
// If every source fails the stale cache is returned with the error.
func (d *Discovery) Printers(ctx context.Context, forceRefresh bool) ([]profile.PrinterInfo, error) {
	d.mu.RLock()
	if d.fresh(forceRefresh) {
		result := append([]profile.PrinterInfo(nil), d.cache...)
		d.mu.RUnlock()
		return result, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if d.fresh(forceRefresh) {
		return append([]profile.PrinterInfo(nil), d.cache...), nil
	}

	printers, err := d.scan(ctx)
	if err != nil {
		return append([]profile.PrinterInfo(nil), d.cache...), err
	}

	d.cache = printers
	d.lastRefresh = time.Now()
	if d.sink != nil {
		d.sink.SetDiscovered(printers)
	}

	return append([]profile.PrinterInfo(nil), printers...), nil
}

func (d *Discovery) fresh(forceRefresh bool) bool {
	return !forceRefresh && d.cache != nil && time.Since(d.lastRefresh) < d.cacheTTL
}

// scan queries all sources concurrently. A failing source is logged and
// skipped; the scan fails only when all of them do.
func (d *Discovery) scan(ctx context.Context) ([]profile.PrinterInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	results := make([][]profile.PrinterInfo, len(d.sources))
	errs := make([]error, len(d.sources))

	var g errgroup.Group
	for i, src := range d.sources {
		g.Go(func() error {
			found, err := src.Discover(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				d.logger.Warn("source failed", zap.String("source", src.Name()), zap.Error(err))
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if len(d.sources) > 0 && failed == len(d.sources) {
		return nil, errors.Join(errs...)
	}

	seen := make(map[string]bool)
	printers := make([]profile.PrinterInfo, 0)
	for _, found := range results {
		for _, p := range found {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			printers = append(printers, p)
		}
	}
	sort.Slice(printers, func(i, j int) bool {
		if printers[i].Type != printers[j].Type {
			return printers[i].Type < printers[j].Type
		}
		return printers[i].ID < printers[j].ID
	})

	d.logger.Info("scan complete", zap.Int("printers", len(printers)), zap.Int("failed_sources", failed))
	return printers, nil
}

// LogStartupDiagnostics scans once and logs what was found.
func (d *Discovery) LogStartupDiagnostics(ctx context.Context) {
	printers, err := d.Printers(ctx, true)
	if err != nil {
		d.logger.Warn("error enumerating printers", zap.Error(err))
		return
	}

	if len(printers) == 0 {
		d.logger.Warn("no printers detected")
		return
	}
	for _, p := range printers {
		d.logger.Info("printer detected",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
			zap.String("type", string(p.Type)),
			zap.String("address", p.Address),
		)
	}
}
