package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

// Keys of the persisted profile file.
const (
	KeyPrinterID        = "printer.id"
	KeyPrinterName      = "printer.name"
	KeyPrinterAddress   = "printer.address"
	KeyPrinterModel     = "printer.model"
	KeyPrinterType      = "printer.type"
	KeyPrinterEndpoints = "printer.endpoints"
	KeyPaperWidth       = "paper_width"
	KeyLineSpacing      = "line_spacing"
	KeyConnectTimeoutMs = "connect_timeout_ms"
)

// ViperStore persists the active profile as a key-value file. Discovered
// printers are kept in memory only.
type ViperStore struct {
	mu         sync.RWMutex
	v          *viper.Viper
	path       string
	logger     *zap.Logger
	discovered []PrinterInfo
}

// NewViperStore opens the profile file at path. A missing file means no
// printer has been selected yet.
func NewViperStore(path string, logger *zap.Logger) (*ViperStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	v.SetDefault(KeyPaperWidth, int(escpos.Width58mm))
	v.SetDefault(KeyLineSpacing, 0)
	v.SetDefault(KeyConnectTimeoutMs, DefaultConnectTimeout.Milliseconds())

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading profile file: %w", err)
		}
	}

	return &ViperStore{
		v:      v,
		path:   path,
		logger: logger.Named("profile"),
	}, nil
}

// ActiveProfile reads the stored profile. An incomplete or invalid file
// reports no profile.
func (s *ViperStore) ActiveProfile() (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.v.GetString(KeyPrinterType) == "" {
		return nil, false
	}

	kind, _ := transport.ParseKind(s.v.GetString(KeyPrinterType))
	p := &Profile{
		Printer: PrinterInfo{
			ID:      s.v.GetString(KeyPrinterID),
			Name:    s.v.GetString(KeyPrinterName),
			Address: s.v.GetString(KeyPrinterAddress),
			Model:   s.v.GetString(KeyPrinterModel),
			Type:    kind,
		},
		PaperWidth:     escpos.Width(s.v.GetInt(KeyPaperWidth)),
		LineSpacing:    s.v.GetInt(KeyLineSpacing),
		ConnectTimeout: time.Duration(s.v.GetInt64(KeyConnectTimeoutMs)) * time.Millisecond,
	}

	for k, addr := range s.v.GetStringMapString(KeyPrinterEndpoints) {
		kind, ok := transport.ParseKind(k)
		if !ok || addr == "" {
			continue
		}
		if p.Endpoints == nil {
			p.Endpoints = make(map[transport.Kind]string)
		}
		p.Endpoints[kind] = addr
	}

	if err := p.Validate(); err != nil {
		s.logger.Warn("ignoring stored profile", zap.String("path", s.path), zap.Error(err))
		return nil, false
	}
	return p, true
}

// Select validates p, makes it active and writes it to disk.
func (s *ViperStore) Select(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	endpoints := make(map[string]string, len(p.Endpoints))
	for k, addr := range p.Endpoints {
		endpoints[string(k)] = addr
	}

	s.v.Set(KeyPrinterID, p.Printer.ID)
	s.v.Set(KeyPrinterName, p.Printer.Name)
	s.v.Set(KeyPrinterAddress, p.Printer.Address)
	s.v.Set(KeyPrinterModel, p.Printer.Model)
	s.v.Set(KeyPrinterType, string(p.Printer.Type))
	s.v.Set(KeyPrinterEndpoints, endpoints)
	s.v.Set(KeyPaperWidth, int(p.PaperWidth))
	s.v.Set(KeyLineSpacing, p.LineSpacing)
	s.v.Set(KeyConnectTimeoutMs, p.Timeout().Milliseconds())

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	s.logger.Info("printer selected",
		zap.String("id", p.Printer.ID),
		zap.String("type", string(p.Printer.Type)),
		zap.String("address", p.Printer.Address),
		zap.Int("paper_width", int(p.PaperWidth)),
	)
	return nil
}

// DiscoveredPrinters returns a copy of the last discovery result.
func (s *ViperStore) DiscoveredPrinters() []PrinterInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.discovered)
}

// SetDiscovered replaces the discovery result.
func (s *ViperStore) SetDiscovered(printers []PrinterInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered = slices.Clone(printers)
}
