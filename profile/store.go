package profile

import (
	"slices"
	"sync"
)

// Store supplies the active profile and the printers found by discovery.
type Store interface {
	ActiveProfile() (*Profile, bool)
	DiscoveredPrinters() []PrinterInfo
}

// MutableStore is a Store that can change the selection and accept
// discovery results.
type MutableStore interface {
	Store
	Select(p Profile) error
	SetDiscovered(printers []PrinterInfo)
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	active     *Profile
	discovered []PrinterInfo
}

// NewMemoryStore creates a store, optionally with an active profile.
func NewMemoryStore(active *Profile) *MemoryStore {
	s := &MemoryStore{}
	if active != nil {
		s.active = active.Clone()
	}
	return s
}

// ActiveProfile returns a copy of the selected profile.
func (s *MemoryStore) ActiveProfile() (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return nil, false
	}
	return s.active.Clone(), true
}

// Select validates and activates p.
func (s *MemoryStore) Select(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = p.Clone()
	return nil
}

// DiscoveredPrinters returns a copy of the last discovery result.
func (s *MemoryStore) DiscoveredPrinters() []PrinterInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.discovered)
}

// SetDiscovered replaces the discovery result.
func (s *MemoryStore) SetDiscovered(printers []PrinterInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered = slices.Clone(printers)
}
