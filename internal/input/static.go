package input

import "sync"

// Static is a Source returning a demand set by the caller. It is useful for
// scripted flights and tests.
type Static struct {
	mu      sync.Mutex
	demand  Demand
	lastErr error
}

// NewStatic returns a source that always reports d.
func NewStatic(d Demand) *Static {
	return &Static{demand: d}
}

// Set replaces the reported demand.
func (s *Static) Set(d Demand) {
	s.mu.Lock()
	s.demand = d
	s.mu.Unlock()
}

func (s *Static) Poll() (Demand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demand, nil
}

func (s *Static) Error(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// LastError returns the error passed to the last Error call.
func (s *Static) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
