package store

import (
	"context"
	"sync"

	"github.com/ianarundale/lead-from-here/internal/engine"
)

// Memory keeps the aggregate in process memory. Suits the single-instance
// deployment where one process owns all mutations.
type Memory struct {
	defaults func() engine.State

	mu    sync.RWMutex
	state *engine.State
}

func NewMemory(defaults func() engine.State) *Memory {
	return &Memory{defaults: defaults}
}

func (m *Memory) Load(_ context.Context) (engine.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		s := m.defaults()
		m.state = &s
	}
	return m.state.Clone(), nil
}

func (m *Memory) Save(_ context.Context, s engine.State) error {
	snap := s.Clone()
	m.mu.Lock()
	m.state = &snap
	m.mu.Unlock()
	return nil
}
