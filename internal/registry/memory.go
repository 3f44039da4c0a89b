package registry

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process registry for the long-lived-server deployment.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Register(_ context.Context, connectionID, userID string) error {
	m.mu.Lock()
	m.entries[connectionID] = Entry{
		ConnectionID: connectionID,
		UserID:       userID,
		ConnectedAt:  time.Now(),
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) UpdateUserID(_ context.Context, connectionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[connectionID]
	if !ok {
		return nil
	}
	e.UserID = userID
	m.entries[connectionID] = e
	return nil
}

func (m *Memory) Unregister(_ context.Context, connectionID string) error {
	m.mu.Lock()
	delete(m.entries, connectionID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListAll(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) CountDistinctUsers(ctx context.Context) (int, error) {
	entries, err := m.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return countDistinct(entries), nil
}
