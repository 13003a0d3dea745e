package publish

import (
	"context"
	"fmt"
	"sync"
)

// Memory records published events for inspection.
type Memory struct {
	mu     sync.RWMutex
	events []any
}

// NewMemory returns an empty memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the event and returns a pseudo ID.
func (m *Memory) Publish(_ context.Context, event any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return fmt.Sprintf("memory-%d", len(m.events)), nil
}

// Events returns the recorded events in publish order.
func (m *Memory) Events() []any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]any, len(m.events))
	copy(out, m.events)
	return out
}
