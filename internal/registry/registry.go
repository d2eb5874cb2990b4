// Package registry tracks the set of channels currently registered as live
// so process-wide dispatch logic can consult it. The lifecycle coordinator
// only notifies the registry; it never reads it.
package registry

import (
	"sort"
	"sync"
)

// Memory is an in-process active-streamer registry safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	streamers map[string]struct{}
}

// NewMemory constructs an empty registry.
func NewMemory() *Memory {
	return &Memory{streamers: make(map[string]struct{})}
}

// AddStreamer records a channel as live. Adding an already-registered
// channel is a no-op.
func (m *Memory) AddStreamer(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamers[channelID] = struct{}{}
}

// RemoveStreamer removes a channel from the live set. Removing an unknown
// channel is a no-op.
func (m *Memory) RemoveStreamer(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streamers, channelID)
}

// Contains reports whether a channel is currently registered.
func (m *Memory) Contains(channelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.streamers[channelID]
	return ok
}

// List returns the registered channel IDs in sorted order.
func (m *Memory) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.streamers))
	for id := range m.streamers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered channels.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streamers)
}

// Noop discards all notifications. It stands in when no dispatch logic is
// wired, e.g. in tests.
type Noop struct{}

func (Noop) AddStreamer(channelID string)    {}
func (Noop) RemoveStreamer(channelID string) {}
