// Package session persists OrchestratorState across process restarts
// (§4.7), grounded on the teacher's core.MemoryStore (TTL-keyed
// sync.RWMutex map) generalized from capability memory to run state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/itsneelabh/taskctl/core"
)

// Store persists and retrieves OrchestratorState by session ID.
type Store interface {
	Save(ctx context.Context, state *core.OrchestratorState) error
	Load(ctx context.Context, sessionID string) (*core.OrchestratorState, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

type entry struct {
	state     *core.OrchestratorState
	expiresAt time.Time
}

// MemoryStore is an in-process Store with TTL-based expiry, default backend
// per SPEC_FULL.md's session.backend=memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	logger  core.Logger
}

// NewMemoryStore returns a MemoryStore evicting sessions ttl after their
// last Save (0 disables expiry).
func NewMemoryStore(ttl time.Duration, logger core.Logger) *MemoryStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &MemoryStore{entries: make(map[string]entry), ttl: ttl, logger: logger}
}

func (m *MemoryStore) Save(ctx context.Context, state *core.OrchestratorState) error {
	if state.SessionID == "" {
		return core.NewFrameworkError("session.Save", "invalid", core.ErrInvalidConfiguration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if m.ttl > 0 {
		expiresAt = time.Now().Add(m.ttl)
	}

	clone := *state
	m.entries[state.SessionID] = entry{state: &clone, expiresAt: expiresAt}

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("taskctl.session.operations", "op", "save")
	}
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*core.OrchestratorState, error) {
	m.mu.RLock()
	e, ok := m.entries[sessionID]
	m.mu.RUnlock()

	if !ok {
		return nil, core.NewFrameworkError("session.Load", "not_found", core.ErrSessionNotFound)
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, sessionID)
		m.mu.Unlock()
		return nil, core.NewFrameworkError("session.Load", "not_found", core.ErrSessionNotFound)
	}

	clone := *e.state
	return &clone, nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.entries))
	now := time.Now()
	for id, e := range m.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// sweepExpired removes every entry past its TTL; called by the Reaper on a
// cron schedule rather than a background ticker goroutine, per SPEC_FULL's
// "session-GC lazy+cron-reaper" resolution.
func (m *MemoryStore) sweepExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}
