// Package checkpoint persists orchestrator state between tasks for crash
// recovery (spec.md §4.15). File-backed by default, write-then-rename for
// atomicity, matching session.FileStore's durability idiom.
package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/itsneelabh/taskctl/core"
)

// Snapshot is the unit written on each checkpoint: the run's state plus the
// last N task results, per §4.15.
type Snapshot struct {
	State       *core.OrchestratorState      `json:"state"`
	LastResults []core.TaskExecutionResult   `json:"last_results"`
}

// Store persists and retrieves Snapshots keyed by run ID.
type Store interface {
	Write(ctx context.Context, runID string, snapshot Snapshot) error
	Read(ctx context.Context, runID string) (*Snapshot, error)
	Delete(ctx context.Context, runID string) error
}

// Manager wraps a Store with the last-N-results ring buffer and the
// discard-corrupted-checkpoint-with-a-warning policy from §4.15.
type Manager struct {
	store      Store
	logger     core.Logger
	keepLastN  int
	mu         sync.Mutex
	lastResults []core.TaskExecutionResult
}

// NewManager returns a Manager retaining the last keepLastN task results in
// each checkpoint (0 means unbounded).
func NewManager(store Store, keepLastN int, logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{store: store, keepLastN: keepLastN, logger: logger}
}

// Checkpoint serializes state and result after a task boundary (success or
// failure, per §4.15 — callers checkpoint unconditionally).
func (m *Manager) Checkpoint(ctx context.Context, runID string, state *core.OrchestratorState, result core.TaskExecutionResult) error {
	m.mu.Lock()
	m.lastResults = append(m.lastResults, result)
	if m.keepLastN > 0 && len(m.lastResults) > m.keepLastN {
		m.lastResults = m.lastResults[len(m.lastResults)-m.keepLastN:]
	}
	snapshot := Snapshot{State: state, LastResults: append([]core.TaskExecutionResult(nil), m.lastResults...)}
	m.mu.Unlock()

	if err := m.store.Write(ctx, runID, snapshot); err != nil {
		m.logger.Error("checkpoint write failed", map[string]interface{}{"run_id": runID, "error": err.Error()})
		return err
	}

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("taskctl.checkpoint.writes", "run_id", runID)
	}
	return nil
}

// Resume loads the checkpoint for runID, if any. A missing or corrupted
// checkpoint is not an error: it is logged and nil is returned so the
// orchestrator starts fresh, per §4.15's "discarded with a warning" policy.
func (m *Manager) Resume(ctx context.Context, runID string) *Snapshot {
	snapshot, err := m.store.Read(ctx, runID)
	if err != nil {
		if !core.IsNotFound(err) {
			m.logger.Warn("discarding corrupted checkpoint", map[string]interface{}{"run_id": runID, "error": err.Error()})
		}
		return nil
	}

	m.mu.Lock()
	m.lastResults = append([]core.TaskExecutionResult(nil), snapshot.LastResults...)
	m.mu.Unlock()

	return snapshot
}

// Clear removes the checkpoint for runID, called on successful run
// completion so a future run with the same id starts fresh.
func (m *Manager) Clear(ctx context.Context, runID string) error {
	return m.store.Delete(ctx, runID)
}

// FileStore is the default file-backed checkpoint Store.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewFrameworkError("checkpoint.NewFileStore", "io", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(runID string) string {
	return filepath.Join(f.dir, core.SanitizeAgentName(runID)+".checkpoint.json")
}

func (f *FileStore) Write(ctx context.Context, runID string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return core.NewFrameworkError("checkpoint.Write", "serialization", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path(runID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.NewFrameworkError("checkpoint.Write", "io", err)
	}
	return os.Rename(tmp, f.path(runID))
}

func (f *FileStore) Read(ctx context.Context, runID string) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(runID))
	if os.IsNotExist(err) {
		return nil, core.NewFrameworkError("checkpoint.Read", "not_found", core.ErrSessionNotFound)
	}
	if err != nil {
		return nil, core.NewFrameworkError("checkpoint.Read", "io", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, core.NewFrameworkError("checkpoint.Read", "serialization", err)
	}
	return &snapshot, nil
}

func (f *FileStore) Delete(ctx context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(runID)); err != nil && !os.IsNotExist(err) {
		return core.NewFrameworkError("checkpoint.Delete", "io", err)
	}
	return nil
}
