package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/itsneelabh/taskctl/core"
)

// FileStore persists OrchestratorState as one JSON file per session under
// Dir, for single-node deployments that want state to survive a process
// restart (not just an in-memory crash).
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger core.Logger
}

// NewFileStore returns a FileStore rooted at dir, creating it if necessary.
func NewFileStore(dir string, logger core.Logger) (*FileStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewFrameworkError("session.NewFileStore", "io", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (f *FileStore) path(sessionID string) string {
	return filepath.Join(f.dir, core.SanitizeAgentName(sessionID)+".json")
}

func (f *FileStore) Save(ctx context.Context, state *core.OrchestratorState) error {
	if state.SessionID == "" {
		return core.NewFrameworkError("session.Save", "invalid", core.ErrInvalidConfiguration)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return core.NewFrameworkError("session.Save", "serialization", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path(state.SessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.NewFrameworkError("session.Save", "io", err)
	}
	if err := os.Rename(tmp, f.path(state.SessionID)); err != nil {
		return core.NewFrameworkError("session.Save", "io", err)
	}

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("taskctl.session.operations", "op", "save")
	}
	return nil
}

func (f *FileStore) Load(ctx context.Context, sessionID string) (*core.OrchestratorState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(sessionID))
	if os.IsNotExist(err) {
		return nil, core.NewFrameworkError("session.Load", "not_found", core.ErrSessionNotFound)
	}
	if err != nil {
		return nil, core.NewFrameworkError("session.Load", "io", err)
	}

	var state core.OrchestratorState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, core.NewFrameworkError("session.Load", "serialization", err)
	}
	return &state, nil
}

func (f *FileStore) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return core.NewFrameworkError("session.Delete", "io", err)
	}
	return nil
}

func (f *FileStore) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, core.NewFrameworkError("session.List", "io", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		ids = append(ids, e.Name()[:len(e.Name())-len(".json")])
	}
	return ids, nil
}
