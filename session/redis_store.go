package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/itsneelabh/taskctl/core"
)

// RedisStore implements Store over Redis for multi-worker deployments,
// grounded on the teacher's orchestration.RedisTaskStore key-prefix/TTL
// conventions, generalized from task hashes to session state.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger core.Logger
}

// RedisStoreConfig configures RedisStore.
type RedisStoreConfig struct {
	KeyPrefix string        // default "taskctl:sessions"
	TTL       time.Duration // default 24h
}

// DefaultRedisStoreConfig returns the default RedisStoreConfig.
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{KeyPrefix: "taskctl:sessions", TTL: 24 * time.Hour}
}

// NewRedisStore returns a RedisStore using an already-connected client.
func NewRedisStore(client *redis.Client, config *RedisStoreConfig, logger core.Logger) *RedisStore {
	if config == nil {
		defaultConfig := DefaultRedisStoreConfig()
		config = &defaultConfig
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "taskctl:sessions"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisStore{client: client, prefix: config.KeyPrefix, ttl: config.TTL, logger: logger}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + ":session:" + sessionID
}

func (r *RedisStore) Save(ctx context.Context, state *core.OrchestratorState) error {
	if state.SessionID == "" {
		return core.NewFrameworkError("session.RedisStore.Save", "invalid", core.ErrInvalidConfiguration)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return core.NewFrameworkError("session.RedisStore.Save", "serialization", err)
	}

	if err := r.client.Set(ctx, r.key(state.SessionID), data, r.ttl).Err(); err != nil {
		r.logger.Error("session redis save failed", map[string]interface{}{"session_id": state.SessionID, "error": err.Error()})
		return core.NewFrameworkError("session.RedisStore.Save", "io", err)
	}

	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("taskctl.session.operations", "op", "save")
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) (*core.OrchestratorState, error) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, core.NewFrameworkError("session.RedisStore.Load", "not_found", core.ErrSessionNotFound)
	}
	if err != nil {
		return nil, core.NewFrameworkError("session.RedisStore.Load", "io", err)
	}

	var state core.OrchestratorState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, core.NewFrameworkError("session.RedisStore.Load", "serialization", err)
	}
	return &state, nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return core.NewFrameworkError("session.RedisStore.Delete", "io", err)
	}
	return nil
}

// List is not efficiently supportable over Redis without key scanning every
// session namespace; callers needing enumeration should use MemoryStore or
// FileStore, or track session IDs in a separate index.
func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	pattern := r.prefix + ":session:*"
	var ids []string
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, core.NewFrameworkError("session.RedisStore.List", "io", err)
		}
		prefixLen := len(r.prefix) + len(":session:")
		for _, k := range keys {
			ids = append(ids, k[prefixLen:])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}
