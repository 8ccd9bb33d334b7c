package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itsneelabh/taskctl/core"
)

func TestMemoryStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewMemoryStore(0, nil)
	state := core.NewOrchestratorState("sess-1")
	state.TotalCostUSD = 1.23

	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Load(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TotalCostUSD != 1.23 {
		t.Fatalf("expected cost preserved, got %f", got.TotalCostUSD)
	}
}

func TestMemoryStoreLoadMissingReturnsNotFound(t *testing.T) {
	store := NewMemoryStore(0, nil)
	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreExpiresAfterTTL(t *testing.T) {
	store := NewMemoryStore(10*time.Millisecond, nil)
	state := core.NewOrchestratorState("sess-ttl")
	_ = store.Save(context.Background(), state)

	time.Sleep(20 * time.Millisecond)

	_, err := store.Load(context.Background(), "sess-ttl")
	if !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be not found, got %v", err)
	}
}

func TestMemoryStoreListExcludesExpired(t *testing.T) {
	store := NewMemoryStore(10*time.Millisecond, nil)
	_ = store.Save(context.Background(), core.NewOrchestratorState("a"))

	time.Sleep(20 * time.Millisecond)
	_ = store.Save(context.Background(), core.NewOrchestratorState("b"))

	ids, _ := store.List(context.Background())
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("expected only 'b' listed, got %v", ids)
	}
}

func TestReaperSweepRemovesExpired(t *testing.T) {
	store := NewMemoryStore(1*time.Millisecond, nil)
	_ = store.Save(context.Background(), core.NewOrchestratorState("sess-sweep"))
	time.Sleep(5 * time.Millisecond)

	reaper, err := NewReaper(store, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	removed := reaper.Sweep()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}
