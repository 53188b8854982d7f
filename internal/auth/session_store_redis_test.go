package auth

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	store, err := NewRedisSessionStore(client)
	if err != nil {
		t.Fatalf("NewRedisSessionStore() error: %v", err)
	}
	return store
}

func TestRedisSessionStoreEmptyLoad(t *testing.T) {
	store := newTestRedisStore(t)

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(state) != 0 {
		t.Fatalf("expected empty state, got %d entries", len(state))
	}
}

func TestRedisSessionStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)

	created := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	in := map[string]Session{
		"tok-1": {
			ID:        "s-1",
			Token:     "tok-1",
			Username:  "alice",
			Claims:    Claims{Admin: false},
			CreatedAt: created,
			ExpiresAt: created.Add(30 * time.Minute),
		},
		"tok-2": {
			ID:        "s-2",
			Token:     "tok-2",
			Username:  "root",
			Claims:    Claims{Admin: true},
			CreatedAt: created,
			ExpiresAt: created.Add(30 * time.Minute),
		},
	}

	if err := store.Save(in); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(out))
	}
	if out["tok-1"].Username != "alice" || out["tok-1"].Claims.Admin {
		t.Fatalf("unexpected session for tok-1: %+v", out["tok-1"])
	}
	if !out["tok-2"].Claims.Admin {
		t.Fatalf("expected admin claim to round-trip, got %+v", out["tok-2"])
	}
	if !out["tok-1"].ExpiresAt.Equal(created.Add(30 * time.Minute)) {
		t.Fatalf("expected expiry to round-trip, got %v", out["tok-1"].ExpiresAt)
	}
}

func TestRedisSessionStoreSaveOverwrites(t *testing.T) {
	store := newTestRedisStore(t)

	session := Session{ID: "s-1", Token: "tok-1", Username: "alice"}
	if err := store.Save(map[string]Session{"tok-1": session}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.Save(map[string]Session{}); err != nil {
		t.Fatalf("Save() empty error: %v", err)
	}

	out, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected overwrite to clear state, got %d entries", len(out))
	}
}
