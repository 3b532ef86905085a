package redisclient

import (
	"context"
	"errors"
	"testing"
)

// fakeLease emulates the compare-and-delete release semantics: the key is
// removed only while it still carries the releasing holder's token.
type fakeLease struct {
	store    map[string]string
	released int
}

func (f *fakeLease) release(ctx context.Context, key, token string) error {
	f.released++
	if f.store[key] == token {
		delete(f.store, key)
	}
	return nil
}

func TestLockReleaseIdempotent(t *testing.T) {
	lease := &fakeLease{store: map[string]string{"lock:slot:a": "tok-1"}}
	lock := &Lock{key: "lock:slot:a", token: "tok-1", release: lease.release}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if _, held := lease.store["lock:slot:a"]; held {
		t.Errorf("lock still held after release")
	}

	// Releasing again finds no matching token and stays a no-op.
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if lease.released != 2 {
		t.Errorf("release func called %d times, want 2", lease.released)
	}
}

func TestLockReleaseAfterExpiry(t *testing.T) {
	// The lock expired and another holder re-acquired the key with a new
	// token. The stale holder's release must leave the new lease alone.
	lease := &fakeLease{store: map[string]string{"lock:slot:a": "tok-2"}}
	stale := &Lock{key: "lock:slot:a", token: "tok-1", release: lease.release}

	if err := stale.Release(context.Background()); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if lease.store["lock:slot:a"] != "tok-2" {
		t.Errorf("stale release evicted the new holder's lease")
	}
}

func TestLockReleaseWithoutBackend(t *testing.T) {
	// A zero-value handle carries no release func and releases as a no-op.
	var lock Lock
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release without backend: %v", err)
	}
}

func TestLockReleasePropagatesBackendError(t *testing.T) {
	wantErr := errors.New("connection reset")
	lock := &Lock{
		key:   "lock:slot:a",
		token: "tok-1",
		release: func(ctx context.Context, key, token string) error {
			return wantErr
		},
	}

	if err := lock.Release(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want the backend error", err)
	}
}
