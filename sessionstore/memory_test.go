package sessionstore

import (
	"context"
	"testing"
	"time"
)

func TestMemory_getSetRemove(t *testing.T) {
	t.Parallel()

	m := NewMemory()

	if _, ok := m.Get("k"); ok {
		t.Error("Get() ok = true on empty store, want false")
	}

	if err := m.Set("k", "v1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, ok := m.Get("k"); !ok || got != "v1" {
		t.Errorf("Get() = %q, %v, want %q, true", got, ok, "v1")
	}

	if err := m.Remove("k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := m.Get("k"); ok {
		t.Error("Get() ok = true after Remove(), want false")
	}

	// removing an absent key is a no-op
	if err := m.Remove("k"); err != nil {
		t.Fatalf("Remove() of absent key error = %v", err)
	}
}

func TestMemory_watch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory()
	ch, err := m.Watch(ctx, "session")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := m.Set("other", "x"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Set("session", "payload"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	select {
	case change := <-ch:
		want := Change{Key: "session", Value: "payload"}
		if change != want {
			t.Errorf("change = %+v, want %+v", change, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered for watched key")
	}

	if err := m.Remove("session"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	select {
	case change := <-ch:
		want := Change{Key: "session", Removed: true}
		if change != want {
			t.Errorf("change = %+v, want %+v", change, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered for removal")
	}

	// changes to other keys never arrive
	select {
	case change := <-ch:
		t.Errorf("unexpected change delivered: %+v", change)
	default:
	}
}

func TestMemory_watchCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	m := NewMemory()
	if _, err := m.Watch(ctx, "session"); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	// the watcher list drains once the context is done
	deadline := time.Now().Add(time.Second)
	for {
		m.mu.RLock()
		n := len(m.watchers["session"])
		m.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher not released after context cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
