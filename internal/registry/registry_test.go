package registry

import (
	"sync"
	"testing"
)

func TestMemoryAddRemove(t *testing.T) {
	registry := NewMemory()

	registry.AddStreamer("abc123")
	if !registry.Contains("abc123") {
		t.Fatalf("expected abc123 to be registered")
	}
	if registry.Len() != 1 {
		t.Fatalf("Len = %d, want 1", registry.Len())
	}

	registry.AddStreamer("abc123")
	if registry.Len() != 1 {
		t.Fatalf("duplicate add must be a no-op, Len = %d", registry.Len())
	}

	registry.RemoveStreamer("abc123")
	if registry.Contains("abc123") {
		t.Fatalf("expected abc123 to be removed")
	}

	registry.RemoveStreamer("never-added")
	if registry.Len() != 0 {
		t.Fatalf("removing an unknown channel must be a no-op")
	}
}

func TestMemoryListSorted(t *testing.T) {
	registry := NewMemory()
	registry.AddStreamer("charlie")
	registry.AddStreamer("alpha")
	registry.AddStreamer("bravo")

	got := registry.List()
	want := []string{"alpha", "bravo", "charlie"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List = %v, want %v", got, want)
		}
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	registry := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			registry.AddStreamer("abc123")
		}()
		go func() {
			defer wg.Done()
			registry.RemoveStreamer("abc123")
		}()
	}
	wg.Wait()
}
