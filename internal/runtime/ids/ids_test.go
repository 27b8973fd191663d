package ids

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewIdentityIsValidULID(t *testing.T) {
	const total = 100
	identities := make([]string, total)
	for i := 0; i < total; i++ {
		identities[i] = NewIdentity()
	}

	for _, id := range identities {
		if len(id) != 26 {
			t.Fatalf("expected identity length 26, got %d", len(id))
		}
		if _, err := ulid.Parse(id); err != nil {
			t.Fatalf("expected valid ULID, got %v", err)
		}
	}

	for i := 1; i < total; i++ {
		if identities[i-1] >= identities[i] {
			t.Fatalf("expected identities to be strictly increasing, %s >= %s", identities[i-1], identities[i])
		}
	}
}

func TestNewIdentityConcurrentUniqueness(t *testing.T) {
	const goroutines = 10
	const perGoroutine = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := NewIdentity()
				mu.Lock()
				if _, ok := seen[id]; ok {
					t.Errorf("duplicate identity generated: %s", id)
				} else {
					seen[id] = struct{}{}
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if expected := goroutines * perGoroutine; len(seen) != expected {
		t.Fatalf("expected %d unique identities, got %d", expected, len(seen))
	}
}
