package ids

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		existing []string
		want     string
	}{
		{"empty store", "A-", nil, "A-000001"},
		{"sequential", "A-", []string{"A-000001", "A-000002", "A-000005"}, "A-000006"},
		{"malformed ignored", "A-", []string{"A-000003", "A-abc", "A-"}, "A-000004"},
		{"other prefixes ignored", "A-", []string{"P-000009", "IDX-000004", "A-000002"}, "A-000003"},
		{"all malformed", "P-", []string{"P-x", "banana"}, "P-000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.prefix, tt.existing); got != tt.want {
				t.Fatalf("Next(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestMemoryMinter_SerializesAllocation(t *testing.T) {
	minter := NewMemoryMinter()
	minter.Seed("A-", []string{"A-000010"})

	ctx := context.Background()
	const workers = 32
	var wg sync.WaitGroup
	out := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := minter.Next(ctx, "A-")
			if err != nil {
				t.Errorf("Next returned error: %v", err)
				return
			}
			out <- id
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[string]bool)
	for id := range out {
		if seen[id] {
			t.Fatalf("duplicate id minted: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d distinct ids, got %d", workers, len(seen))
	}
}

func TestMemoryMinter_SeedNeverRewinds(t *testing.T) {
	minter := NewMemoryMinter()
	minter.Seed("P-", []string{"P-000005"})
	minter.Seed("P-", []string{"P-000002"})

	id, err := minter.Next(context.Background(), "P-")
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if id != "P-000006" {
		t.Fatalf("expected P-000006, got %s", id)
	}
}

func TestRedisMinter_SeedAndNext(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	minter := NewRedisMinter(client)
	ctx := context.Background()

	if err := minter.Seed(ctx, "A-", []string{"A-000001", "A-000005", "A-abc"}); err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}

	id, err := minter.Next(ctx, "A-")
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if id != "A-000006" {
		t.Fatalf("expected A-000006, got %s", id)
	}

	// Re-seeding an initialized counter is a no-op.
	if err := minter.Seed(ctx, "A-", []string{"A-000001"}); err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}
	id, err = minter.Next(ctx, "A-")
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if id != "A-000007" {
		t.Fatalf("expected A-000007 after reseed, got %s", id)
	}
}

func TestRedisMinter_DistinctAcrossClients(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	a := NewRedisMinter(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	b := NewRedisMinter(redis.NewClient(&redis.Options{Addr: srv.Addr()}))

	idA, err := a.Next(ctx, "P-")
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	idB, err := b.Next(ctx, "P-")
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if idA == idB {
		t.Fatalf("two minters issued the same id: %s", idA)
	}
}
