// Package ids mints the sequential identifiers used across the clinic's
// records: IDX- row ids, A- appointment ids and P- patient ids.
package ids

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Next computes the successor of the highest numeric suffix among existing
// ids carrying the prefix. Malformed ids are ignored, not rejected.
//
// This is a pure read-then-compute step; concurrent creators must mint
// through a Minter, which serializes allocation.
func Next(prefix string, existing []string) string {
	return Format(prefix, MaxSuffix(prefix, existing)+1)
}

// MaxSuffix returns the highest numeric suffix among existing ids with the
// given prefix, or 0 when none parse.
func MaxSuffix(prefix string, existing []string) int {
	max := 0
	for _, id := range existing {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(id[len(prefix):])
		if err != nil || n < 0 {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}

// Format renders a sequence number as a zero-padded id.
func Format(prefix string, n int) string {
	return fmt.Sprintf("%s%06d", prefix, n)
}

// Minter hands out ids such that two concurrent calls never return the same
// one.
type Minter interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// MemoryMinter serializes allocation with a mutex-guarded high-water mark
// per prefix. Suitable for single-process deployments and tests.
type MemoryMinter struct {
	mu   sync.Mutex
	high map[string]int
}

var _ Minter = (*MemoryMinter)(nil)

// NewMemoryMinter builds an empty minter.
func NewMemoryMinter() *MemoryMinter {
	return &MemoryMinter{high: make(map[string]int)}
}

// Seed raises the prefix's high-water mark to the max suffix found in
// existing ids. Lower seeds never rewind the counter.
func (m *MemoryMinter) Seed(prefix string, existing []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if floor := MaxSuffix(prefix, existing); floor > m.high[prefix] {
		m.high[prefix] = floor
	}
}

// Next returns the next id for the prefix.
func (m *MemoryMinter) Next(_ context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.high[prefix]++
	return Format(prefix, m.high[prefix]), nil
}

// RedisMinter serializes allocation across processes with an atomic INCR on
// a per-prefix counter key.
type RedisMinter struct {
	client redis.Cmdable
}

var _ Minter = (*RedisMinter)(nil)

// NewRedisMinter builds a minter over the given Redis client.
func NewRedisMinter(client redis.Cmdable) *RedisMinter {
	if client == nil {
		panic("ids: redis client cannot be nil")
	}
	return &RedisMinter{client: client}
}

func counterKey(prefix string) string {
	return "ids:counter:" + prefix
}

// Seed initializes the counter from existing ids if it is not set yet, so a
// fresh Redis does not re-issue ids already present in the store.
func (m *RedisMinter) Seed(ctx context.Context, prefix string, existing []string) error {
	floor := MaxSuffix(prefix, existing)
	if err := m.client.SetNX(ctx, counterKey(prefix), floor, 0).Err(); err != nil {
		return fmt.Errorf("ids: seed counter for %s: %w", prefix, err)
	}
	return nil
}

// Next atomically increments the counter and formats the result.
func (m *RedisMinter) Next(ctx context.Context, prefix string) (string, error) {
	n, err := m.client.Incr(ctx, counterKey(prefix)).Result()
	if err != nil {
		return "", fmt.Errorf("ids: next id for %s: %w", prefix, err)
	}
	return Format(prefix, int(n)), nil
}
