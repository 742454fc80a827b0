package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouchAndLastSeen(t *testing.T) {
	r := New()

	_, ok := r.LastSeen("alice")
	require.False(t, ok)

	first := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.Touch("alice", first)

	got, ok := r.LastSeen("alice")
	require.True(t, ok)
	assert.Equal(t, first, got)
	assert.Equal(t, 1, r.Len())
}

func TestTouchOverwritesUnconditionally(t *testing.T) {
	r := New()
	later := time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC)
	earlier := later.Add(-5 * time.Second)

	r.Touch("alice", later)
	r.Touch("alice", earlier)

	got, _ := r.LastSeen("alice")
	assert.Equal(t, earlier, got, "latest write wins even when it carries an older time")
	assert.Equal(t, 1, r.Len())
}

func TestSnapshotIsSortedCopy(t *testing.T) {
	r := New()
	now := time.Now()
	r.Touch("charlie", now)
	r.Touch("alice", now)
	r.Touch("bob", now)

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "alice", snap[0].Name)
	assert.Equal(t, "bob", snap[1].Name)
	assert.Equal(t, "charlie", snap[2].Name)

	snap[0].Name = "mutated"
	_, ok := r.LastSeen("mutated")
	assert.False(t, ok)
}

func TestSilent(t *testing.T) {
	r := New()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.Touch("fresh", now.Add(-5*time.Second))
	r.Touch("stale-b", now.Add(-time.Minute))
	r.Touch("stale-a", now.Add(-2*time.Minute))

	silent := r.Silent(30*time.Second, now)
	require.Len(t, silent, 2)
	assert.Equal(t, "stale-a", silent[0].Name)
	assert.Equal(t, "stale-b", silent[1].Name)

	// Silent is a pure read.
	assert.Equal(t, 3, r.Len())
	assert.Empty(t, r.Silent(time.Hour, now))
}

func TestConcurrentTouch(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Touch(fmt.Sprintf("client-%d", i%8), time.Now())
				_ = r.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, r.Len())
}
