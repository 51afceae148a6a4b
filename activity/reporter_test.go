package activity

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"autopilot/store"
	"autopilot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterEvictsOldest(t *testing.T) {
	ctx := context.Background()
	r := NewReporter()

	for i := 0; i < 51; i++ {
		r.Success(ctx, "Tester", fmt.Sprintf("entry %d", i))
	}

	entries := r.Entries()
	require.Len(t, entries, 50)
	assert.Equal(t, "entry 50", entries[0].Message)
	assert.Equal(t, "entry 1", entries[len(entries)-1].Message)
	for _, e := range entries {
		assert.NotEqual(t, "entry 0", e.Message)
	}
}

func TestReporterAssignsIDAndTimestamp(t *testing.T) {
	r := NewReporter()
	a := r.Error(context.Background(), "Illustrator", "no image")
	b := r.Success(context.Background(), "Scheduler", "scheduled")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Timestamp.IsZero())
	assert.Equal(t, types.ActivityError, a.Status)
}

func TestReporterConcurrentAppends(t *testing.T) {
	r := NewReporter()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Success(context.Background(), "Agent", fmt.Sprint(i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

func TestReporterPersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepository(store.NewMemory(), "")

	var hooked int
	r := NewReporter(WithSink(repo), OnRecord(func(types.ActivityLogEntry) { hooked++ }))
	r.Success(ctx, "Scheduler", "first")
	r.Error(ctx, "Animator", "second")
	assert.Equal(t, 2, hooked)

	reloaded := NewReporter(WithSink(repo))
	require.NoError(t, reloaded.Load(ctx))
	entries := reloaded.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Message)
}
