package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_Update(t *testing.T) {
	var changes []Counts
	ctx, tracker := WithNewTracker(context.Background(), "run-1", "race", func(c Counts) {
		changes = append(changes, c)
	})

	UpdateCtx(ctx, Delta{Total: 2, Pending: 2})
	UpdateCtx(ctx, Delta{Pending: -1, Running: 1})
	UpdateCtx(ctx, Delta{Pending: -1, Running: 1})
	assert.False(t, tracker.Snapshot().Done())

	UpdateCtx(ctx, Delta{Running: -1, Completed: 1})
	UpdateCtx(ctx, Delta{Running: -1, Killed: 1})

	snapshot, ok := GetSnapshot(ctx)
	require.True(t, ok)
	assert.Equal(t, "run-1", snapshot.RunID)
	assert.Equal(t, "race", snapshot.Scenario)
	assert.Equal(t, 2, snapshot.Total)
	assert.Equal(t, 1, snapshot.Completed)
	assert.Equal(t, 1, snapshot.Killed)
	assert.True(t, snapshot.Done())
	assert.Len(t, changes, 5)
}

func TestProgress_Concurrent(t *testing.T) {
	tracker := &Progress{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Update(Delta{Total: 1, Completed: 1})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tracker.Snapshot().Completed)
}

func TestProgress_NilSafe(t *testing.T) {
	var tracker *Progress
	tracker.Update(Delta{Total: 1})
	tracker.OnChange(nil)
	assert.Equal(t, Counts{}, tracker.Snapshot())

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
