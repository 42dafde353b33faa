package taskstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

// TestTryClaimTaskSingleWinner mirrors the teacher's
// postgres_store_claim_test.go concurrency pattern: many goroutines race
// to claim the same task, and exactly one must win.
func TestTryClaimTaskSingleWinner(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &task.Task{ID: "t1", Status: task.StatusPending}))

	const workers = 20
	var wins int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(owner int) {
			defer wg.Done()
			ok, err := store.TryClaimTask(ctx, "t1", "owner", 30)
			require.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, wins)
}

func TestResetClearsLease(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &task.Task{ID: "t1", Status: task.StatusPending}))
	ok, err := store.TryClaimTask(ctx, "t1", "owner", 30)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Reset(ctx, "t1"))
	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Empty(t, got.LeaseOwner)
	require.Equal(t, task.StatusPending, got.Status)
}

func TestMarkStaleRunningOnlyTouchesActiveWithoutLiveLease(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &task.Task{ID: "running", Status: task.StatusRunning}))
	require.NoError(t, store.Create(ctx, &task.Task{ID: "done", Status: task.StatusCompleted}))

	n, err := store.MarkStaleRunning(ctx, "Interrupted by restart")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := store.Get(ctx, "running")
	require.NoError(t, err)
	require.Equal(t, task.StatusPaused, got.Status)
	require.True(t, got.Cancelled)
	require.Equal(t, "Interrupted by restart", got.Message)

	other, err := store.Get(ctx, "done")
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, other.Status)
}
