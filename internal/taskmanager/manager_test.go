package taskmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/taskstore"
)

type fakeNotifier struct {
	updates   []*task.Task
	deletes   []string
	snapshots [][]*task.Task
}

func (f *fakeNotifier) BroadcastUpdate(t *task.Task)       { f.updates = append(f.updates, t) }
func (f *fakeNotifier) BroadcastDelete(id string)          { f.deletes = append(f.deletes, id) }
func (f *fakeNotifier) BroadcastSnapshot(ts []*task.Task)  { f.snapshots = append(f.snapshots, ts) }

func newTestManager(t *testing.T) (*Manager, *fakeNotifier) {
	t.Helper()
	store := taskstore.NewMemStore()
	mgr, err := New(store, nil)
	require.NoError(t, err)
	notifier := &fakeNotifier{}
	mgr.SetNotifier(notifier)
	return mgr, notifier
}

func TestCreateReturnsPendingZeroProgressUncancelled(t *testing.T) {
	mgr, notifier := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.Create(ctx, "transcribe", "job", "queued", nil)
	require.NoError(t, err)

	got, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatusPending, got.Status)
	require.Zero(t, got.Progress)
	require.False(t, got.Cancelled)
	require.Len(t, notifier.updates, 1)
}

func TestCancelIsIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	created, err := mgr.Create(ctx, "download", "", "", nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Cancel(ctx, created.ID))
	require.NoError(t, mgr.Cancel(ctx, created.ID))

	got, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, got.Cancelled)
	require.Equal(t, task.StatusCancelled, got.Status)
}

func TestDeleteDeleteIsNotFoundSecondTime(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	created, err := mgr.Create(ctx, "download", "", "", nil)
	require.NoError(t, err)

	ok, err := mgr.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mgr.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProgressClampedToBoundaries(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	created, err := mgr.Create(ctx, "download", "", "", nil)
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateProgress(ctx, created.ID, -10, ""))
	got, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Zero(t, got.Progress)

	require.NoError(t, mgr.UpdateProgress(ctx, created.ID, 150, ""))
	got, err = mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, float64(100), got.Progress)
}

func TestUpdateOnDeletedTaskIsNoOp(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	created, err := mgr.Create(ctx, "download", "", "", nil)
	require.NoError(t, err)
	_, err = mgr.Delete(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateProgress(ctx, created.ID, 50, "still going"))
}

func TestDedupeDebounceReturnsSameTaskWhilePending(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	params := map[string]interface{}{
		"steps": []interface{}{
			map[string]interface{}{
				"step_name": "download",
				"params":    map[string]interface{}{"url": "https://x/y"},
			},
		},
	}
	created, err := mgr.Create(ctx, "pipeline", "", "", params)
	require.NoError(t, err)

	id, found, err := mgr.FindTaskByParams(ctx, "pipeline", params)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, created.ID, id)
}

func TestRecoverPromotesRunningAndPendingToPausedCancelled(t *testing.T) {
	store := taskstore.NewMemStore()
	mgr, err := New(store, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &task.Task{ID: "r1", Type: "download", Status: task.StatusRunning}))
	require.NoError(t, store.Create(ctx, &task.Task{ID: "p1", Type: "download", Status: task.StatusPending}))
	require.NoError(t, store.Create(ctx, &task.Task{ID: "done1", Type: "download", Status: task.StatusCompleted}))

	require.NoError(t, mgr.Recover(ctx))

	for _, id := range []string{"r1", "p1"} {
		got, err := mgr.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, task.StatusPaused, got.Status)
		require.True(t, got.Cancelled)
		require.Equal(t, "Interrupted by restart", got.Message)
	}
	done, err := mgr.Get(ctx, "done1")
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, done.Status)
}

func TestUpdateCannotResurrectCancelledTask(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	created, err := mgr.Create(ctx, "download", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Cancel(ctx, created.ID))

	require.NoError(t, mgr.Update(ctx, created.ID, task.StatusRunning, task.WithMessage("worker finished late")))

	got, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatusCancelled, got.Status)
	require.Equal(t, "worker finished late", got.Message)
}

func TestResetReinitializesForRecycle(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	created, err := mgr.Create(ctx, "download", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Update(ctx, created.ID, task.StatusCompleted, task.WithProgress(100)))

	require.NoError(t, mgr.Reset(ctx, created.ID))

	got, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatusPending, got.Status)
	require.Zero(t, got.Progress)
	require.False(t, got.Cancelled)
}
