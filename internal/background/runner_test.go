package background

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

type fakeTaskUpdater struct {
	mu      sync.Mutex
	history []task.Status
	last    map[string]interface{}
}

func (f *fakeTaskUpdater) Update(ctx context.Context, id string, status task.Status, opts ...task.TransitionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, status)
	message, errMsg, result, progress, cancelled := task.ApplyTransitionOptions(opts...)
	f.last = map[string]interface{}{"message": message, "error": errMsg, "result": result, "progress": progress, "cancelled": cancelled}
	return nil
}

func (f *fakeTaskUpdater) statuses() []task.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]task.Status(nil), f.history...)
}

func TestSubmitCompletesSuccessfully(t *testing.T) {
	updater := &fakeTaskUpdater{}
	runner := New(updater, 2, nil)

	done := make(chan struct{})
	sub := Submission{
		TaskID:         "t1",
		StartMessage:   "starting",
		SuccessMessage: "done",
		Worker: func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
			progress(50, "halfway")
			close(done)
			return &task.Result{Success: true}, nil
		},
	}
	require.NoError(t, runner.Submit(context.Background(), sub))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not run")
	}

	require.Eventually(t, func() bool {
		statuses := updater.statuses()
		return len(statuses) > 0 && statuses[len(statuses)-1] == task.StatusCompleted
	}, time.Second, time.Millisecond)
}

func TestSubmitFailureMarksTaskFailed(t *testing.T) {
	updater := &fakeTaskUpdater{}
	runner := New(updater, 2, nil)
	runner.retry.MaxAttempts = 1

	sub := Submission{
		TaskID: "t1",
		Worker: func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
			return nil, errors.New("permanent failure")
		},
	}
	require.NoError(t, runner.Submit(context.Background(), sub))

	require.Eventually(t, func() bool {
		statuses := updater.statuses()
		return len(statuses) > 0 && statuses[len(statuses)-1] == task.StatusFailed
	}, time.Second, time.Millisecond)
}

func TestCancelStopsWorkerContext(t *testing.T) {
	updater := &fakeTaskUpdater{}
	runner := New(updater, 2, nil)

	started := make(chan struct{})
	sub := Submission{
		TaskID: "t1",
		Worker: func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	require.NoError(t, runner.Submit(context.Background(), sub))
	<-started
	runner.Cancel("t1")

	require.Eventually(t, func() bool {
		statuses := updater.statuses()
		return len(statuses) > 0 && statuses[len(statuses)-1] == task.StatusCancelled
	}, time.Second, time.Millisecond)
}

func TestResultTransformerShapesRawReturn(t *testing.T) {
	updater := &fakeTaskUpdater{}
	runner := New(updater, 2, nil)

	sub := Submission{
		TaskID: "t1",
		Worker: func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
			return "raw-string", nil
		},
		ResultTransformer: func(raw interface{}) (*task.Result, error) {
			return &task.Result{Success: true, Meta: map[string]interface{}{"value": raw}}, nil
		},
	}
	require.NoError(t, runner.Submit(context.Background(), sub))

	require.Eventually(t, func() bool {
		statuses := updater.statuses()
		return len(statuses) > 0 && statuses[len(statuses)-1] == task.StatusCompleted
	}, time.Second, time.Millisecond)
}
