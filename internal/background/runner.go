// Package background implements the Background Runner (§4.8): the
// uniform adapter for single-step submissions. It is grounded on
// other_examples/0f919407_cxumol-FFwebAPI__task-manager.go.go's Manager/
// workerLoop/processTask shape — a bounded worker pool (here a
// golang.org/x/sync/semaphore instead of that file's buffered-channel
// semaphore, since this repo's pool also needs to interoperate with the
// Pipeline Runner's otel-traced steps) plus a per-task context.
package background

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/logging"
)

// TaskUpdater is the slice of the Task Manager the Background Runner
// needs.
type TaskUpdater interface {
	Update(ctx context.Context, id string, status task.Status, opts ...task.TransitionOption) error
}

// ProgressFunc is the progress callback signature workers receive
// (§6.3): percent in [0,100], a short status message.
type ProgressFunc func(percent float64, message string)

// WorkerFunc is a blocking callable run off the serving thread. It
// receives a progress callback already bound to its task id and a
// ResultTransformer-shaped output it must produce directly, or a raw
// value for Submission.ResultTransformer to shape.
type WorkerFunc func(ctx context.Context, progress ProgressFunc) (interface{}, error)

// ResultTransformer maps a worker's raw return value into a task.Result.
// If nil, a raw *task.Result is used as is and any other raw value is
// wrapped as a successful Result under Meta["raw"].
type ResultTransformer func(raw interface{}) (*task.Result, error)

// Submission is one Background Runner request (§4.8's argument list).
type Submission struct {
	TaskID            string
	Worker            WorkerFunc
	StartMessage      string
	SuccessMessage    string
	ResultTransformer ResultTransformer
}

// Runner is the bounded worker pool adapter. Run is safe to call
// concurrently from many requests; MaxConcurrency caps how many workers
// execute simultaneously, the rest queue on the semaphore acquire.
type Runner struct {
	tasks  TaskUpdater
	logger logging.Logger
	sem    *semaphore.Weighted
	retry  apperrors.RetryPolicy

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds a Background Runner with the given worker-pool size.
func New(tasks TaskUpdater, maxConcurrency int64, logger logging.Logger) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Runner{
		tasks:   tasks,
		logger:  logging.OrNop(logger),
		sem:     semaphore.NewWeighted(maxConcurrency),
		retry:   apperrors.DefaultRetryPolicy(),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit schedules sub to run off the serving thread (§4.8 protocol).
// Submit itself returns immediately after updating the task to running;
// the worker runs in its own goroutine.
func (r *Runner) Submit(parentCtx context.Context, sub Submission) error {
	if err := r.tasks.Update(parentCtx, sub.TaskID, task.StatusRunning, task.WithMessage(sub.StartMessage)); err != nil {
		return err
	}

	workCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[sub.TaskID] = cancel
	r.mu.Unlock()

	go r.runWorker(workCtx, cancel, sub)
	return nil
}

// Cancel invokes the stored cancelFunc for taskID, if the task is
// currently running under this Runner; it is the cooperative-cancellation
// plumbing §5 describes ("workers poll via is_cancelled... There is no
// forced preemption").
func (r *Runner) Cancel(taskID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[taskID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

func (r *Runner) runWorker(ctx context.Context, cancel context.CancelFunc, sub Submission) {
	defer cancel()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, sub.TaskID)
		r.mu.Unlock()
	}()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.fail(ctx, sub, err)
		return
	}
	defer r.sem.Release(1)

	progress := func(percent float64, message string) {
		// Posted back onto the Task Manager, which is itself
		// goroutine-safe (mutex-guarded cache + atomic store writes),
		// so this callback is safe to invoke directly from the worker
		// goroutine rather than needing its own queue.
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.tasks.Update(updateCtx, sub.TaskID, task.StatusRunning, task.WithProgress(percent), task.WithMessage(message)); err != nil {
			r.logger.Warn("background runner: progress update failed for %s: %v", sub.TaskID, err)
		}
	}

	var raw interface{}
	err := r.retry.Do(ctx, func(attempt int) error {
		var innerErr error
		raw, innerErr = sub.Worker(ctx, progress)
		return innerErr
	})
	if err != nil {
		if apperrors.IsCancellation(err) || ctx.Err() == context.Canceled {
			_ = r.tasks.Update(context.Background(), sub.TaskID, task.StatusCancelled, task.WithMessage("cancelled"))
			return
		}
		r.fail(context.Background(), sub, err)
		return
	}

	result, transformErr := r.transform(sub, raw)
	if transformErr != nil {
		r.fail(context.Background(), sub, transformErr)
		return
	}

	_ = r.tasks.Update(context.Background(), sub.TaskID, task.StatusCompleted,
		task.WithProgress(100),
		task.WithMessage(sub.SuccessMessage),
		task.WithResult(result),
	)
}

func (r *Runner) transform(sub Submission, raw interface{}) (*task.Result, error) {
	if sub.ResultTransformer != nil {
		return sub.ResultTransformer(raw)
	}
	if result, ok := raw.(*task.Result); ok {
		return result, nil
	}
	return &task.Result{Success: true, Meta: map[string]interface{}{"raw": raw}}, nil
}

func (r *Runner) fail(ctx context.Context, sub Submission, err error) {
	r.logger.Error("background runner: task %s failed: %v", sub.TaskID, err)
	_ = r.tasks.Update(ctx, sub.TaskID, task.StatusFailed, task.WithError(err.Error()), task.WithMessage(err.Error()))
}
