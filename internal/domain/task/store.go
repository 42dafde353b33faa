package task

import "context"

// TransitionOption mutates a status transition before it is committed,
// mirroring the teacher store's functional-option transition shape so
// callers can attach a message/error/result to a single atomic write
// instead of issuing several.
type TransitionOption func(*transition)

type transition struct {
	message   *string
	errMsg    *string
	result    *Result
	progress  *float64
	cancelled *bool
}

func WithMessage(msg string) TransitionOption {
	return func(t *transition) { t.message = &msg }
}

func WithError(msg string) TransitionOption {
	return func(t *transition) { t.errMsg = &msg }
}

func WithResult(r *Result) TransitionOption {
	return func(t *transition) { t.result = r }
}

func WithProgress(p float64) TransitionOption {
	return func(t *transition) { t.progress = &p }
}

func WithCancelled(c bool) TransitionOption {
	return func(t *transition) { t.cancelled = &c }
}

// ApplyTransitionOptions folds a list of TransitionOption into the
// resulting message/error/result/progress/cancelled overrides. Exported so
// internal/taskstore and internal/taskmanager share one interpretation of
// the option set.
func ApplyTransitionOptions(opts ...TransitionOption) (message, errMsg *string, result *Result, progress *float64, cancelled *bool) {
	var tr transition
	for _, opt := range opts {
		opt(&tr)
	}
	return tr.message, tr.errMsg, tr.result, tr.progress, tr.cancelled
}

// Store is the durable persistence boundary for Task records (§6.2). Every
// write is atomic with respect to a single task id; store-first writes are
// the invariant the Task Manager relies on (a cache entry is always backed
// by a committed store entry).
type Store interface {
	EnsureSchema(ctx context.Context) error

	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context) ([]*Task, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Task, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteAll(ctx context.Context) (int, error)

	SetStatus(ctx context.Context, id string, status Status, opts ...TransitionOption) error
	Reset(ctx context.Context, id string) error

	// TryClaimTask atomically assigns a lease to a pending/paused task so
	// exactly one caller wins the claim, even across a crash-restart race
	// (see SPEC_FULL.md §12.4). It returns false, nil if another owner
	// already holds a live lease.
	TryClaimTask(ctx context.Context, id, owner string, leaseFor int64) (bool, error)
	RenewTaskLease(ctx context.Context, id, owner string, leaseFor int64) error
	ReleaseTaskLease(ctx context.Context, id, owner string) error

	// MarkStaleRunning reclassifies every task in running/pending whose
	// lease has expired (or which has no lease at all, i.e. the startup
	// recovery case) to paused+cancelled, per Invariant 7.
	MarkStaleRunning(ctx context.Context, message string) (int, error)
	// DeleteExpired purges terminal tasks older than olderThanSeconds.
	DeleteExpired(ctx context.Context, olderThanSeconds int64) (int, error)
}

// ErrNotFound is returned by Store implementations when an id is unknown.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "task: not found" }
