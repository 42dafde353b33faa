// Package taskmanager implements the Task Manager (§4.1): the
// authoritative, store-backed, cache-fronted custodian of Task state. It
// is grounded on the teacher's internal/server/app/task_store_test.go
// (Create/Get/SetStatus/SetError/SetResult behavior) and
// internal/domain/task/store.go (startup recovery, stale sweep, lease
// claim), generalized from that chat-agent-specific Task shape onto the
// media-pipeline Task described in SPEC_FULL.md.
package taskmanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/logging"
)

// Notifier is the minimal surface the Task Manager needs from §4.2; it is
// injected via a setter to resolve the cyclic dependency design notes in
// spec.md §9 describe.
type Notifier interface {
	BroadcastUpdate(t *task.Task)
	BroadcastDelete(taskID string)
	BroadcastSnapshot(tasks []*task.Task)
}

// Manager is the Task Manager. Mutex-guarded cache in front of a durable
// Store, matching spec.md §4.1's "either a mutex... or a command-serializing
// actor" concurrency note — this implementation chooses the mutex, as the
// teacher's own in-process collaborators (internal/di.Container,
// internal/server/app stores) do throughout.
type Manager struct {
	store    task.Store
	notifier Notifier
	logger   logging.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *task.Task]
}

const defaultCacheSize = 4096

// New constructs a Task Manager over store. Call SetNotifier before
// serving any traffic; Recover should run once at startup before the HTTP
// layer accepts requests.
func New(store task.Store, logger logging.Logger) (*Manager, error) {
	cache, err := lru.New[string, *task.Task](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("taskmanager: building cache: %w", err)
	}
	return &Manager{
		store:  store,
		logger: logging.OrNop(logger),
		cache:  cache,
	}, nil
}

// SetNotifier wires the Notifier in after construction (setter injection,
// per spec.md §9).
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// Recover implements the startup recovery pass (§4.1, Invariant 7): every
// task left running/pending is rewritten to paused+cancelled in one
// commit, then the cache is dropped so the next read repopulates it from
// the store.
func (m *Manager) Recover(ctx context.Context) error {
	if err := m.store.EnsureSchema(ctx); err != nil {
		return apperrors.NewPersistenceError(err, "ensure schema")
	}
	n, err := m.store.MarkStaleRunning(ctx, "Interrupted by restart")
	if err != nil {
		return apperrors.NewPersistenceError(err, "startup recovery")
	}
	m.logger.Info("startup recovery reclassified %d task(s) to paused", n)
	m.mu.Lock()
	m.cache.Purge()
	m.mu.Unlock()
	if n > 0 {
		m.emitSnapshotLocked(ctx)
	}
	return nil
}

// SweepStale re-applies the same reclassification to leases that expired
// without a process restart (§12.3), and purges old terminal tasks.
func (m *Manager) SweepStale(ctx context.Context, retentionSeconds int64) {
	active, err := m.store.ListByStatus(ctx, task.StatusRunning, task.StatusPending)
	if err != nil {
		m.logger.Error("stale sweep failed: %v", err)
		return
	}
	now := time.Now()
	n := 0
	for _, t := range active {
		if t.LeaseExpiresAt == nil || t.LeaseExpiresAt.After(now) {
			continue
		}
		if err := m.store.SetStatus(ctx, t.ID, task.StatusPaused, task.WithCancelled(true), task.WithMessage("Lease expired")); err != nil {
			m.logger.Error("stale sweep failed: %v", err)
			return
		}
		n++
	}
	if n > 0 {
		m.logger.Info("stale sweep reclassified %d task(s)", n)
		m.mu.Lock()
		m.cache.Purge()
		m.mu.Unlock()
		m.emitSnapshotLocked(ctx)
	}
	deleted, err := m.store.DeleteExpired(ctx, retentionSeconds)
	if err != nil {
		m.logger.Error("expired task purge failed: %v", err)
		return
	}
	if deleted > 0 {
		m.logger.Info("purged %d expired terminal task(s)", deleted)
	}
}

// Create implements §4.1 create: writes to the store before the cache,
// then emits update.
func (m *Manager) Create(ctx context.Context, taskType, name, initialMessage string, params map[string]interface{}) (*task.Task, error) {
	if taskType == "" {
		return nil, apperrors.NewValidationError(nil, "task type is required")
	}
	safeParams, err := sanitizeParams(params)
	if err != nil {
		return nil, apperrors.NewValidationError(err, "request_params must be JSON-serializable")
	}
	t := &task.Task{
		ID:            uuid.NewString(),
		Name:          name,
		Type:          taskType,
		Status:        task.StatusPending,
		Progress:      0,
		Message:       initialMessage,
		RequestParams: safeParams,
		CreatedAt:     time.Now(),
		Cancelled:     false,
	}
	if err := m.store.Create(ctx, t); err != nil {
		return nil, apperrors.NewPersistenceError(err, "create task")
	}

	m.mu.Lock()
	m.cache.Add(t.ID, t.Clone())
	notifier := m.notifier
	m.mu.Unlock()

	if notifier != nil {
		notifier.BroadcastUpdate(t.Clone())
	}
	return t.Clone(), nil
}

// Get is a read-only accessor; it serves from cache, falling back to the
// store on a miss.
func (m *Manager) Get(ctx context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	if t, ok := m.cache.Get(id); ok {
		m.mu.Unlock()
		return t.Clone(), nil
	}
	m.mu.Unlock()

	t, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, id)
	}
	m.mu.Lock()
	m.cache.Add(id, t.Clone())
	m.mu.Unlock()
	return t.Clone(), nil
}

// List returns every known task, freshest first.
func (m *Manager) List(ctx context.Context) ([]*task.Task, error) {
	tasks, err := m.store.List(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err, "list tasks")
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	m.mu.Lock()
	for _, t := range tasks {
		m.cache.Add(t.ID, t.Clone())
	}
	m.mu.Unlock()
	return tasks, nil
}

// Snapshot returns every task for an observer's initial sync (§4.2
// send_snapshot payload).
func (m *Manager) Snapshot(ctx context.Context) ([]*task.Task, error) {
	return m.List(ctx)
}

// Update performs the whitelisted read-modify-write of §4.1 `update`.
// Unknown fields are simply not representable by this signature — callers
// pass typed TransitionOptions instead of an arbitrary field map, which is
// the Go-idiomatic version of "only whitelisted fields are assignable".
func (m *Manager) Update(ctx context.Context, id string, status task.Status, opts ...task.TransitionOption) error {
	effective, err := m.guardTerminalTransition(ctx, id, status)
	if err != nil {
		return err
	}
	if err := m.store.SetStatus(ctx, id, effective, opts...); err != nil {
		return mapStoreErr(err, id)
	}
	return m.refreshAndEmit(ctx, id)
}

// guardTerminalTransition enforces §5's rule: once cancelled, a task may
// not transition back to running or completed. It returns the status
// that should actually be written — the requested one, unless the task
// is already cancelled, in which case it pins the write to cancelled so
// the caller's accompanying message/error TransitionOptions still land
// without resurrecting the task.
func (m *Manager) guardTerminalTransition(ctx context.Context, id string, status task.Status) (task.Status, error) {
	if status != task.StatusRunning && status != task.StatusCompleted {
		return status, nil
	}
	current, err := m.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return status, nil
		}
		return status, err
	}
	if current.Status == task.StatusCancelled {
		return task.StatusCancelled, nil
	}
	return status, nil
}

// UpdateProgress clamps and writes a progress value, implementing the
// boundary rule in §8 ("progress input values below 0 are clamped to 0;
// above 100 clamped to 100").
func (m *Manager) UpdateProgress(ctx context.Context, id string, progress float64, message string) error {
	opts := []task.TransitionOption{task.WithProgress(progress)}
	if message != "" {
		opts = append(opts, task.WithMessage(message))
	}
	current, err := m.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil // deleted mid-run: worker update is a no-op, per §8 boundary
		}
		return err
	}
	if err := m.store.SetStatus(ctx, id, current.Status, opts...); err != nil {
		return mapStoreErr(err, id)
	}
	return m.refreshAndEmit(ctx, id)
}

// Cancel sets cancelled=true and status=cancelled. Idempotent (§8 law:
// cancel(cancel(x)) == cancel(x)).
func (m *Manager) Cancel(ctx context.Context, id string) error {
	err := m.store.SetStatus(ctx, id, task.StatusCancelled, task.WithCancelled(true))
	if err != nil {
		return mapStoreErr(err, id)
	}
	return m.refreshAndEmit(ctx, id)
}

// CancelAll targets only pending/running, uncancelled tasks, and emits a
// single snapshot (§4.1 cancel_all).
func (m *Manager) CancelAll(ctx context.Context) (int, error) {
	active, err := m.store.ListByStatus(ctx, task.StatusPending, task.StatusRunning)
	if err != nil {
		return 0, apperrors.NewPersistenceError(err, "list active tasks")
	}
	n := 0
	for _, t := range active {
		if t.Cancelled {
			continue
		}
		if err := m.store.SetStatus(ctx, t.ID, task.StatusCancelled, task.WithCancelled(true)); err != nil {
			return n, apperrors.NewPersistenceError(err, "cancel "+t.ID)
		}
		n++
	}
	if n > 0 {
		m.mu.Lock()
		m.cache.Purge()
		m.mu.Unlock()
		m.emitSnapshotLocked(ctx)
	}
	return n, nil
}

// Delete removes a task from store and cache and emits delete. Deleting a
// running task is permitted and does not preempt the worker (§4.1).
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, apperrors.NewPersistenceError(err, "delete task")
	}
	m.mu.Lock()
	m.cache.Remove(id)
	notifier := m.notifier
	m.mu.Unlock()
	if ok && notifier != nil {
		notifier.BroadcastDelete(id)
	}
	return ok, nil
}

// DeleteAll removes every task and emits an empty snapshot.
func (m *Manager) DeleteAll(ctx context.Context) (int, error) {
	n, err := m.store.DeleteAll(ctx)
	if err != nil {
		return 0, apperrors.NewPersistenceError(err, "delete all tasks")
	}
	m.mu.Lock()
	m.cache.Purge()
	notifier := m.notifier
	m.mu.Unlock()
	if notifier != nil {
		notifier.BroadcastSnapshot(nil)
	}
	return n, nil
}

// Reset re-initializes a task for reuse (the recycle path, §4.1).
func (m *Manager) Reset(ctx context.Context, id string) error {
	if err := m.store.Reset(ctx, id); err != nil {
		return mapStoreErr(err, id)
	}
	return m.refreshAndEmit(ctx, id)
}

// IsCancelled is the cheap, non-blocking lookup workers poll (§4.1).
func (m *Manager) IsCancelled(ctx context.Context, id string) bool {
	t, err := m.Get(ctx, id)
	if err != nil {
		return false
	}
	return t.Cancelled
}

// FindTaskByParams implements the dedupe probe of §4.1.
func (m *Manager) FindTaskByParams(ctx context.Context, taskType string, params map[string]interface{}) (string, bool, error) {
	key, err := dedupeKey(params)
	if err != nil {
		return "", false, apperrors.NewValidationError(err, "request_params must be JSON-serializable")
	}
	tasks, err := m.store.List(ctx)
	if err != nil {
		return "", false, apperrors.NewPersistenceError(err, "list tasks for dedupe")
	}
	// Deterministic order so "most recent match" is stable under ties.
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	for _, t := range tasks {
		if t.Type != taskType {
			continue
		}
		candidateKey, err := dedupeKey(t.RequestParams)
		if err != nil || candidateKey != key {
			continue
		}
		return t.ID, true, nil
	}
	return "", false, nil
}

// dedupeKey implements §4.1's deduplication key derivation.
func dedupeKey(params map[string]interface{}) (string, error) {
	if params == nil {
		return canonicalJSON(params)
	}
	if stepsRaw, ok := params["steps"]; ok {
		if steps, ok := stepsRaw.([]interface{}); ok && len(steps) > 0 {
			if first, ok := steps[0].(map[string]interface{}); ok {
				if first["step_name"] == "download" {
					if url, ok := first["params"].(map[string]interface{})["url"].(string); ok && url != "" {
						return "download:" + url, nil
					}
				}
			}
		}
	}
	if url, ok := params["url"].(string); ok && url != "" {
		return "url:" + url, nil
	}
	return canonicalJSON(params)
}

func canonicalJSON(v interface{}) (string, error) {
	normalized, err := normalizeForJSON(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "json:" + hex.EncodeToString(sum[:]), nil
}

// normalizeForJSON sorts map keys by round-tripping through
// encoding/json's own map ordering (Go's json.Marshal already sorts map
// keys), so this is mostly a hook for callers that want explicit control;
// kept as its own function because it is the single place that would
// change if a different canonicalization were required.
func normalizeForJSON(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sanitizeParams(params map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		return nil, nil
	}
	if _, err := json.Marshal(params); err != nil {
		return nil, err
	}
	return params, nil
}

func (m *Manager) refreshAndEmit(ctx context.Context, id string) error {
	t, err := m.store.Get(ctx, id)
	if err != nil {
		return mapStoreErr(err, id)
	}
	m.mu.Lock()
	m.cache.Add(id, t.Clone())
	notifier := m.notifier
	m.mu.Unlock()
	if notifier != nil {
		notifier.BroadcastUpdate(t.Clone())
	}
	return nil
}

func (m *Manager) emitSnapshotLocked(ctx context.Context) {
	tasks, err := m.store.List(ctx)
	if err != nil {
		m.logger.Error("snapshot emission failed to list tasks: %v", err)
		return
	}
	m.mu.Lock()
	notifier := m.notifier
	m.mu.Unlock()
	if notifier != nil {
		notifier.BroadcastSnapshot(tasks)
	}
}

func mapStoreErr(err error, id string) error {
	if err == task.ErrNotFound {
		return apperrors.NewNotFoundError("task", fmt.Sprintf("task %q not found", id))
	}
	return apperrors.NewPersistenceError(err, "task store operation failed")
}
