package taskstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

// MemStore is an in-memory task.Store, used by tests and by the server
// when no database DSN is configured. It implements the identical Store contract as
// Store (Postgres) so taskmanager tests never need a live database.
type MemStore struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]*task.Task)}
}

func (m *MemStore) EnsureSchema(ctx context.Context) error { return nil }

func (m *MemStore) Create(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *MemStore) Get(ctx context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemStore) List(ctx context.Context) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (m *MemStore) ListByStatus(ctx context.Context, statuses ...task.Status) ([]*task.Task, error) {
	set := make(map[task.Status]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*task.Task
	for _, t := range m.tasks {
		if set[t.Status] {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (m *MemStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return false, nil
	}
	delete(m.tasks, id)
	return true, nil
}

func (m *MemStore) DeleteAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.tasks)
	m.tasks = make(map[string]*task.Task)
	return n, nil
}

func (m *MemStore) SetStatus(ctx context.Context, id string, status task.Status, opts ...task.TransitionOption) error {
	message, errMsg, result, progress, cancelled := task.ApplyTransitionOptions(opts...)
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return task.ErrNotFound
	}
	t.Status = status
	if message != nil {
		t.Message = *message
	}
	if errMsg != nil {
		t.Error = *errMsg
	}
	if result != nil {
		t.Result = result
	}
	if progress != nil {
		t.Progress = clampProgress(*progress)
	}
	if cancelled != nil {
		t.Cancelled = *cancelled
	}
	now := time.Now()
	switch status {
	case task.StatusRunning:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case task.StatusCompleted, task.StatusFailed, task.StatusCancelled:
		t.CompletedAt = &now
	}
	return nil
}

func (m *MemStore) Reset(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return task.ErrNotFound
	}
	t.Status = task.StatusPending
	t.Progress = 0
	t.Message = "Resuming..."
	t.Error = ""
	t.Result = nil
	t.Cancelled = false
	t.CreatedAt = time.Now()
	t.StartedAt = nil
	t.CompletedAt = nil
	t.LeaseOwner = ""
	t.LeaseExpiresAt = nil
	return nil
}

func (m *MemStore) TryClaimTask(ctx context.Context, id, owner string, leaseFor int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return false, task.ErrNotFound
	}
	if t.Status != task.StatusPending && t.Status != task.StatusPaused {
		return false, nil
	}
	now := time.Now()
	if t.LeaseOwner != "" && t.LeaseExpiresAt != nil && t.LeaseExpiresAt.After(now) {
		return false, nil
	}
	expiry := now.Add(time.Duration(leaseFor) * time.Second)
	t.LeaseOwner = owner
	t.LeaseExpiresAt = &expiry
	return true, nil
}

func (m *MemStore) RenewTaskLease(ctx context.Context, id, owner string, leaseFor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return task.ErrNotFound
	}
	if t.LeaseOwner != owner {
		return task.ErrNotFound
	}
	expiry := time.Now().Add(time.Duration(leaseFor) * time.Second)
	t.LeaseExpiresAt = &expiry
	return nil
}

func (m *MemStore) ReleaseTaskLease(ctx context.Context, id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.LeaseOwner != owner {
		return nil
	}
	t.LeaseOwner = ""
	t.LeaseExpiresAt = nil
	return nil
}

func (m *MemStore) MarkStaleRunning(ctx context.Context, message string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	n := 0
	for _, t := range m.tasks {
		if t.Status != task.StatusRunning && t.Status != task.StatusPending {
			continue
		}
		if t.LeaseExpiresAt != nil && t.LeaseExpiresAt.After(now) {
			continue
		}
		t.Status = task.StatusPaused
		t.Cancelled = true
		t.Message = message
		n++
	}
	return n, nil
}

func (m *MemStore) DeleteExpired(ctx context.Context, olderThanSeconds int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	n := 0
	for id, t := range m.tasks {
		if !t.Status.IsTerminal() || t.CompletedAt == nil {
			continue
		}
		if t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			n++
		}
	}
	return n, nil
}
