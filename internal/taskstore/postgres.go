// Package taskstore implements the durable Persistence Store (§6.2) on
// Postgres via jackc/pgx, following the pool-construction idiom of the
// teacher's internal/di/container_builder.go buildPostgresResources
// (ParseConfig -> tune -> NewWithConfig -> Ping -> EnsureSchema).
package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

// PoolConfig mirrors the tuning knobs the teacher applies to every
// session/state/history pool it builds.
type PoolConfig struct {
	DSN                    string
	MaxConns               int32
	MinConns               int32
	MaxConnLifetime        time.Duration
	MaxConnIdleTime        time.Duration
	HealthCheckPeriod      time.Duration
	ConnectTimeout         time.Duration
	StatementCacheCapacity int
}

// DefaultPoolConfig returns the teacher's defaults, trimmed to this
// service's scale.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:                    dsn,
		MaxConns:               10,
		MinConns:               2,
		MaxConnLifetime:        time.Hour,
		MaxConnIdleTime:        30 * time.Minute,
		HealthCheckPeriod:      time.Minute,
		ConnectTimeout:         10 * time.Second,
		StatementCacheCapacity: 256,
	}
}

// NewPool builds and pings a pgxpool.Pool configured per cfg.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, &postgresInitError{step: "parse_config", err: err}
	}
	applyPoolOptions(pgxCfg, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, &postgresInitError{step: "new_pool", err: err}
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, &postgresInitError{step: "ping", err: err}
	}
	return pool, nil
}

func applyPoolOptions(pgxCfg *pgxpool.Config, cfg PoolConfig) {
	pgxCfg.MaxConns = cfg.MaxConns
	pgxCfg.MinConns = cfg.MinConns
	pgxCfg.MaxConnLifetime = cfg.MaxConnLifetime
	pgxCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	pgxCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	pgxCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	pgxCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
}

// postgresInitError names the construction step that failed, matching the
// teacher's postgresInitError{step, err} wrapping type.
type postgresInitError struct {
	step string
	err  error
}

func (e *postgresInitError) Error() string {
	return fmt.Sprintf("taskstore: postgres init failed at %s: %v", e.step, e.err)
}

func (e *postgresInitError) Unwrap() error { return e.err }

// Store implements task.Store on a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Shutdown closes the underlying pool, implementing container.Shutdownable
// so the Service Container closes it in reverse instantiation order.
func (s *Store) Shutdown() error {
	s.pool.Close()
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	type             TEXT NOT NULL,
	status           TEXT NOT NULL,
	progress         DOUBLE PRECISION NOT NULL DEFAULT 0,
	message          TEXT NOT NULL DEFAULT '',
	error            TEXT NOT NULL DEFAULT '',
	result           JSONB,
	request_params   JSONB,
	created_at       TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	cancelled        BOOLEAN NOT NULL DEFAULT FALSE,
	lease_owner      TEXT NOT NULL DEFAULT '',
	lease_expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status);
`

// EnsureSchema is idempotent, per §6.2.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) Create(ctx context.Context, t *task.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	resultJSON, err := marshalNullable(t.Result)
	if err != nil {
		return err
	}
	paramsJSON, err := marshalNullable(t.RequestParams)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (id, name, type, status, progress, message, error, result, request_params, created_at, cancelled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, t.ID, t.Name, t.Type, string(t.Status), t.Progress, t.Message, t.Error, resultJSON, paramsJSON, t.CreatedAt, t.Cancelled)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, type, status, progress, message, error, result, request_params,
		       created_at, started_at, completed_at, cancelled, lease_owner, lease_expires_at
		FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (s *Store) List(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, type, status, progress, message, error, result, request_params,
		       created_at, started_at, completed_at, cancelled, lease_owner, lease_expires_at
		FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListByStatus(ctx context.Context, statuses ...task.Status) ([]*task.Task, error) {
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, type, status, progress, message, error, result, request_params,
		       created_at, started_at, completed_at, cancelled, lease_owner, lease_expires_at
		FROM tasks WHERE status = ANY($1)`, strs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status task.Status, opts ...task.TransitionOption) error {
	message, errMsg, result, progress, cancelled := task.ApplyTransitionOptions(opts...)

	sets := []string{"status = $2"}
	args := []interface{}{id, string(status)}
	n := 2

	addSet := func(col string, val interface{}) {
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, val)
	}
	if message != nil {
		addSet("message", *message)
	}
	if errMsg != nil {
		addSet("error", *errMsg)
	}
	if result != nil {
		resultJSON, err := json.Marshal(result)
		if err != nil {
			return err
		}
		addSet("result", resultJSON)
	}
	if progress != nil {
		p := clampProgress(*progress)
		addSet("progress", p)
	}
	if cancelled != nil {
		addSet("cancelled", *cancelled)
	}
	switch status {
	case task.StatusRunning:
		sets = append(sets, "started_at = COALESCE(started_at, now())")
	case task.StatusCompleted, task.StatusFailed, task.StatusCancelled:
		sets = append(sets, "completed_at = now()")
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $1", joinComma(sets))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *Store) Reset(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status = $2, progress = 0, message = $3, error = '', result = NULL,
		       cancelled = FALSE, created_at = now(), started_at = NULL, completed_at = NULL,
		       lease_owner = '', lease_expires_at = NULL
		WHERE id = $1`, id, string(task.StatusPending), "Resuming...")
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *Store) TryClaimTask(ctx context.Context, id, owner string, leaseFor int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET lease_owner = $2, lease_expires_at = now() + ($3 || ' seconds')::interval
		WHERE id = $1
		  AND status IN ($4, $5)
		  AND (lease_owner = '' OR lease_expires_at IS NULL OR lease_expires_at < now())
	`, id, owner, leaseFor, string(task.StatusPending), string(task.StatusPaused))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) RenewTaskLease(ctx context.Context, id, owner string, leaseFor int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET lease_expires_at = now() + ($3 || ' seconds')::interval
		WHERE id = $1 AND lease_owner = $2
	`, id, owner, leaseFor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *Store) ReleaseTaskLease(ctx context.Context, id, owner string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET lease_owner = '', lease_expires_at = NULL
		WHERE id = $1 AND lease_owner = $2
	`, id, owner)
	return err
}

func (s *Store) MarkStaleRunning(ctx context.Context, message string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, cancelled = TRUE, message = $2
		WHERE status IN ($3, $4)
		  AND (lease_expires_at IS NULL OR lease_expires_at < now())
	`, string(task.StatusPaused), message, string(task.StatusRunning), string(task.StatusPending))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) DeleteExpired(ctx context.Context, olderThanSeconds int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE status IN ($1, $2, $3)
		  AND completed_at IS NOT NULL
		  AND completed_at < now() - ($4 || ' seconds')::interval
	`, string(task.StatusCompleted), string(task.StatusFailed), string(task.StatusCancelled), olderThanSeconds)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func marshalNullable(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// rowScanner abstracts pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var status string
	var resultJSON, paramsJSON []byte
	if err := row.Scan(
		&t.ID, &t.Name, &t.Type, &status, &t.Progress, &t.Message, &t.Error,
		&resultJSON, &paramsJSON, &t.CreatedAt, &t.StartedAt, &t.CompletedAt,
		&t.Cancelled, &t.LeaseOwner, &t.LeaseExpiresAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, task.ErrNotFound
		}
		return nil, err
	}
	t.Status = task.Status(status)
	if len(resultJSON) > 0 {
		var r task.Result
		if err := json.Unmarshal(resultJSON, &r); err != nil {
			return nil, err
		}
		t.Result = &r
	}
	if len(paramsJSON) > 0 {
		var p map[string]interface{}
		if err := json.Unmarshal(paramsJSON, &p); err != nil {
			return nil, err
		}
		t.RequestParams = p
	}
	return &t, nil
}
