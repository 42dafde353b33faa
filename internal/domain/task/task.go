// Package task defines the Task data model shared by the Task Manager, the
// persistence store, the Notifier wire format, and the pipeline runner.
package task

import "time"

// Status is the task lifecycle state. See the state machine in the
// orchestration core design: pending -> running -> {completed, failed,
// cancelled}, with paused used only for interrupted/resumable tasks.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status will never change without an
// explicit reset.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// FileRef is one output artifact produced by a task.
type FileRef struct {
	Type  string `json:"type"`
	Path  string `json:"path"`
	Label string `json:"label,omitempty"`
}

// Result is the normalized success payload of a completed task.
type Result struct {
	Success bool                   `json:"success"`
	Files   []FileRef              `json:"files,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// Task is an individually addressable unit of work.
type Task struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Type          string                 `json:"type"`
	Status        Status                 `json:"status"`
	Progress      float64                `json:"progress"`
	Message       string                 `json:"message"`
	Error         string                 `json:"error,omitempty"`
	Result        *Result                `json:"result,omitempty"`
	RequestParams map[string]interface{} `json:"request_params,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Cancelled     bool                   `json:"cancelled"`

	// LeaseOwner and LeaseExpiresAt back §12.4's claim semantics: a
	// single active orchestrator still uses them, as the hardening
	// against double-run survives a crash-without-clean-shutdown even
	// with exactly one host.
	LeaseOwner     string     `json:"-"`
	LeaseExpiresAt *time.Time `json:"-"`
}

// Clone returns a deep-enough copy so that callers holding a Task from the
// cache can't mutate the Task Manager's state out from under it.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.RequestParams != nil {
		clone.RequestParams = make(map[string]interface{}, len(t.RequestParams))
		for k, v := range t.RequestParams {
			clone.RequestParams[k] = v
		}
	}
	if t.Result != nil {
		r := *t.Result
		if t.Result.Files != nil {
			r.Files = append([]FileRef(nil), t.Result.Files...)
		}
		if t.Result.Meta != nil {
			r.Meta = make(map[string]interface{}, len(t.Result.Meta))
			for k, v := range t.Result.Meta {
				r.Meta[k] = v
			}
		}
		clone.Result = &r
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		clone.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		clone.CompletedAt = &ts
	}
	return &clone
}

// TraceEntry is one record in a PipelineContext's execution trace.
type TraceEntry struct {
	Step            string    `json:"step"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Context is the mutable bag a Pipeline Runner passes through its steps.
// Steps write to Data; later steps read from it. History and Trace
// accumulate across the whole run and are never shared across runs.
type Context struct {
	Data    map[string]interface{}
	History []string
	Trace   []TraceEntry
}

// NewContext returns a fresh, empty PipelineContext.
func NewContext() *Context {
	return &Context{Data: make(map[string]interface{})}
}

// Canonical PipelineContext keys written/read by the bundled steps.
const (
	KeyVideoPath           = "video_path"
	KeyMediaFilename       = "media_filename"
	KeyTitle               = "title"
	KeySubtitlePath        = "subtitle_path"
	KeySRTPath             = "srt_path"
	KeyTranscript          = "transcript"
	KeySegments            = "segments"
	KeyTranslatedSRTPath   = "translated_srt_path"
	KeyTranslatedSegments  = "translated_segments"
	KeyOutputVideoPath     = "output_video_path"
	KeyOutputDurationSeconds = "output_duration_seconds"
	KeyOutputResolution    = "output_resolution"
	KeyExecutionTraceInMeta = "execution_trace"
)
