// Package pipeline implements the Pipeline Runner (§4.7), tracing each
// step with go.opentelemetry.io/otel the way internal/di/container_builder.go
// tags its resource-construction steps (a span/trace-entry per named
// stage), generalized onto pipeline execution instead of DI construction.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/logging"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/registry"
)

// TaskUpdater is the slice of the Task Manager the runner needs: update
// status/message and poll cancellation.
type TaskUpdater interface {
	Update(ctx context.Context, id string, status task.Status, opts ...task.TransitionOption) error
	IsCancelled(ctx context.Context, id string) bool
}

// StepRequest is one entry of a pipeline submission's `steps` list
// (§6.1 "Submit pipeline").
type StepRequest struct {
	StepName string
	Params   map[string]interface{}
}

var tracer = otel.Tracer("mediaflow/pipeline")

// Runner executes an ordered list of Pipeline Step requests against a
// fresh PipelineContext for a given task id (§4.7).
type Runner struct {
	steps   *registry.StepRegistry
	tasks   TaskUpdater
	logger  logging.Logger
}

func NewRunner(steps *registry.StepRegistry, tasks TaskUpdater, logger logging.Logger) *Runner {
	return &Runner{steps: steps, tasks: tasks, logger: logging.OrNop(logger)}
}

// Run executes steps in order against taskID, per the §4.7 algorithm.
func (r *Runner) Run(ctx context.Context, taskID string, steps []StepRequest) error {
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	pctx := task.NewContext()
	if err := r.tasks.Update(ctx, taskID, task.StatusRunning, task.WithMessage("Starting pipeline...")); err != nil {
		return err
	}

	for _, reqStep := range steps {
		if r.tasks.IsCancelled(ctx, taskID) {
			cancelErr := apperrors.NewCancellationError("cancelled before step " + reqStep.StepName)
			_ = r.tasks.Update(ctx, taskID, task.StatusCancelled, task.WithMessage(cancelErr.Error()))
			return cancelErr
		}

		if err := r.tasks.Update(ctx, taskID, task.StatusRunning, task.WithMessage("Executing step: "+reqStep.StepName)); err != nil {
			return err
		}

		step, err := r.steps.Get(reqStep.StepName)
		if err != nil {
			_ = r.tasks.Update(ctx, taskID, task.StatusFailed, task.WithError(err.Error()), task.WithMessage(err.Error()))
			return err
		}

		start := time.Now()
		stepCtx, stepSpan := tracer.Start(ctx, "pipeline.step."+reqStep.StepName)
		execErr := step.Execute(stepCtx, pctx, reqStep.Params, taskID)
		stepSpan.End()
		elapsed := time.Since(start).Seconds()

		entry := task.TraceEntry{Step: reqStep.StepName, DurationSeconds: elapsed, Timestamp: time.Now()}
		if execErr != nil {
			entry.Status = "failed"
			entry.Error = execErr.Error()
			pctx.Trace = append(pctx.Trace, entry)

			if apperrors.IsCancellation(execErr) {
				_ = r.tasks.Update(ctx, taskID, task.StatusCancelled, task.WithMessage(execErr.Error()))
			} else {
				_ = r.tasks.Update(ctx, taskID, task.StatusFailed, task.WithError(execErr.Error()), task.WithMessage(execErr.Error()))
			}
			return execErr
		}

		entry.Status = "success"
		pctx.Trace = append(pctx.Trace, entry)
		pctx.History = append(pctx.History, reqStep.StepName)
	}

	result := BuildResult(pctx)
	return r.tasks.Update(ctx, taskID, task.StatusCompleted,
		task.WithProgress(100),
		task.WithMessage("Pipeline completed"),
		task.WithResult(result),
	)
}

// BuildResult normalizes a PipelineContext into the task.Result shape
// (§4.7 "Result Construction"): ctx.Data becomes meta (coercing non-JSON-
// safe values to strings), execution_trace is merged in, and well-known
// context keys are translated into FileRef entries.
func BuildResult(pctx *task.Context) *task.Result {
	meta := make(map[string]interface{}, len(pctx.Data)+1)
	for k, v := range pctx.Data {
		meta[k] = coerceJSONSafe(v)
	}
	meta[task.KeyExecutionTraceInMeta] = pctx.Trace

	var files []task.FileRef
	if v, ok := stringValue(pctx.Data, task.KeyOutputVideoPath); ok {
		files = append(files, task.FileRef{Type: "video", Path: v})
	} else if v, ok := stringValue(pctx.Data, task.KeyVideoPath); ok {
		files = append(files, task.FileRef{Type: "video", Path: v})
	}
	if v, ok := stringValue(pctx.Data, task.KeyTranslatedSRTPath); ok {
		files = append(files, task.FileRef{Type: "subtitle", Path: v})
	} else if v, ok := stringValue(pctx.Data, task.KeySRTPath); ok {
		files = append(files, task.FileRef{Type: "subtitle", Path: v})
	}

	return &task.Result{Success: true, Files: files, Meta: meta}
}

func stringValue(data map[string]interface{}, key string) (string, bool) {
	raw, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// coerceJSONSafe stringifies values that don't round-trip cleanly through
// JSON (e.g. errors, time.Time left bare), per §4.7's "non-JSON-safe
// values coerced to strings".
func coerceJSONSafe(v interface{}) interface{} {
	switch v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64,
		[]interface{}, map[string]interface{}:
		return v
	case error, fmt.Stringer:
		return fmt.Sprintf("%v", v)
	}
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	return fmt.Sprintf("%v", v)
}
