package steps

import "context"

// ProgressReporter is the slice of the Task Manager a step needs to post
// progress against its own task id (spec.md §4.4: "reports progress
// through the Task Manager when given a task_id").
type ProgressReporter interface {
	UpdateProgress(ctx context.Context, id string, progress float64, message string) error
}

// bindProgress adapts a ProgressReporter+taskID pair into the
// ProgressCallback shape collaborators expect, swallowing reporter
// errors the way the Background Runner's own progress callback does —
// a dropped progress update is not fatal to the step.
func bindProgress(ctx context.Context, reporter ProgressReporter, taskID string) ProgressCallback {
	if reporter == nil || taskID == "" {
		return func(float64, string) {}
	}
	return func(percent float64, message string) {
		_ = reporter.UpdateProgress(ctx, taskID, percent, message)
	}
}

func stringParam(params map[string]interface{}, key string) (string, bool) {
	raw, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}
