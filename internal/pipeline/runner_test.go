package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/registry"
)

type fakeTaskUpdater struct {
	updates   []task.Status
	cancelled bool
	lastOpts  [][]task.TransitionOption
}

func (f *fakeTaskUpdater) Update(ctx context.Context, id string, status task.Status, opts ...task.TransitionOption) error {
	f.updates = append(f.updates, status)
	f.lastOpts = append(f.lastOpts, opts)
	return nil
}

func (f *fakeTaskUpdater) IsCancelled(ctx context.Context, id string) bool { return f.cancelled }

type scriptedStep struct {
	name    string
	writes  map[string]interface{}
	failErr error
}

func (s scriptedStep) Name() string { return s.name }
func (s scriptedStep) Execute(ctx context.Context, pctx *task.Context, params map[string]interface{}, taskID string) error {
	if s.failErr != nil {
		return s.failErr
	}
	for k, v := range s.writes {
		pctx.Data[k] = v
	}
	return nil
}

func TestRunnerEmptyStepsCompletesImmediately(t *testing.T) {
	steps := registry.NewStepRegistry()
	updater := &fakeTaskUpdater{}
	runner := NewRunner(steps, updater, nil)

	err := runner.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	require.Equal(t, []task.Status{task.StatusRunning, task.StatusCompleted}, updater.updates)
}

func TestRunnerBuildsFileRefsFromWellKnownKeys(t *testing.T) {
	reg := registry.NewStepRegistry()
	reg.Register(scriptedStep{name: "download", writes: map[string]interface{}{task.KeyVideoPath: "/a.mp4"}})
	reg.Register(scriptedStep{name: "transcribe", writes: map[string]interface{}{task.KeySRTPath: "/a.srt"}})
	updater := &fakeTaskUpdater{}
	runner := NewRunner(reg, updater, nil)

	err := runner.Run(context.Background(), "t1", []StepRequest{{StepName: "download"}, {StepName: "transcribe"}})
	require.NoError(t, err)

	last := updater.lastOpts[len(updater.lastOpts)-1]
	_, _, result, _, _ := task.ApplyTransitionOptions(last...)
	require.NotNil(t, result)
	require.True(t, result.Success)
	require.Contains(t, result.Files, task.FileRef{Type: "video", Path: "/a.mp4"})
	require.Contains(t, result.Files, task.FileRef{Type: "subtitle", Path: "/a.srt"})
}

func TestRunnerStepFailureIsFatal(t *testing.T) {
	reg := registry.NewStepRegistry()
	reg.Register(scriptedStep{name: "download", failErr: errors.New("boom")})
	reg.Register(scriptedStep{name: "transcribe"})
	updater := &fakeTaskUpdater{}
	runner := NewRunner(reg, updater, nil)

	err := runner.Run(context.Background(), "t1", []StepRequest{{StepName: "download"}, {StepName: "transcribe"}})
	require.Error(t, err)
	require.Equal(t, []task.Status{task.StatusRunning, task.StatusRunning, task.StatusFailed}, updater.updates)
}

func TestRunnerCancellationBetweenStepsStopsPipeline(t *testing.T) {
	reg := registry.NewStepRegistry()
	calls := 0
	reg.Register(scriptedStep{name: "download"})
	reg.Register(fakeTranscribe{onCall: func() { calls++ }})
	updater := &fakeTaskUpdater{}
	runner := NewRunner(reg, updater, nil)

	updater.cancelled = true
	err := runner.Run(context.Background(), "t1", []StepRequest{{StepName: "download"}, {StepName: "transcribe"}})
	require.True(t, apperrors.IsCancellation(err))
	require.Equal(t, 0, calls)
	require.Contains(t, updater.updates, task.StatusCancelled)
}

type fakeTranscribe struct{ onCall func() }

func (f fakeTranscribe) Name() string { return "transcribe" }
func (f fakeTranscribe) Execute(ctx context.Context, pctx *task.Context, params map[string]interface{}, taskID string) error {
	f.onCall()
	return nil
}

func TestRunnerUnknownStepFailsTask(t *testing.T) {
	reg := registry.NewStepRegistry()
	updater := &fakeTaskUpdater{}
	runner := NewRunner(reg, updater, nil)

	err := runner.Run(context.Background(), "t1", []StepRequest{{StepName: "nope"}})
	require.True(t, apperrors.IsNotFound(err))
	require.Contains(t, updater.updates, task.StatusFailed)
}
