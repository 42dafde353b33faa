package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

type fakeStep struct{ name string }

func (f fakeStep) Name() string { return f.name }
func (f fakeStep) Execute(ctx context.Context, pctx *task.Context, params map[string]interface{}, taskID string) error {
	return nil
}

func TestStepRegistryGetMissReturnsNotFound(t *testing.T) {
	r := NewStepRegistry()
	_, err := r.Get("missing")
	require.True(t, apperrors.IsNotFound(err))
}

func TestStepRegistryRegisterAndGet(t *testing.T) {
	r := NewStepRegistry()
	r.Register(fakeStep{name: "download"})
	step, err := r.Get("download")
	require.NoError(t, err)
	require.Equal(t, "download", step.Name())
}

type fakeHandler struct{ calls int }

func (f *fakeHandler) Resume(ctx context.Context, t *task.Task) error {
	f.calls++
	return nil
}

func TestHandlerRegistryFallsBackToPipeline(t *testing.T) {
	r := NewHandlerRegistry()
	fallback := &fakeHandler{}
	r.Register("pipeline", fallback)

	h, err := r.Get("transcribe")
	require.NoError(t, err)
	require.Same(t, fallback, h)
}

func TestHandlerRegistryNoFallbackIsNotFound(t *testing.T) {
	r := NewHandlerRegistry()
	_, err := r.Get("transcribe")
	require.True(t, apperrors.IsNotFound(err))
}

func TestHandlerRegistryExactMatchWins(t *testing.T) {
	r := NewHandlerRegistry()
	fallback := &fakeHandler{}
	specific := &fakeHandler{}
	r.Register("pipeline", fallback)
	r.Register("transcribe", specific)

	h, err := r.Get("transcribe")
	require.NoError(t, err)
	require.Same(t, specific, h)
}
