package steps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/ffmpeg"
)

type fakeProgress struct {
	calls []string
}

func (f *fakeProgress) UpdateProgress(ctx context.Context, id string, progress float64, message string) error {
	f.calls = append(f.calls, message)
	return nil
}

type fakeDownloader struct {
	result DownloadResult
	err    error
}

func (f *fakeDownloader) Download(ctx context.Context, url string, progress ProgressCallback) (DownloadResult, error) {
	progress(50, "fetching")
	return f.result, f.err
}

func TestDownloadStepWritesContextKeys(t *testing.T) {
	reporter := &fakeProgress{}
	step := NewDownloadStep(&fakeDownloader{result: DownloadResult{VideoPath: "/v.mp4", MediaFilename: "v.mp4", Title: "clip"}}, reporter)
	pctx := task.NewContext()

	err := step.Execute(context.Background(), pctx, map[string]interface{}{"url": "https://example.com/x"}, "t1")
	require.NoError(t, err)
	require.Equal(t, "/v.mp4", pctx.Data[task.KeyVideoPath])
	require.Equal(t, "clip", pctx.Data[task.KeyTitle])
	require.NotEmpty(t, reporter.calls)
}

func TestDownloadStepMissingURLIsValidationError(t *testing.T) {
	step := NewDownloadStep(&fakeDownloader{}, nil)
	err := step.Execute(context.Background(), task.NewContext(), map[string]interface{}{}, "t1")
	require.True(t, apperrors.IsValidation(err))
}

type fakeTranscriber struct {
	result TranscriptResult
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, mediaPath string, progress ProgressCallback) (TranscriptResult, error) {
	return f.result, nil
}

func TestTranscribeStepFallsBackToVideoPathFromContext(t *testing.T) {
	step := NewTranscribeStep(&fakeTranscriber{result: TranscriptResult{Transcript: "hello", SRTPath: "/a.srt"}}, nil)
	pctx := task.NewContext()
	pctx.Data[task.KeyVideoPath] = "/v.mp4"

	err := step.Execute(context.Background(), pctx, map[string]interface{}{}, "t1")
	require.NoError(t, err)
	require.Equal(t, "hello", pctx.Data[task.KeyTranscript])
	require.Equal(t, "/a.srt", pctx.Data[task.KeySRTPath])
}

type fakeTranslator struct {
	result TranslateResult
}

func (f *fakeTranslator) Translate(ctx context.Context, srtPath string, segments []Segment, targetLanguage string, progress ProgressCallback) (TranslateResult, error) {
	return f.result, nil
}

func TestTranslateStepOverwritesSRTPath(t *testing.T) {
	step := NewTranslateStep(&fakeTranslator{result: TranslateResult{TranslatedSRTPath: "/a.zh.srt"}}, "zh", nil)
	pctx := task.NewContext()
	pctx.Data[task.KeySRTPath] = "/a.srt"

	err := step.Execute(context.Background(), pctx, map[string]interface{}{}, "t1")
	require.NoError(t, err)
	require.Equal(t, "/a.zh.srt", pctx.Data[task.KeySRTPath])
	require.Equal(t, "/a.zh.srt", pctx.Data[task.KeyTranslatedSRTPath])
}

func TestTranslateStepRequiresSRTPath(t *testing.T) {
	step := NewTranslateStep(&fakeTranslator{}, "zh", nil)
	err := step.Execute(context.Background(), task.NewContext(), map[string]interface{}{}, "t1")
	require.True(t, apperrors.IsValidation(err))
}

type fakeExecutor struct {
	concatJob ffmpeg.ConcatJob
	err       error
}

func (f *fakeExecutor) Concat(ctx context.Context, job ffmpeg.ConcatJob) error {
	f.concatJob = job
	return f.err
}
func (f *fakeExecutor) Mux(ctx context.Context, job ffmpeg.MuxJob) error { return nil }
func (f *fakeExecutor) Run(ctx context.Context, args []string) error    { return nil }
func (f *fakeExecutor) RunWithOutput(ctx context.Context, args []string) (string, error) {
	return "", nil
}

func TestSynthesizeStepBurnsSubtitlesAndSetsOutputPath(t *testing.T) {
	executor := &fakeExecutor{}
	step := NewSynthesizeStep(executor, ffmpeg.Preset{}, nil)
	pctx := task.NewContext()
	pctx.Data[task.KeyVideoPath] = "/v.mp4"
	pctx.Data[task.KeySRTPath] = "/a.srt"

	err := step.Execute(context.Background(), pctx, map[string]interface{}{}, "t1")
	require.NoError(t, err)
	require.Equal(t, "/v.synthesized.mp4", pctx.Data[task.KeyOutputVideoPath])
	require.Contains(t, executor.concatJob.FilterGraph, "subtitles=")
}

func TestSynthesizeStepPropagatesExecutorFailureAsTransientWorkerError(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("ffmpeg exploded")}
	step := NewSynthesizeStep(executor, ffmpeg.Preset{}, nil)
	pctx := task.NewContext()
	pctx.Data[task.KeyVideoPath] = "/v.mp4"

	err := step.Execute(context.Background(), pctx, map[string]interface{}{}, "t1")
	require.True(t, apperrors.IsRetryable(err))
}

type fakeProber struct {
	result ffmpeg.ProbeResult
	err    error
}

func (f *fakeProber) Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error) {
	return f.result, f.err
}

func TestSynthesizeStepRecordsProbedDurationAndResolution(t *testing.T) {
	executor := &fakeExecutor{}
	prober := &fakeProber{result: ffmpeg.ProbeResult{
		Duration:     90 * time.Second,
		VideoStreams: []ffmpeg.VideoStream{{Width: 1920, Height: 1080}},
	}}
	step := NewSynthesizeStep(executor, ffmpeg.Preset{}, nil).WithProber(prober)
	pctx := task.NewContext()
	pctx.Data[task.KeyVideoPath] = "/v.mp4"

	err := step.Execute(context.Background(), pctx, map[string]interface{}{}, "t1")
	require.NoError(t, err)
	require.Equal(t, 90.0, pctx.Data[task.KeyOutputDurationSeconds])
	require.Equal(t, "1920x1080", pctx.Data[task.KeyOutputResolution])
}

func TestSynthesizeStepIgnoresProbeFailure(t *testing.T) {
	executor := &fakeExecutor{}
	prober := &fakeProber{err: errors.New("ffprobe not found")}
	step := NewSynthesizeStep(executor, ffmpeg.Preset{}, nil).WithProber(prober)
	pctx := task.NewContext()
	pctx.Data[task.KeyVideoPath] = "/v.mp4"

	err := step.Execute(context.Background(), pctx, map[string]interface{}{}, "t1")
	require.NoError(t, err)
	require.NotContains(t, pctx.Data, task.KeyOutputDurationSeconds)
	require.NotContains(t, pctx.Data, task.KeyOutputResolution)
}
