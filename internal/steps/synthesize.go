package steps

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/ffmpeg"
)

// SynthesizeStep is the "synthesize" bundled step: subtitle burn-in,
// adapted directly from the teacher's internal/ffmpeg.Executor rather
// than hidden behind an injected collaborator, since the teacher
// already ships a complete local ffmpeg wrapper this repo can drive
// concretely. It burns whatever srt_path is current in the pipeline
// context (translate overwrites it per §4.4) onto video_path, writing
// the result to output_video_path.
type SynthesizeStep struct {
	Executor ffmpeg.Executor
	Prober   ffmpeg.Prober
	Progress ProgressReporter
	Preset   ffmpeg.Preset
}

func NewSynthesizeStep(executor ffmpeg.Executor, preset ffmpeg.Preset, progress ProgressReporter) *SynthesizeStep {
	return &SynthesizeStep{Executor: executor, Preset: preset, Progress: progress}
}

// WithProber attaches an optional post-synthesis probe: when set, Execute
// records the rendered output's duration and resolution into the
// pipeline context instead of leaving callers to re-derive them.
func (s *SynthesizeStep) WithProber(prober ffmpeg.Prober) *SynthesizeStep {
	s.Prober = prober
	return s
}

func (s *SynthesizeStep) Name() string { return "synthesize" }

func (s *SynthesizeStep) Execute(ctx context.Context, pctx *task.Context, params map[string]interface{}, taskID string) error {
	videoPath, _ := pctx.Data[task.KeyVideoPath].(string)
	if videoPath == "" {
		if v, ok := stringParam(params, "video_path"); ok {
			videoPath = v
		}
	}
	if videoPath == "" {
		return apperrors.NewValidationError(nil, "synthesize step requires a prior video_path in context or a \"video_path\" param")
	}

	srtPath, _ := pctx.Data[task.KeySRTPath].(string)
	if srtPath == "" {
		if v, ok := stringParam(params, "srt_path"); ok {
			srtPath = v
		}
	}
	if s.Executor == nil {
		return apperrors.NewWorkerError(fmt.Errorf("no ffmpeg executor configured"), "", false)
	}

	progress := bindProgress(ctx, s.Progress, taskID)
	progress(10, "Preparing subtitle burn-in")

	outputPath := outputPathFor(videoPath)
	job := ffmpeg.ConcatJob{
		Inputs:     []string{videoPath},
		Output:     outputPath,
		VideoCodec: defaultString(s.Preset.VideoCodec, "libx264"),
		AudioCodec: defaultString(s.Preset.AudioCodec, "aac"),
		ExtraArgs:  s.Preset.Args(),
		Overwrite:  true,
	}
	if srtPath != "" {
		job.FilterGraph = fmt.Sprintf("subtitles='%s'", escapeFilterPath(srtPath))
	}

	if err := s.Executor.Concat(ctx, job); err != nil {
		return apperrors.NewWorkerError(fmt.Errorf("synthesize: burning subtitles: %w", err), "", true)
	}
	progress(90, "Subtitle burn-in complete")

	pctx.Data[task.KeyOutputVideoPath] = outputPath

	if s.Prober != nil {
		if result, err := s.Prober.Probe(ctx, outputPath); err == nil {
			pctx.Data[task.KeyOutputDurationSeconds] = result.Duration.Seconds()
			if stream, ok := result.FirstVideo(); ok {
				pctx.Data[task.KeyOutputResolution] = fmt.Sprintf("%dx%d", stream.Width, stream.Height)
			}
		}
	}
	return nil
}

func outputPathFor(videoPath string) string {
	ext := filepath.Ext(videoPath)
	base := strings.TrimSuffix(videoPath, ext)
	return base + ".synthesized" + ext
}

func escapeFilterPath(path string) string {
	// ffmpeg's filtergraph parser treats ':' and '\' specially inside a
	// quoted filter argument.
	replacer := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return replacer.Replace(path)
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
