package steps

import (
	"fmt"

	"context"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

// TranscribeStep is the "transcribe" bundled step: it delegates to an
// injected Transcriber (the ASR engine, out of scope per spec.md §1)
// and writes transcript/segments/srt_path.
type TranscribeStep struct {
	Transcriber Transcriber
	Progress    ProgressReporter
}

func NewTranscribeStep(transcriber Transcriber, progress ProgressReporter) *TranscribeStep {
	return &TranscribeStep{Transcriber: transcriber, Progress: progress}
}

func (s *TranscribeStep) Name() string { return "transcribe" }

func (s *TranscribeStep) Execute(ctx context.Context, pctx *task.Context, params map[string]interface{}, taskID string) error {
	mediaPath, ok := stringParam(params, "audio_path")
	if !ok || mediaPath == "" {
		if v, ok2 := pctx.Data[task.KeyVideoPath].(string); ok2 && v != "" {
			mediaPath = v
		}
	}
	if mediaPath == "" {
		return apperrors.NewValidationError(nil, "transcribe step requires an \"audio_path\" param or a prior video_path in context")
	}
	if s.Transcriber == nil {
		return apperrors.NewWorkerError(fmt.Errorf("no transcriber collaborator configured"), "", false)
	}

	result, err := s.Transcriber.Transcribe(ctx, mediaPath, bindProgress(ctx, s.Progress, taskID))
	if err != nil {
		return apperrors.NewWorkerError(err, "", false)
	}

	pctx.Data[task.KeyTranscript] = result.Transcript
	pctx.Data[task.KeySegments] = result.Segments
	if result.SRTPath != "" {
		pctx.Data[task.KeySRTPath] = result.SRTPath
	}
	return nil
}
