package steps

import (
	"context"
	"fmt"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

// TranslateStep is the "translate" bundled step: it delegates to an
// injected Translator (the LLM/MT engine, out of scope per spec.md §1).
// Per §4.4 it overwrites srt_path with the translated file so a later
// synthesize step burns in the right subtitles.
type TranslateStep struct {
	Translator     Translator
	TargetLanguage string
	Progress       ProgressReporter
}

func NewTranslateStep(translator Translator, targetLanguage string, progress ProgressReporter) *TranslateStep {
	return &TranslateStep{Translator: translator, TargetLanguage: targetLanguage, Progress: progress}
}

func (s *TranslateStep) Name() string { return "translate" }

func (s *TranslateStep) Execute(ctx context.Context, pctx *task.Context, params map[string]interface{}, taskID string) error {
	srtPath, _ := pctx.Data[task.KeySRTPath].(string)
	if srtPath == "" {
		if v, ok := stringParam(params, "srt_path"); ok {
			srtPath = v
		}
	}
	if srtPath == "" {
		return apperrors.NewValidationError(nil, "translate step requires a prior srt_path in context or an \"srt_path\" param")
	}

	segments, _ := pctx.Data[task.KeySegments].([]Segment)

	targetLanguage := s.TargetLanguage
	if v, ok := stringParam(params, "target_language"); ok && v != "" {
		targetLanguage = v
	}
	if targetLanguage == "" {
		return apperrors.NewValidationError(nil, "translate step requires a target_language")
	}
	if s.Translator == nil {
		return apperrors.NewWorkerError(fmt.Errorf("no translator collaborator configured"), "", false)
	}

	result, err := s.Translator.Translate(ctx, srtPath, segments, targetLanguage, bindProgress(ctx, s.Progress, taskID))
	if err != nil {
		return apperrors.NewWorkerError(err, "", false)
	}

	if result.TranslatedSRTPath != "" {
		pctx.Data[task.KeyTranslatedSRTPath] = result.TranslatedSRTPath
		pctx.Data[task.KeySRTPath] = result.TranslatedSRTPath
	}
	if result.TranslatedSegments != nil {
		pctx.Data[task.KeyTranslatedSegments] = result.TranslatedSegments
	}
	return nil
}
