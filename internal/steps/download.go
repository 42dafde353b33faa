package steps

import (
	"context"
	"fmt"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
)

// DownloadStep is the "download" bundled step (§4.4). It delegates the
// actual fetch to an injected Downloader collaborator — the yt-dlp
// wrapper is explicitly out of scope per spec.md §1 — and writes
// video_path/media_filename/title into the pipeline context.
type DownloadStep struct {
	Downloader Downloader
	Progress   ProgressReporter
}

func NewDownloadStep(downloader Downloader, progress ProgressReporter) *DownloadStep {
	return &DownloadStep{Downloader: downloader, Progress: progress}
}

func (s *DownloadStep) Name() string { return "download" }

func (s *DownloadStep) Execute(ctx context.Context, pctx *task.Context, params map[string]interface{}, taskID string) error {
	url, ok := stringParam(params, "url")
	if !ok || url == "" {
		return apperrors.NewValidationError(nil, "download step requires a non-empty \"url\" param")
	}
	if s.Downloader == nil {
		return apperrors.NewWorkerError(fmt.Errorf("no downloader collaborator configured"), "", false)
	}

	result, err := s.Downloader.Download(ctx, url, bindProgress(ctx, s.Progress, taskID))
	if err != nil {
		return apperrors.NewWorkerError(err, "", false)
	}

	pctx.Data[task.KeyVideoPath] = result.VideoPath
	pctx.Data[task.KeyMediaFilename] = result.MediaFilename
	if result.Title != "" {
		pctx.Data[task.KeyTitle] = result.Title
	}
	return nil
}
