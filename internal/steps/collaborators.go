// Package steps implements the bundled Pipeline Steps named in
// SPEC_FULL.md §4.4 (download / transcribe / translate / synthesize),
// each satisfying internal/registry.Step. The concrete media engines
// (ASR, the yt-dlp downloader, the LLM translator) are explicitly
// out-of-scope collaborators per spec.md §1 and §6.3 — download,
// transcribe and translate are therefore thin adapters around an
// injected collaborator interface, grounded on the teacher's own
// pattern of keeping external tool invocations behind a narrow Go
// interface (see internal/ffmpeg.Executor). synthesize is the one step
// this package implements concretely, adapting the teacher's
// internal/ffmpeg.Executor.Mux/Concat for subtitle burn-in, since the
// teacher already ships a full ffmpeg wrapper this repo can reuse
// directly rather than stub behind an interface.
package steps

import "context"

// ProgressCallback is the standard collaborator-facing progress
// signature described in spec.md §6.3.
type ProgressCallback func(percent float64, message string)

// DownloadResult is what a Downloader collaborator returns on success.
type DownloadResult struct {
	VideoPath     string
	MediaFilename string
	Title         string
}

// Downloader is the injected, out-of-scope media-download collaborator
// (the yt-dlp wrapper per spec.md §1).
type Downloader interface {
	Download(ctx context.Context, url string, progress ProgressCallback) (DownloadResult, error)
}

// Segment is one subtitle/transcript segment, shared between transcribe
// and translate.
type Segment struct {
	Start int64  `json:"start_ms"`
	End   int64  `json:"end_ms"`
	Text  string `json:"text"`
}

// TranscriptResult is what a Transcriber collaborator returns.
type TranscriptResult struct {
	Transcript string
	Segments   []Segment
	SRTPath    string
}

// Transcriber is the injected ASR engine collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string, progress ProgressCallback) (TranscriptResult, error)
}

// TranslateResult is what a Translator collaborator returns.
type TranslateResult struct {
	TranslatedSRTPath string
	TranslatedSegments []Segment
}

// Translator is the injected LLM/MT translation collaborator.
type Translator interface {
	Translate(ctx context.Context, srtPath string, segments []Segment, targetLanguage string, progress ProgressCallback) (TranslateResult, error)
}
