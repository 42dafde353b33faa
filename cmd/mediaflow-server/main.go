// Command mediaflow-server is the orchestration core's process entrypoint
// (§10): it wires every collaborator built under internal/ into the
// Service Container, then serves the HTTP/WebSocket surface described in
// §6.1 until told to stop.
//
// The command-line shape follows the teacher's cmd/cobra_cli.go
// conventions (spf13/cobra root command, spf13/viper config binding) —
// narrowed from the teacher's interactive chat-agent CLI down to a single
// long-running "serve" process plus a "version" subcommand, since this
// repo has no REPL surface to drive.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/background"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/config"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/container"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/domain/task"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/ffmpeg"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/httpapi"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/logging"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/metrics"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/notifier"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/pipeline"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/registry"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/steps"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/taskmanager"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/taskstore"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/tracing"
)

const version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "mediaflow-server",
		Short: "MediaFlow task orchestration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().String("listen-addr", "", "Address to listen on (overrides config)")
	root.PersistentFlags().String("database-dsn", "", "Postgres DSN; omit to run on the in-memory store")
	root.PersistentFlags().Int("worker-pool-size", 0, "Background worker pool size (overrides config)")
	root.PersistentFlags().String("otlp-endpoint", "", "OTLP/HTTP trace collector endpoint")

	viper.BindPFlag("listen_addr", root.PersistentFlags().Lookup("listen-addr"))
	viper.BindPFlag("database_dsn", root.PersistentFlags().Lookup("database-dsn"))
	viper.BindPFlag("worker_pool_size", root.PersistentFlags().Lookup("worker-pool-size"))
	viper.BindPFlag("otlp_endpoint", root.PersistentFlags().Lookup("otlp-endpoint"))

	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("mediaflow-server " + version)
		},
	}
}

func runServe(ctx context.Context, configFile string) error {
	overrides := map[string]interface{}{}
	if v := viper.GetString("listen_addr"); v != "" {
		overrides["listen_addr"] = v
	}
	if v := viper.GetString("database_dsn"); v != "" {
		overrides["database_dsn"] = v
	}
	if v := viper.GetInt("worker_pool_size"); v != 0 {
		overrides["worker_pool_size"] = v
	}
	if v := viper.GetString("otlp_endpoint"); v != "" {
		overrides["otlp_endpoint"] = v
	}

	opts := []config.Option{config.WithOverrides(overrides)}
	if configFile != "" {
		opts = append([]config.Option{config.WithFile(configFile)}, opts...)
	}
	cfg, meta, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	handler := logging.NewDefaultHandler(level, cfg.LogFormat == "json")
	logger := logging.NewComponentLoggerWithHandler("mediaflow-server", handler)
	logger.Info("config loaded: listen_addr source=%s database_dsn source=%s worker_pool_size source=%s",
		meta.Sources["listen_addr"], meta.Sources["database_dsn"], meta.Sources["worker_pool_size"])

	tp, err := tracing.Init(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	metricsCollector := metrics.NewOrchestrationMetrics()

	c := container.New(logger)
	registerAll(c, cfg, logger, metricsCollector, tp)

	if _, err := c.Get("tracingProvider"); err != nil {
		return err
	}
	if _, err := c.Get("metrics"); err != nil {
		return err
	}
	if _, err := c.Get("taskStore"); err != nil {
		return err
	}

	runnerVal, err := c.Get("pipelineRunner")
	if err != nil {
		return err
	}
	runner := runnerVal.(*pipeline.Runner)

	mgrVal, err := c.Get("taskManager")
	if err != nil {
		return err
	}
	mgr := mgrVal.(*taskmanager.Manager)

	notifierVal, err := c.Get("notifier")
	if err != nil {
		return err
	}
	notif := notifierVal.(*notifier.Notifier)
	mgr.SetNotifier(notif)

	backgroundVal, err := c.Get("backgroundRunner")
	if err != nil {
		return err
	}
	bg := backgroundVal.(*background.Runner)

	handlersVal, err := c.Get("handlerRegistry")
	if err != nil {
		return err
	}
	handlers := handlersVal.(*registry.HandlerRegistry)

	if err := mgr.Recover(ctx); err != nil {
		return fmt.Errorf("recovering tasks: %w", err)
	}

	sweepStop := make(chan struct{})
	go runStaleSweep(ctx, mgr, cfg, sweepStop)

	router := httpapi.NewRouter(httpapi.Deps{
		Manager:    mgr,
		Notifier:   notif,
		Pipeline:   runner,
		Background: bg,
		Handlers:   handlers,
		Logger:     logger,
	}, httpapi.Config{})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	serveErrs := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrs <- err
		}
		close(serveErrs)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErrs:
		if err != nil {
			logger.Error("server stopped unexpectedly: %v", err)
		}
	}

	close(sweepStop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed: %v", err)
	}
	if err := c.Shutdown(); err != nil {
		logger.Error("container shutdown failed: %v", err)
	}
	return nil
}

// registerAll names every collaborator required at runtime before the
// HTTP server starts serving traffic (§4.3's register_all_services).
func registerAll(c *container.Container, cfg config.RuntimeConfig, logger logging.Logger, metricsCollector *metrics.OrchestrationMetrics, tp *tracing.Provider) {
	c.Register("tracingProvider", func() (interface{}, error) {
		return tp, nil
	})
	c.Register("metrics", func() (interface{}, error) {
		return metricsCollector, nil
	})

	c.Register("taskStore", func() (interface{}, error) {
		if cfg.DatabaseDSN == "" {
			return taskstore.NewMemStore(), nil
		}
		poolCfg := taskstore.DefaultPoolConfig(cfg.DatabaseDSN)
		poolCfg.MaxConns = cfg.DatabaseMaxConns
		poolCfg.MinConns = cfg.DatabaseMinConns
		poolCfg.MaxConnLifetime = cfg.DatabaseMaxConnLife
		poolCfg.MaxConnIdleTime = cfg.DatabaseMaxConnIdle
		pool, err := taskstore.NewPool(context.Background(), poolCfg)
		if err != nil {
			return nil, err
		}
		store := taskstore.NewStore(pool)
		if err := store.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	})

	c.Register("taskManager", func() (interface{}, error) {
		storeVal, err := c.Get("taskStore")
		if err != nil {
			return nil, err
		}
		return taskmanager.New(storeVal.(task.Store), logger)
	})

	c.Register("notifier", func() (interface{}, error) {
		return notifier.New(logger), nil
	})

	c.Register("stepRegistry", func() (interface{}, error) {
		reg := registry.NewStepRegistry()
		executor := &ffmpeg.LocalExecutor{Binary: cfg.FFmpegBinary, Logger: slog.Default()}
		prober := &ffmpeg.LocalProber{Binary: probeBinaryFor(cfg.FFmpegBinary), Logger: slog.Default()}

		presets := loadPresetLibrary(cfg.FFmpegPresetFile, logger)
		preset, ok := presets.Get(cfg.FFmpegPresetName)
		if !ok {
			preset = ffmpeg.Preset{VideoCodec: "libx264", AudioCodec: "aac"}
		}

		reg.Register(steps.NewDownloadStep(&unconfiguredDownloader{ytdlpBinary: cfg.YtDlpBinary}, nil))
		reg.Register(steps.NewTranscribeStep(&unconfiguredTranscriber{}, nil))
		reg.Register(steps.NewTranslateStep(&unconfiguredTranslator{}, "en", nil))
		reg.Register(steps.NewSynthesizeStep(executor, preset, nil).WithProber(prober))
		return reg, nil
	})

	c.Register("handlerRegistry", func() (interface{}, error) {
		runnerVal, err := c.Get("pipelineRunner")
		if err != nil {
			return nil, err
		}
		handlers := registry.NewHandlerRegistry()
		handlers.Register("pipeline", &pipelineResumeHandler{runner: runnerVal.(*pipeline.Runner)})
		return handlers, nil
	})

	c.Register("pipelineRunner", func() (interface{}, error) {
		stepsVal, err := c.Get("stepRegistry")
		if err != nil {
			return nil, err
		}
		mgrVal, err := c.Get("taskManager")
		if err != nil {
			return nil, err
		}
		return pipeline.NewRunner(stepsVal.(*registry.StepRegistry), mgrVal.(*taskmanager.Manager), logger), nil
	})

	c.Register("backgroundRunner", func() (interface{}, error) {
		mgrVal, err := c.Get("taskManager")
		if err != nil {
			return nil, err
		}
		return background.New(mgrVal.(*taskmanager.Manager), int64(cfg.WorkerPoolSize), logger), nil
	})
}

// probeBinaryFor derives the conventional ffprobe binary name from the
// configured ffmpeg binary (e.g. "/usr/bin/ffmpeg" -> "/usr/bin/ffprobe"),
// falling back to the bare "ffprobe" on PATH.
func probeBinaryFor(ffmpegBinary string) string {
	if ffmpegBinary == "" || ffmpegBinary == "ffmpeg" {
		return "ffprobe"
	}
	dir := filepath.Dir(ffmpegBinary)
	if dir == "." {
		return "ffprobe"
	}
	return filepath.Join(dir, "ffprobe")
}

func loadPresetLibrary(path string, logger logging.Logger) *ffmpeg.PresetLibrary {
	if path == "" {
		return ffmpeg.EmptyPresetLibrary()
	}
	library, err := ffmpeg.LoadPresetFile(path)
	if err != nil {
		logger.Warn("synthesize: loading preset file %s failed, using defaults: %v", path, err)
		return ffmpeg.EmptyPresetLibrary()
	}
	return library
}

func runStaleSweep(ctx context.Context, mgr *taskmanager.Manager, cfg config.RuntimeConfig, stop <-chan struct{}) {
	ticker := time.NewTicker(cfg.StaleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			mgr.SweepStale(ctx, cfg.TaskRetentionSeconds)
		}
	}
}

// pipelineResumeHandler implements registry.Handler by replaying the
// steps recorded in a task's RequestParams (§4.5 step 4's "generic
// pipeline handler" fallback).
type pipelineResumeHandler struct {
	runner *pipeline.Runner
}

func (h *pipelineResumeHandler) Resume(ctx context.Context, t *task.Task) error {
	stepRequests, err := decodeStepRequests(t.RequestParams)
	if err != nil {
		return err
	}
	go func() {
		if err := h.runner.Run(context.Background(), t.ID, stepRequests); err != nil {
			logging.NewComponentLogger("pipelineResumeHandler").Warn("resumed run for task %s ended with error: %v", t.ID, err)
		}
	}()
	return nil
}

func decodeStepRequests(params map[string]interface{}) ([]pipeline.StepRequest, error) {
	raw, ok := params["steps"]
	if !ok {
		return []pipeline.StepRequest{{StepName: stepNameFromParams(params), Params: params}}, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, apperrors.NewValidationError(nil, "request_params.steps must be an array to resume")
	}
	requests := make([]pipeline.StepRequest, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, apperrors.NewValidationError(nil, "each resumed step must be an object")
		}
		name, _ := m["step_name"].(string)
		if name == "" {
			return nil, apperrors.NewValidationError(nil, "each resumed step requires a step_name")
		}
		stepParams, _ := m["params"].(map[string]interface{})
		requests = append(requests, pipeline.StepRequest{StepName: name, Params: stepParams})
	}
	return requests, nil
}

func stepNameFromParams(params map[string]interface{}) string {
	if name, ok := params["step_name"].(string); ok && name != "" {
		return name
	}
	return "pipeline"
}

// unconfiguredDownloader/Transcriber/Translator stand in for the ASR,
// yt-dlp, and LLM-translation engines spec.md §1/§6.3 declare out of
// scope: every call fails with a non-transient (not retried) WorkerError
// until a real collaborator is wired in their place.
type unconfiguredDownloader struct{ ytdlpBinary string }

func (d *unconfiguredDownloader) Download(ctx context.Context, url string, progress steps.ProgressCallback) (steps.DownloadResult, error) {
	return steps.DownloadResult{}, apperrors.NewWorkerError(
		fmt.Errorf("no download collaborator configured (expected a %s-backed downloader)", d.ytdlpBinary),
		"", false)
}

type unconfiguredTranscriber struct{}

func (t *unconfiguredTranscriber) Transcribe(ctx context.Context, mediaPath string, progress steps.ProgressCallback) (steps.TranscriptResult, error) {
	return steps.TranscriptResult{}, apperrors.NewWorkerError(errors.New("no transcription collaborator configured"), "", false)
}

type unconfiguredTranslator struct{}

func (t *unconfiguredTranslator) Translate(ctx context.Context, srtPath string, segments []steps.Segment, targetLanguage string, progress steps.ProgressCallback) (steps.TranslateResult, error) {
	return steps.TranslateResult{}, apperrors.NewWorkerError(errors.New("no translation collaborator configured"), "", false)
}
