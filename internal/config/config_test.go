package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoLayersApply(t *testing.T) {
	cfg, meta, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 4, cfg.WorkerPoolSize)
	require.Equal(t, SourceDefault, meta.Sources["listen_addr"])
}

func TestLoadFileLayerOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediaflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9090\"\nworker_pool_size: 8\n"), 0o644))

	cfg, meta, err := Load(WithFile(path), WithEnv(map[string]string{}))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddr)
	require.Equal(t, 8, cfg.WorkerPoolSize)
	require.Equal(t, SourceFile, meta.Sources["listen_addr"])
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, _, err := Load(WithFile("/nonexistent/mediaflow.yaml"), WithEnv(map[string]string{}))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoadEnvLayerOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediaflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9090\"\n"), 0o644))

	cfg, meta, err := Load(WithFile(path), WithEnv(map[string]string{
		"MEDIAFLOW_LISTEN_ADDR": ":7070",
	}))
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.ListenAddr)
	require.Equal(t, SourceEnv, meta.Sources["listen_addr"])
}

func TestLoadOverridesWinOverEverything(t *testing.T) {
	cfg, meta, err := Load(
		WithEnv(map[string]string{"MEDIAFLOW_LISTEN_ADDR": ":7070"}),
		WithOverrides(map[string]interface{}{"listen_addr": ":6060"}),
	)
	require.NoError(t, err)
	require.Equal(t, ":6060", cfg.ListenAddr)
	require.Equal(t, SourceFlag, meta.Sources["listen_addr"])
}

func TestLoadUnknownOverrideFieldIsAnError(t *testing.T) {
	_, _, err := Load(WithOverrides(map[string]interface{}{"nonexistent_field": "x"}))
	require.Error(t, err)
}

func TestLoadOverrideWrongTypeIsAnError(t *testing.T) {
	_, _, err := Load(WithOverrides(map[string]interface{}{"worker_pool_size": "eight"}))
	require.Error(t, err)
}

func TestNormalizeClampsNonPositiveWorkerPoolSize(t *testing.T) {
	cfg, _, err := Load(WithEnv(map[string]string{"MEDIAFLOW_WORKER_POOL_SIZE": "-3"}), WithOverrides(map[string]interface{}{}))
	require.NoError(t, err)
	require.Equal(t, 1, cfg.WorkerPoolSize)
}

func TestEnvPresetFieldsAreRecordedWithProvenance(t *testing.T) {
	cfg, meta, err := Load(WithEnv(map[string]string{
		"MEDIAFLOW_FFMPEG_PRESET_FILE": "/etc/mediaflow/presets.yaml",
		"MEDIAFLOW_FFMPEG_PRESET_NAME": "fast-1080p",
	}))
	require.NoError(t, err)
	require.Equal(t, "/etc/mediaflow/presets.yaml", cfg.FFmpegPresetFile)
	require.Equal(t, "fast-1080p", cfg.FFmpegPresetName)
	require.Equal(t, SourceEnv, meta.Sources["ffmpeg_preset_file"])
}
