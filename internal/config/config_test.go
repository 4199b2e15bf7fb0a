package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"project_name":"demo","settings":{"thread_mode":"heavy"}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.ProjectName)
	require.Equal(t, "heavy", string(cfg.Settings.ThreadMode))
	require.Equal(t, "en", cfg.Language) // untouched default survives the overlay
	require.Equal(t, 2000, cfg.Settings.TokenLimits.Recall)
}

func TestValidateRejectsUnknownLanguage(t *testing.T) {
	cfg := Default()
	cfg.Language = "de"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownThreadMode(t *testing.T) {
	cfg := Default()
	cfg.Settings.ThreadMode = "extreme"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadTuning(t *testing.T) {
	cfg := Default()
	cfg.Tuning.ContinueThreshold = 1.5
	require.Error(t, cfg.Validate())
}

func TestQuotaPrefersExplicitOverride(t *testing.T) {
	cfg := Default()
	cfg.Settings.ThreadMode = "normal"
	require.Equal(t, 50, cfg.Quota())

	cfg.Settings.ActiveThreadsLimit = 7
	require.Equal(t, 7, cfg.Quota())
}
