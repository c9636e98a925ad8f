package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("STUMP_CONFIG_DIR", tmpDir)
	t.Setenv("CONFIG_FILE", "/nonexistent/shisho.yaml")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.DatabaseConnectRetryCount)
	assert.Equal(t, 2*time.Second, cfg.DatabaseConnectRetryDelay)
	assert.False(t, cfg.DatabaseDebug)
	assert.Equal(t, 2, cfg.WorkerProcesses)
	assert.Equal(t, 3*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 60*time.Second, cfg.SessionExpiryCleanupInterval)
	assert.Equal(t, 12, cfg.HashCost)
	assert.False(t, cfg.ForceResetDB)
}

func TestNew_ConfigDirDerivedPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("STUMP_CONFIG_DIR", tmpDir)
	t.Setenv("CONFIG_FILE", "/nonexistent/shisho.yaml")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, tmpDir, cfg.ConfigDir)
	assert.Equal(t, filepath.Join(tmpDir, "stump.db"), cfg.DatabaseFilePath)
	assert.Equal(t, filepath.Join(tmpDir, "Stump.log"), cfg.LogFilePath)
	assert.Equal(t, filepath.Join(tmpDir, "thumbnails"), cfg.ThumbnailsDir)
}

func TestNew_DefaultConfigDirIsHomeDotStump(t *testing.T) {
	t.Setenv("STUMP_CONFIG_DIR", "")
	t.Setenv("CONFIG_FILE", "/nonexistent/shisho.yaml")

	cfg, err := New()
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".stump"), cfg.ConfigDir)
}

func TestNew_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "shisho.yaml")

	configContent := `
worker_processes: 4
scan_concurrency: 3
database_debug: true
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("STUMP_CONFIG_DIR", tmpDir)
	t.Setenv("CONFIG_FILE", configPath)

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerProcesses)
	assert.Equal(t, 3, cfg.ScanConcurrency)
	assert.True(t, cfg.DatabaseDebug)
}

func TestNew_EnvVarOverridesConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "shisho.yaml")

	configContent := `
worker_processes: 4
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("STUMP_CONFIG_DIR", tmpDir)
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("SHISHO_WORKER_PROCESSES", "7")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.WorkerProcesses)
}

func TestNew_SessionTTLFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("STUMP_CONFIG_DIR", tmpDir)
	t.Setenv("CONFIG_FILE", "/nonexistent/shisho.yaml")
	t.Setenv("SESSION_TTL", "120")
	t.Setenv("SESSION_EXPIRY_CLEANUP_INTERVAL", "0")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.SessionTTL)
	assert.Equal(t, time.Duration(0), cfg.SessionExpiryCleanupInterval)
}

func TestNew_HashCostFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("STUMP_CONFIG_DIR", tmpDir)
	t.Setenv("CONFIG_FILE", "/nonexistent/shisho.yaml")
	t.Setenv("HASH_COST", "10")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.HashCost)
}

func TestNew_ForceResetDBRequiresDebugProfile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("STUMP_CONFIG_DIR", tmpDir)
	t.Setenv("CONFIG_FILE", "/nonexistent/shisho.yaml")
	t.Setenv("FORCE_RESET_DB", "true")
	t.Setenv("STUMP_PROFILE", "release")

	cfg, err := New()
	require.NoError(t, err)
	assert.False(t, cfg.ForceResetDB, "FORCE_RESET_DB must not apply outside the debug profile")

	t.Setenv("STUMP_PROFILE", "debug")
	cfg, err = New()
	require.NoError(t, err)
	assert.True(t, cfg.ForceResetDB)
}

func TestNewForTest(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := NewForTest(tmpDir)
	assert.Equal(t, filepath.Join(tmpDir, "stump.db"), cfg.DatabaseFilePath)
	assert.Equal(t, filepath.Join(tmpDir, "thumbnails"), cfg.ThumbnailsDir)
	assert.Equal(t, 1, cfg.WorkerProcesses)
}
