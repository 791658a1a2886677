package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"WORKER_COUNT", "BATCH_SIZE", "SKIP_COMMENTS", "SKIP_BLANK_LINES", "TRACE_FILE",
	"TRACE_MAX_SIZE_MB", "LOG_LEVEL", "DATABASE_URL", "NEO4J_URI", "NEO4J_USER",
	"NEO4J_PASSWORD", "EMBEDDING_API_KEY", "EMBEDDING_BASE_URL", "EMBEDDING_MODEL",
	"EMBEDDING_DIMENSIONS",
}

func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg := Load()
	want := Defaults()
	assert.Equal(t, &want, cfg)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_count: 2\nskip_comments: true\ntrace_file: trace.log\n"), 0644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WORKER_COUNT", "16")
	t.Setenv("SKIP_BLANK_LINES", "1")

	cfg := Load()
	assert.Equal(t, 16, cfg.WorkerCount, "environment overrides file")
	assert.True(t, cfg.SkipComments)
	assert.True(t, cfg.SkipBlankLines)
	assert.Equal(t, "trace.log", cfg.TraceFile)
	assert.Equal(t, Defaults().BatchSize, cfg.BatchSize)
}

func TestLoadDefaultFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", "")
	require.NoError(t, os.Unsetenv("CONFIG_FILE"))
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("batch_size: 4\n"), 0644))

	cfg := Load()
	assert.Equal(t, 4, cfg.BatchSize)
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	assert.Equal(t, 3, getEnvInt("X_INT", 3))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, "d", getEnv("X_UNSET", "d"))
}

func TestInvalidFileIsIgnored(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_count: [oops"), 0644))
	t.Setenv("CONFIG_FILE", path)

	cfg := Load()
	assert.Equal(t, Defaults().WorkerCount, cfg.WorkerCount)
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
