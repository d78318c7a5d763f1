package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stockbridge.yaml", "version: 1\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "./stockbridge.db", cfg.Database.Path)
	assert.Equal(t, "silent", cfg.Database.LogLevel)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadResolvesEnvFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STOCKBRIDGE_DB_TEST", "")
	os.Unsetenv("STOCKBRIDGE_DB_TEST")
	writeFile(t, dir, ".env", "STOCKBRIDGE_DB_TEST=/var/lib/stockbridge/data.db\n")
	path := writeFile(t, dir, "stockbridge.yaml", `
version: 1
server:
  addr: "127.0.0.1:9090"
database:
  path: "${ENV:STOCKBRIDGE_DB_TEST}"
logging:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "/var/lib/stockbridge/data.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stockbridge.yaml", "version: 2\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported config version 2")
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestResolveValueMissingVariable(t *testing.T) {
	_, err := ResolveValue("${ENV:STOCKBRIDGE_SURELY_UNSET_VAR}")
	assert.ErrorContains(t, err, "STOCKBRIDGE_SURELY_UNSET_VAR")

	v, err := ResolveValue("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stockbridge.yaml")
	cfg := Default()
	cfg.Server.Addr = ":7070"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", loaded.Server.Addr)
}

func TestLoadRejectsMalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "BAD-KEY=1\n")
	path := writeFile(t, dir, "stockbridge.yaml", "version: 1\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "loading .env")
}

func TestLoadWithoutDotEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stockbridge.yaml", "version: 1\n")
	_, err := Load(path)
	assert.NoError(t, err)
}
