package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nonexistent.yml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.File)
	assert.Equal(t, "model.onnx", cfg.Model.Path)
	assert.Equal(t, 256, cfg.Model.ImageHeight)
	assert.Equal(t, 256, cfg.Model.ImageWidth)
	assert.Equal(t, "localhost:9000", cfg.Filestore.Endpoint)
	assert.Equal(t, "trashscanner-images", cfg.Filestore.Bucket)
	assert.False(t, cfg.Filestore.UseSSL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
  request_timeout: 5s
auth:
  token: secret-token
logging:
  level: debug
  file: logs/app.log
filestore:
  endpoint: 127.0.0.1:9000
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "secret-token", cfg.Auth.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "logs/app.log", cfg.Logging.File)
	assert.Equal(t, "127.0.0.1:9000", cfg.Filestore.Endpoint)

	// untouched sections keep their defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "trashscanner-images", cfg.Filestore.Bucket)
	assert.Equal(t, 256, cfg.Model.ImageWidth)
}

func TestLoadFile_Malformed(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9100\nmodel:\n  path: from-file.onnx\n")
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_PORT", "9200")
	t.Setenv("MODEL_PATH", "from-env.onnx")
	t.Setenv("IMAGE_HEIGHT", "224")
	t.Setenv("IMAGE_WIDTH", "224")
	t.Setenv("FILESTORE_USE_SSL", "true")
	t.Setenv("SERVER_REQUEST_TIMEOUT", "2s")
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "from-env.onnx", cfg.Model.Path)
	assert.Equal(t, 224, cfg.Model.ImageHeight)
	assert.Equal(t, 224, cfg.Model.ImageWidth)
	assert.True(t, cfg.Filestore.UseSSL)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "0.0.0.0:9200", cfg.Addr())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yml"))
	t.Setenv("SERVER_PORT", "not-a-port")
	chdir(t, t.TempDir())

	_, err := Load()
	assert.ErrorContains(t, err, "SERVER_PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"huge port", func(c *Config) { c.Server.Port = 70000 }},
		{"zero timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"empty model", func(c *Config) { c.Model.Path = "" }},
		{"zero height", func(c *Config) { c.Model.ImageHeight = 0 }},
		{"negative width", func(c *Config) { c.Model.ImageWidth = -1 }},
		{"bad filter", func(c *Config) { c.Model.ResizeFilter = "box" }},
		{"no bucket", func(c *Config) { c.Filestore.Bucket = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_LogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warning", "warn", "error", "WARN"} {
		t.Run(level, func(t *testing.T) {
			cfg := Default()
			cfg.Logging.Level = level
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestLoad_WarnLevelFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yml"))
	t.Setenv("LOG_LEVEL", "warn")
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores it when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
