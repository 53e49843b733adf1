package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/rangefetch/internal/utils"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, utils.DefaultDownloadConfig(), cfg.Engine)
	assert.Equal(t, 3, cfg.Engine.MaxConcurrentDownloads)
	assert.Equal(t, 3, cfg.Engine.RetryCount)
	assert.Equal(t, time.Second, cfg.Engine.RetryDelay)
	assert.False(t, cfg.Engine.NoProbeRetry)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, "rangefetch.yaml", `
workers: 5
connections: 8
retries: 0
retry_delay: 250ms
retry_probe: false
read_timeout: 1m
min_chunk_size: 4MB
buffer_size: 16KiB
progress_interval: 1s
keep_partial: true
user_agent: tester
proxy: http://proxy.local:3128
headers:
  X-Token: abc
s3:
  region: eu-west-1
  endpoint: http://minio.local:9000
  path_style: true
log:
  debug: true
  file: /tmp/rangefetch.log
  max_backups: 7
metrics_addr: localhost:9090
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	e := cfg.Engine
	assert.Equal(t, 5, e.MaxConcurrentDownloads)
	assert.Equal(t, 8, e.ThreadCount)
	assert.Equal(t, 0, e.RetryCount)
	assert.Equal(t, 250*time.Millisecond, e.RetryDelay)
	assert.True(t, e.NoProbeRetry)
	assert.Equal(t, time.Minute, e.ReadTimeout)
	assert.Equal(t, 30*time.Second, e.ConnectTimeout)
	assert.EqualValues(t, 4<<20, e.MinChunkSize)
	assert.Equal(t, 16<<10, e.BufferSize)
	assert.Equal(t, time.Second, e.ProgressUpdateInterval)
	assert.True(t, e.KeepPartialOnCancel)

	assert.Equal(t, "tester", cfg.HTTP.UserAgent)
	assert.Equal(t, map[string]string{"X-Token": "abc"}, cfg.HTTP.Headers)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.True(t, cfg.S3.PathStyle)
	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, 7, cfg.Log.MaxBackups)
	assert.Equal(t, 50, cfg.Log.MaxSizeMB)
	assert.Equal(t, "localhost:9090", cfg.Metrics.Addr)
	require.NoError(t, cfg.Validate())

	hc := cfg.HTTPClient()
	assert.Equal(t, "http://proxy.local:3128", hc.ProxyURL)
	assert.Equal(t, e.WriteTimeout, hc.HeaderTimeout)
	assert.True(t, hc.HighThreadMode)
	assert.Equal(t, "http://minio.local:9000", cfg.S3Options().Endpoint)
	assert.Equal(t, "/tmp/rangefetch.log", cfg.LogFile().Path)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "bad.yaml", "retry_delay: soon\n"))
	assert.ErrorContains(t, err, "retry_delay")

	_, err = LoadFromFile(writeFile(t, "bad.yaml", "buffer_size: lots\n"))
	assert.ErrorContains(t, err, "buffer_size")

	_, err = LoadFromFile(writeFile(t, "bad.yaml", "workers: [1, 2\n"))
	assert.ErrorContains(t, err, "parse config file")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RANGEFETCH_WORKERS", "7")
	t.Setenv("RANGEFETCH_CONNECTIONS", "2")
	t.Setenv("RANGEFETCH_RETRY_DELAY", "3s")
	t.Setenv("RANGEFETCH_TIMEOUT", "45s")
	t.Setenv("RANGEFETCH_KEEP_PARTIAL", "true")
	t.Setenv("RANGEFETCH_BEARER_TOKEN", "secret")
	t.Setenv("RANGEFETCH_HEADERS", "A: 1,B: 2")
	t.Setenv("RANGEFETCH_S3_PROFILE", "dev")

	cfg := Default()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, 7, cfg.Engine.MaxConcurrentDownloads)
	assert.Equal(t, 2, cfg.Engine.ThreadCount)
	assert.Equal(t, 3*time.Second, cfg.Engine.RetryDelay)
	assert.Equal(t, 45*time.Second, cfg.Engine.ReadTimeout)
	assert.True(t, cfg.Engine.KeepPartialOnCancel)
	assert.Equal(t, "secret", cfg.HTTP.BearerToken)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, cfg.HTTP.Headers)
	assert.Equal(t, "dev", cfg.S3.Profile)
}

func TestLoadFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("RANGEFETCH_RETRIES", "many")
	cfg := Default()
	assert.ErrorContains(t, cfg.LoadFromEnv(), "RANGEFETCH_RETRIES")
}

func TestLoadEnvFiles(t *testing.T) {
	path := writeFile(t, ".env", "RANGEFETCH_TEST_ONLY_VALUE=from-file\n")
	t.Setenv("RANGEFETCH_TEST_ONLY_VALUE", "")
	os.Unsetenv("RANGEFETCH_TEST_ONLY_VALUE")

	require.NoError(t, LoadEnvFiles(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "from-file", os.Getenv("RANGEFETCH_TEST_ONLY_VALUE"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Engine.ThreadCount = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Metrics.Addr = "not an address"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.HTTP.Proxy = "::bad"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Log.MaxBackups = -1
	assert.Error(t, cfg.Validate())
}
