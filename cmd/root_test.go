package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/rangefetch/internal/utils"
)

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rangefetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 5\nconnections: 8\nretries: 1\n"), 0644))
	t.Setenv("RANGEFETCH_CONNECTIONS", "4")
	t.Setenv("RANGEFETCH_RETRIES", "6")

	rootCmd.SetArgs([]string{"clean", dir,
		"--config", path,
		"-c", "2",
		"-H", "X-Trace: on",
		"--proxy", "http://user:pw@proxy.local:3128",
	})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, 5, cfg.Engine.MaxConcurrentDownloads, "file value")
	assert.Equal(t, 6, cfg.Engine.RetryCount, "env beats file")
	assert.Equal(t, 2, cfg.Engine.ThreadCount, "flag beats env")
	assert.Equal(t, "on", cfg.HTTP.Headers["X-Trace"])
	assert.Equal(t, "http://proxy.local:3128", cfg.HTTP.Proxy)
	assert.Equal(t, "user", cfg.HTTP.ProxyUsername)
	assert.Equal(t, "pw", cfg.HTTP.ProxyPassword)
}

func TestNeedsS3(t *testing.T) {
	assert.False(t, needsS3([]utils.DownloadEntry{{URL: "https://example.com/a"}}))
	assert.True(t, needsS3([]utils.DownloadEntry{{URL: "https://example.com/a"}, {URL: "S3://bucket/key"}}))
}
