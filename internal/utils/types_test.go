package utils

import (
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadStatus(t *testing.T) {
	assert.Equal(t, "DOWNLOADING", StatusDownloading.String())
	assert.Equal(t, "STATUS(42)", DownloadStatus(42).String())
	for _, s := range []DownloadStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		assert.True(t, s.IsTerminal(), s.String())
	}
	for _, s := range []DownloadStatus{StatusQueued, StatusDownloading, StatusPaused} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}

func TestByteRangeHeader(t *testing.T) {
	assert.Equal(t, "bytes=100-", ByteRange{Start: 100, End: -1}.Header())
	assert.Equal(t, "bytes=0-99", ByteRange{Start: 0, End: 99}.Header())
}

func TestStatusErrorTemporary(t *testing.T) {
	assert.True(t, (&StatusError{Code: 500}).Temporary())
	assert.True(t, (&StatusError{Code: 503}).Temporary())
	assert.True(t, (&StatusError{Code: 429}).Temporary())
	assert.False(t, (&StatusError{Code: 404}).Temporary())
	assert.False(t, (&StatusError{Code: 416}).Temporary())
	assert.Equal(t, "GET: HTTP error: 500", (&StatusError{Op: "GET", Code: 500}).Error())
}

func TestLocalErrorUnwrap(t *testing.T) {
	err := error(&LocalError{Op: "open", Path: "/x", Err: fs.ErrPermission})
	assert.True(t, errors.Is(err, fs.ErrPermission))
}

func TestDownloadConfigDefaultsAndValidation(t *testing.T) {
	cfg := DownloadConfig{ThreadCount: 8}.WithDefaults()
	assert.Equal(t, 8, cfg.ThreadCount)
	assert.Equal(t, 3, cfg.MaxConcurrentDownloads)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	require.NoError(t, cfg.Validate())
	require.NoError(t, DefaultDownloadConfig().Validate())

	cfg.ThreadCount = 0
	assert.Error(t, cfg.Validate())
	cfg = DefaultDownloadConfig()
	cfg.BufferSize = 16
	assert.Error(t, cfg.Validate())
	cfg = DefaultDownloadConfig()
	cfg.RetryCount = -1
	assert.Error(t, cfg.Validate())
}

func TestZeroConfigRetriesProbes(t *testing.T) {
	cfg := DownloadConfig{}.WithDefaults()
	assert.False(t, cfg.NoProbeRetry, "probe failures are retried unless disabled")
	assert.Equal(t, 0, cfg.RetryCount, "zero retries stays zero")
	assert.Zero(t, cfg.RetryDelay)
	require.NoError(t, cfg.Validate())

	d := DefaultDownloadConfig()
	assert.False(t, d.NoProbeRetry)
	assert.Equal(t, 3, d.RetryCount)
	assert.Equal(t, time.Second, d.RetryDelay)
}

func TestHTTPClientSetsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{
		Headers:     map[string]string{"X-Trace": "1"},
		BearerToken: "secret",
	})
	client.SetHeader("X-Extra", "2")
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, ToolUserAgent, got.Get("User-Agent"))
	assert.Equal(t, "1", got.Get("X-Trace"))
	assert.Equal(t, "2", got.Get("X-Extra"))
	assert.Equal(t, "Bearer secret", got.Get("Authorization"))
}
