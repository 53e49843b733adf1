package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/rangefetch/internal/utils"
)

const object = "the quick brown fox jumps over the lazy dog"

// fakeS3 answers path-style HeadObject/GetObject requests for one object.
func fakeS3(t *testing.T) (*S3Downloader, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bucket/dir/fox.txt" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method != http.MethodHead {
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("Accept-Ranges", "bytes")
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(object)))
			return
		}
		rng := r.Header.Get("Range")
		mu.Lock()
		ranges = append(ranges, rng)
		mu.Unlock()
		if rng == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(object)))
			io.WriteString(w, object)
			return
		}
		startStr, endStr, _ := strings.Cut(strings.TrimPrefix(rng, "bytes="), "-")
		start, _ := strconv.Atoi(startStr)
		end := len(object) - 1
		if endStr != "" {
			end, _ = strconv.Atoi(endStr)
		}
		w.Header().Set("Content-Range", "bytes "+strconv.Itoa(start)+"-"+strconv.Itoa(end)+"/"+strconv.Itoa(len(object)))
		w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, object[start:end+1])
	}))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		UsePathStyle:     true,
		Credentials:      aws.AnonymousCredentials{},
		HTTPClient:       srv.Client(),
		RetryMaxAttempts: 1,
	})
	return NewFromClient(client), func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), ranges...)
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://bucket/a/b/c.bin")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "a/b/c.bin", key)

	for _, bad := range []string{"s3://", "s3://bucket", "s3://bucket/folder/", "https://bucket/key"} {
		_, _, err := parseS3URL(bad)
		assert.Error(t, err, bad)
	}
}

func TestHeadObject(t *testing.T) {
	d, _ := fakeS3(t)
	info, err := d.Head(context.Background(), "s3://bucket/dir/fox.txt")
	require.NoError(t, err)
	assert.EqualValues(t, len(object), info.Size)
	assert.True(t, info.SupportsRange)
	assert.Equal(t, "fox.txt", info.FileName)
}

func TestHeadMissingObject(t *testing.T) {
	d, _ := fakeS3(t)
	_, err := d.Head(context.Background(), "s3://bucket/nope.txt")
	var statusErr *utils.StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestGetObjectRanges(t *testing.T) {
	d, ranges := fakeS3(t)
	ctx := context.Background()

	resp, err := d.Get(ctx, "s3://bucket/dir/fox.txt", &utils.ByteRange{Start: 4, End: 8})
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, resp.Partial)
	assert.Equal(t, "quick", string(body))

	resp, err = d.Get(ctx, "s3://bucket/dir/fox.txt", nil)
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, resp.Partial)
	assert.Equal(t, object, string(body))

	assert.Equal(t, []string{"bytes=4-8", ""}, ranges())
}
