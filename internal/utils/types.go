package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
)

type DownloadStatus int

const (
	StatusQueued DownloadStatus = iota
	StatusDownloading
	StatusPaused
	StatusCompleted
	StatusFailed
	StatusCancelled
)

var statusNames = map[DownloadStatus]string{
	StatusQueued:      "QUEUED",
	StatusDownloading: "DOWNLOADING",
	StatusPaused:      "PAUSED",
	StatusCompleted:   "COMPLETED",
	StatusFailed:      "FAILED",
	StatusCancelled:   "CANCELLED",
}

func (s DownloadStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// IsTerminal reports whether no further transitions are accepted.
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DownloadConfig is fixed for the lifetime of a manager.
type DownloadConfig struct {
	MaxConcurrentDownloads int           `validate:"gte=1"`
	ConnectTimeout         time.Duration `validate:"gt=0"`
	ReadTimeout            time.Duration `validate:"gt=0"`
	WriteTimeout           time.Duration `validate:"gt=0"`
	RetryCount             int           `validate:"gte=0"`
	RetryDelay             time.Duration `validate:"gte=0"`
	ThreadCount            int           `validate:"gte=1,lte=64"`
	MinChunkSize           int64         `validate:"gte=1"`
	BufferSize             int           `validate:"gte=512"`
	ProgressUpdateInterval time.Duration `validate:"gt=0"`
	ProgressDelta          float64       `validate:"gt=0,lte=100"`
	NoProbeRetry           bool          // fail on the first probe error instead of retrying it
	KeepPartialOnCancel    bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c DownloadConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid download config: %w", err)
	}
	return nil
}

// WithDefaults fills zero-valued fields from DefaultDownloadConfig. RetryCount
// and RetryDelay are kept as given: zero means no retries and no delay.
func (c DownloadConfig) WithDefaults() DownloadConfig {
	d := DefaultDownloadConfig()
	if c.MaxConcurrentDownloads == 0 {
		c.MaxConcurrentDownloads = d.MaxConcurrentDownloads
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ThreadCount == 0 {
		c.ThreadCount = d.ThreadCount
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = d.MinChunkSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = d.BufferSize
	}
	if c.ProgressUpdateInterval == 0 {
		c.ProgressUpdateInterval = d.ProgressUpdateInterval
	}
	if c.ProgressDelta == 0 {
		c.ProgressDelta = d.ProgressDelta
	}
	return c
}

// ResourceInfo is what a probe learns about a remote resource.
type ResourceInfo struct {
	Size          int64 // 0 when unknown
	SupportsRange bool
	FileName      string
}

// ByteRange is an inclusive byte range; End < 0 leaves it open-ended.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Header() string {
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

type Response struct {
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown
	Partial       bool  // body starts at the requested range start
}

// Transport is the narrow network surface the engine downloads through.
type Transport interface {
	Head(ctx context.Context, link string) (*ResourceInfo, error)
	Get(ctx context.Context, link string, rng *ByteRange) (*Response, error)
}

type DownloadEntry struct {
	OutputPath string `yaml:"op,omitempty"`
	URL        string `yaml:"link"`
}

// StatusError is a non-2xx answer from the remote side.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP error: %d", e.Op, e.Code)
}

// Temporary reports whether a later attempt may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 408 || e.Code == 429
}

// LocalError is a failure of the local filesystem.
type LocalError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalError) Unwrap() error {
	return e.Err
}

var (
	ErrInsufficientSpace  = errors.New("insufficient disk space")
	ErrBadContentLength   = errors.New("malformed Content-Length header")
	ErrBadContentRange    = errors.New("unexpected Content-Range in partial response")
	ErrUnsupportedScheme  = errors.New("unsupported URL scheme")
	ErrRangeNotHonored    = errors.New("server ignored range request")
	ErrRangeNotSupported  = errors.New("server does not support range requests")
	ErrInvalidResourceURL = errors.New("invalid resource URL")
)
