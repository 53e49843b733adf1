package scheduler

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/tanq16/rangefetch/internal/utils"
)

// Cancellation causes attached to a run's context.
var (
	errPaused      = errors.New("task paused")
	errCancelled   = errors.New("task cancelled")
	errReadTimeout = errors.New("read timed out")
)

// probeError marks a failure of the HEAD probe.
type probeError struct {
	err error
}

func (e *probeError) Error() string { return "probe failed: " + e.err.Error() }
func (e *probeError) Unwrap() error { return e.err }

func isCancellation(err error) bool {
	return errors.Is(err, errPaused) || errors.Is(err, errCancelled) || errors.Is(err, context.Canceled)
}

// isRetryable classifies err as a transient failure worth another attempt.
func isRetryable(err error, retryProbe bool) bool {
	if err == nil || isCancellation(err) {
		return false
	}
	var pe *probeError
	if errors.As(err, &pe) && !retryProbe {
		return false
	}
	if errors.Is(err, errReadTimeout) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var local *utils.LocalError
	if errors.As(err, &local) {
		return false
	}
	var status *utils.StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	for _, permanent := range []error{
		utils.ErrBadContentLength,
		utils.ErrBadContentRange,
		utils.ErrUnsupportedScheme,
		utils.ErrInvalidResourceURL,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// transport errors that are neither local nor a server verdict
	return true
}

func phaseOf(err error) string {
	var pe *probeError
	if errors.As(err, &pe) {
		return "probe"
	}
	return "transfer"
}
