package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tanq16/rangefetch/internal/metrics"
	"github.com/tanq16/rangefetch/internal/utils"
)

type chunk struct {
	id      int
	start   int64
	end     int64 // inclusive; -1 while the total size is unknown
	written atomic.Int64
}

func (c *chunk) size() int64 {
	if c.end < 0 {
		return -1
	}
	return c.end - c.start + 1
}

func (c *chunk) next() int64 {
	return c.start + c.written.Load()
}

func (c *chunk) complete() bool {
	return c.end >= 0 && c.written.Load() >= c.size()
}

// useMultiStream reports whether a task is split across concurrent transfers.
func useMultiStream(cfg utils.DownloadConfig, supportsRange bool, total int64) bool {
	return supportsRange && total > 0 && total > int64(cfg.BufferSize)*int64(cfg.ThreadCount)
}

// splitRange divides [from, total) into min(threads, ceil(remaining/minChunk))
// contiguous pieces; the last one absorbs the remainder.
func splitRange(from, total int64, threads int, minChunk int64) []*chunk {
	remaining := total - from
	if remaining <= 0 {
		return nil
	}
	n := min((remaining+minChunk-1)/minChunk, int64(threads))
	n = max(n, 1)
	size := remaining / n
	chunks := make([]*chunk, 0, n)
	start := from
	for i := range n {
		end := start + size - 1
		if i == n-1 {
			end = total - 1
		}
		chunks = append(chunks, &chunk{id: int(i), start: start, end: end})
		start = end + 1
	}
	return chunks
}

// planLocked returns the chunks still to transfer, creating the plan when the
// task has none. A retained plan is reused so a resume only asks for the
// unwritten tail of each chunk.
func (m *Manager) planLocked(t *task) ([]*chunk, bool) {
	multi := useMultiStream(m.cfg, t.supportsRange, t.total)
	if t.chunks == nil {
		if multi {
			t.chunks = splitRange(0, t.total, m.cfg.ThreadCount, m.cfg.MinChunkSize)
		} else {
			end := int64(-1)
			if t.total > 0 {
				end = t.total - 1
			}
			t.chunks = []*chunk{{start: 0, end: end}}
		}
	}
	var pending []*chunk
	for _, c := range t.chunks {
		if !c.complete() {
			pending = append(pending, c)
		}
	}
	return pending, multi
}

// transferChunk streams one chunk into f at the chunk's offset. Multi-stream
// chunks use closed ranges; a single stream only sends an open range when
// resuming.
func (m *Manager) transferChunk(ctx context.Context, t *task, f io.WriterAt, c *chunk, multi bool, bufSize int) error {
	log := m.log.With().Str("task", t.id).Int("chunk", c.id).Logger()
	var rng *utils.ByteRange
	switch offset := c.next(); {
	case multi:
		rng = &utils.ByteRange{Start: offset, End: c.end}
	case offset > 0:
		rng = &utils.ByteRange{Start: offset, End: -1}
	}

	reqCtx, cancelReq := context.WithCancelCause(ctx)
	defer cancelReq(nil)
	timer := time.AfterFunc(m.cfg.ReadTimeout, func() { cancelReq(errReadTimeout) })
	defer timer.Stop()

	resp, err := t.transport.Get(reqCtx, t.url, rng)
	if err != nil {
		return requestError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()
	if rng != nil && !resp.Partial {
		return utils.ErrRangeNotHonored
	}
	if rng != nil {
		log.Debug().Str("op", "scheduler/chunk").Str("range", rng.Header()).Msg("Chunk transfer started")
	}

	buf := make([]byte, bufSize)
	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		n, readErr := resp.Body.Read(buf)
		timer.Reset(m.cfg.ReadTimeout)
		if n > 0 {
			data := buf[:n]
			if c.end >= 0 {
				// never write past the chunk, whatever the server sends
				data = data[:min(int64(n), c.end-c.next()+1)]
			}
			if len(data) > 0 {
				if _, err := f.WriteAt(data, c.next()); err != nil {
					return &utils.LocalError{Op: "write", Path: t.filePath, Err: err}
				}
				c.written.Add(int64(len(data)))
				t.downloaded.Add(int64(len(data)))
				metrics.BytesDownloaded.Add(float64(len(data)))
				m.reportProgress(t)
			}
			if c.complete() {
				return nil
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return requestError(ctx, reqCtx, readErr)
		}
	}
	if c.end >= 0 && !c.complete() {
		return fmt.Errorf("chunk %d ended at %d of %d bytes: %w", c.id, c.written.Load(), c.size(), io.ErrUnexpectedEOF)
	}
	return nil
}

// requestError attributes a failed request to pause/cancel, the idle read
// timer, or the transport itself.
func requestError(ctx, reqCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if errors.Is(context.Cause(reqCtx), errReadTimeout) {
		return fmt.Errorf("%w: %v", errReadTimeout, err)
	}
	return err
}
