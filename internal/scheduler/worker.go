package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tanq16/rangefetch/internal/metrics"
	"github.com/tanq16/rangefetch/internal/notify"
	"github.com/tanq16/rangefetch/internal/utils"
	"golang.org/x/sync/errgroup"
)

// run drives one QUEUED -> DOWNLOADING session of t. It waits for the
// previous run of the same task to exit before touching the file.
func (m *Manager) run(ctx context.Context, t *task, prev <-chan struct{}, done chan struct{}) {
	defer m.wg.Done()
	defer close(done)
	if prev != nil {
		<-prev
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.sem.Release(1)

	t.mu.Lock()
	if t.status != utils.StatusQueued || ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	restart := t.restart
	t.restart = false
	if restart {
		t.resetLocked()
		if err := m.store.DiscardPartial(t.filePath); err != nil {
			m.log.Warn().Str("op", "scheduler/run").Str("task", t.id).Err(err).Msg("Failed to discard partial file")
		}
	}
	t.agg.Reset(t.downloaded.Load())
	m.setStatusLocked(t, utils.StatusDownloading)
	t.mu.Unlock()

	metrics.ActiveDownloads.Inc()
	defer metrics.ActiveDownloads.Dec()

	err := m.download(ctx, t)
	switch {
	case err == nil:
		m.complete(t)
	case ctx.Err() != nil:
		// pause or cancel already moved the task on
		m.log.Debug().Str("op", "scheduler/run").Str("task", t.id).Err(context.Cause(ctx)).Msg("Run stopped")
	default:
		m.fail(t, err, false)
	}
}

// download repeats attempts until success, a permanent error, or the retry
// budget is spent. A server ignoring a range request restarts from zero
// without using the budget.
func (m *Manager) download(ctx context.Context, t *task) error {
	log := m.log.With().Str("task", t.id).Logger()
	for retries := 0; ; {
		err := m.attempt(ctx, t)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if errors.Is(err, utils.ErrRangeNotHonored) {
			log.Warn().Str("op", "scheduler/download").Msg("Server ignored the range request, restarting from zero")
			t.mu.Lock()
			t.supportsRange = false
			t.resetLocked()
			t.mu.Unlock()
			if err := m.store.DiscardPartial(t.filePath); err != nil {
				return err
			}
			continue
		}
		if !isRetryable(err, !m.cfg.NoProbeRetry) || retries >= m.cfg.RetryCount {
			return err
		}
		retries++
		metrics.Retries.WithLabelValues(phaseOf(err)).Inc()
		log.Warn().Str("op", "scheduler/download").Err(err).Msgf("Attempt failed, retrying in %s (%d/%d)", m.cfg.RetryDelay, retries, m.cfg.RetryCount)
		timer := time.NewTimer(m.cfg.RetryDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return context.Cause(ctx)
		}
	}
}

func (m *Manager) probe(ctx context.Context, t *task) error {
	t.mu.Lock()
	probed := t.probed
	t.mu.Unlock()
	if probed {
		return nil
	}
	info, err := t.transport.Head(ctx, t.url)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return &probeError{err: err}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = info.Size
	t.supportsRange = info.SupportsRange
	t.probed = true
	m.log.Debug().Str("op", "scheduler/probe").Str("task", t.id).Int64("size", info.Size).Bool("ranges", info.SupportsRange).Msg("Resource probed")
	return nil
}

func (m *Manager) attempt(ctx context.Context, t *task) error {
	if err := m.probe(ctx, t); err != nil {
		return err
	}

	t.mu.Lock()
	discard := !t.supportsRange && t.downloaded.Load() > 0
	if discard {
		// without ranges the only way forward is from byte zero
		t.resetLocked()
	}
	total := t.total
	pending, multi := m.planLocked(t)
	downloaded := t.downloaded.Load()
	t.mu.Unlock()

	if discard {
		if err := m.store.DiscardPartial(t.filePath); err != nil {
			return err
		}
	}
	f, err := m.store.Prepare(t.filePath, total, downloaded)
	if err != nil {
		return err
	}
	defer f.Close()

	bufSize := m.cfg.BufferSize
	if total > utils.LargeFileThreshold {
		bufSize *= 2
	}
	mode := "single"
	if multi {
		mode = "multi"
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ThreadCount)
	for _, c := range pending {
		metrics.ChunkTransfers.WithLabelValues(mode).Inc()
		g.Go(func() error {
			return m.transferChunk(gctx, t, f, c, multi, bufSize)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	written := t.downloaded.Load()
	if total > 0 && written != total {
		return fmt.Errorf("expected %d bytes, wrote %d: %w", total, written, io.ErrUnexpectedEOF)
	}
	if total <= 0 {
		if err := f.Truncate(written); err != nil {
			return &utils.LocalError{Op: "truncate", Path: t.filePath, Err: err}
		}
	}
	if err := f.Sync(); err != nil {
		return &utils.LocalError{Op: "sync", Path: t.filePath, Err: err}
	}
	return nil
}

func (m *Manager) complete(t *task) {
	t.mu.Lock()
	if t.status != utils.StatusDownloading {
		t.mu.Unlock()
		return
	}
	if err := m.store.Finalize(t.filePath); err != nil {
		t.mu.Unlock()
		m.fail(t, err, true)
		return
	}
	if s, ok := t.agg.Final(t.downloaded.Load(), t.total); ok {
		if t.total <= 0 {
			t.total = s.Downloaded
			s.Total, s.Percent = s.Downloaded, 100
		}
		t.speed, t.eta = s.Speed, 0
		m.emit(t, notify.Event{Type: notify.EventProgress, Percent: s.Percent, Downloaded: s.Downloaded, Total: s.Total})
	}
	t.completeTime = time.Now()
	m.setStatusLocked(t, utils.StatusCompleted)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	metrics.DownloadDuration.Observe(snap.CompleteTime.Sub(snap.CreateTime).Seconds())
	m.log.Info().Str("op", "scheduler/complete").Str("task", t.id).Str("path", t.filePath).Str("size", utils.FormatBytes(uint64(snap.DownloadedBytes))).Msg("Download completed")
	m.release(t, snap)
}

// fail reports err and moves t to FAILED. The partial file is removed unless
// keepTemp is set, which is the case when only the final rename failed.
func (m *Manager) fail(t *task, err error, keepTemp bool) {
	t.mu.Lock()
	if t.status != utils.StatusDownloading {
		t.mu.Unlock()
		return
	}
	if !keepTemp {
		if derr := m.store.DiscardPartial(t.filePath); derr != nil {
			m.log.Warn().Str("op", "scheduler/fail").Str("task", t.id).Err(derr).Msg("Failed to discard partial file")
		}
	}
	t.errMsg = err.Error()
	m.emit(t, notify.Event{Type: notify.EventError, Message: t.errMsg})
	m.setStatusLocked(t, utils.StatusFailed)
	snap := t.snapshotLocked()
	t.mu.Unlock()

	m.log.Error().Str("op", "scheduler/fail").Str("task", t.id).Err(err).Msg("Download failed")
	m.release(t, snap)
}

// reportProgress emits a throttled progress sample while t is downloading.
func (m *Manager) reportProgress(t *task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != utils.StatusDownloading {
		return
	}
	s, ok := t.agg.Observe(t.downloaded.Load(), t.total)
	if !ok {
		return
	}
	t.speed, t.eta = s.Speed, s.ETA
	m.emit(t, notify.Event{Type: notify.EventProgress, Percent: s.Percent, Downloaded: s.Downloaded, Total: s.Total})
}
