// Package scheduler owns the download tasks: it admits them, runs them on a
// bounded pool and applies pause, resume and cancel requests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	rfhttp "github.com/tanq16/rangefetch/internal/downloaders/http"
	"github.com/tanq16/rangefetch/internal/filestore"
	"github.com/tanq16/rangefetch/internal/metrics"
	"github.com/tanq16/rangefetch/internal/notify"
	"github.com/tanq16/rangefetch/internal/progress"
	"github.com/tanq16/rangefetch/internal/utils"
	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("download manager is shut down")

type Manager struct {
	cfg        utils.DownloadConfig
	httpConfig utils.HTTPClientConfig
	log        zerolog.Logger
	notifier   *notify.Notifier
	store      *filestore.Store
	transports map[string]utils.Transport
	sem        *semaphore.Weighted

	mu       sync.RWMutex
	tasks    map[string]*task
	finished map[string]TaskInfo
	closed   bool
	wg       sync.WaitGroup
}

type Option func(*Manager)

// WithTransport serves URLs of the given scheme through tr.
func WithTransport(scheme string, tr utils.Transport) Option {
	return func(m *Manager) {
		m.transports[strings.ToLower(scheme)] = tr
	}
}

// WithHTTPConfig customises the default http/https transport.
func WithHTTPConfig(cfg utils.HTTPClientConfig) Option {
	return func(m *Manager) {
		m.httpConfig = cfg
	}
}

func WithFileStore(store *filestore.Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

func NewManager(cfg utils.DownloadConfig, opts ...Option) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:        cfg,
		log:        utils.GetLogger("scheduler"),
		transports: make(map[string]utils.Transport),
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrentDownloads)),
		tasks:      make(map[string]*task),
		finished:   make(map[string]TaskInfo),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = filestore.New(filestore.Options{})
	}
	if m.transports["http"] == nil || m.transports["https"] == nil {
		hc := m.httpConfig
		if hc.ConnectTimeout == 0 {
			hc.ConnectTimeout = cfg.ConnectTimeout
		}
		if hc.HeaderTimeout == 0 {
			hc.HeaderTimeout = cfg.WriteTimeout
		}
		hc.HighThreadMode = hc.HighThreadMode || cfg.ThreadCount > 5
		d := rfhttp.New(hc)
		for _, scheme := range []string{"http", "https"} {
			if m.transports[scheme] == nil {
				m.transports[scheme] = d
			}
		}
	}
	m.notifier = notify.New()
	m.log.Debug().Str("op", "scheduler/new").Int("workers", cfg.MaxConcurrentDownloads).Int("threads", cfg.ThreadCount).Msg("Download manager ready")
	return m, nil
}

func (m *Manager) Config() utils.DownloadConfig {
	return m.cfg
}

func (m *Manager) transportFor(link string) (utils.Transport, error) {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", utils.ErrInvalidResourceURL, link)
	}
	tr := m.transports[strings.ToLower(u.Scheme)]
	if tr == nil {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnsupportedScheme, u.Scheme)
	}
	return tr, nil
}

// AddTask registers a download of link into filePath and queues it. An empty
// taskID is derived from link and filePath. A rejected task is reported
// through cb.OnError and AddTask returns false.
func (m *Manager) AddTask(link, filePath, taskID string, cb notify.Callback) bool {
	if cb == nil {
		cb = notify.Funcs{}
	}
	filePath = utils.ResolveOutputPath(link, filePath)
	if taskID == "" {
		taskID = utils.TaskID(link, filePath)
	}
	reject := func(err error) bool {
		m.log.Warn().Str("op", "scheduler/add").Str("task", taskID).Err(err).Msg("Task rejected")
		m.notifier.Notify(cb, notify.Event{TaskID: taskID, Type: notify.EventError, Message: err.Error()})
		return false
	}
	tr, err := m.transportFor(link)
	if err != nil {
		return reject(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return reject(ErrClosed)
	}
	if _, ok := m.tasks[taskID]; ok {
		return reject(fmt.Errorf("task %s already exists", taskID))
	}
	t := &task{
		id:         taskID,
		url:        link,
		filePath:   filePath,
		cb:         cb,
		transport:  tr,
		agg:        progress.NewAggregator(m.cfg.ProgressUpdateInterval, m.cfg.ProgressDelta),
		status:     utils.StatusQueued,
		createTime: time.Now(),
	}
	delete(m.finished, taskID)
	m.tasks[taskID] = t
	metrics.TasksAdded.Inc()

	t.mu.Lock()
	m.setStatusLocked(t, utils.StatusQueued)
	m.submitLocked(t)
	t.mu.Unlock()
	m.log.Info().Str("op", "scheduler/add").Str("task", taskID).Str("url", link).Str("path", filePath).Msg("Task queued")
	return true
}

// submitLocked starts a new run of t chained after the previous one.
// Callers hold m.mu and t.mu.
func (m *Manager) submitLocked(t *task) {
	ctx, cancel := context.WithCancelCause(context.Background())
	prev := t.done
	done := make(chan struct{})
	t.cancel, t.done = cancel, done
	m.wg.Add(1)
	go m.run(ctx, t, prev, done)
}

func (m *Manager) lookup(id string) (*task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok && !m.closed
}

// PauseTask stops a DOWNLOADING task, keeping its partial file and chunk
// offsets for ResumeTask.
func (m *Manager) PauseTask(id string) bool {
	t, ok := m.lookup(id)
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != utils.StatusDownloading {
		return false
	}
	t.cancel(errPaused)
	m.setStatusLocked(t, utils.StatusPaused)
	m.log.Info().Str("op", "scheduler/pause").Str("task", id).Int64("downloaded", t.downloaded.Load()).Msg("Task paused")
	return true
}

// ResumeTask requeues a PAUSED task. When the server cannot serve ranges the
// partial file is useless and the download restarts from zero.
func (m *Manager) ResumeTask(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || m.closed {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != utils.StatusPaused {
		return false
	}
	if t.probed && !t.supportsRange && t.downloaded.Load() > 0 {
		t.restart = true
		m.emit(t, notify.Event{Type: notify.EventError, Message: utils.ErrRangeNotSupported.Error() + ", restarting download"})
	}
	m.setStatusLocked(t, utils.StatusQueued)
	m.emit(t, notify.Event{Type: notify.EventResume})
	m.submitLocked(t)
	m.log.Info().Str("op", "scheduler/resume").Str("task", id).Bool("restart", t.restart).Msg("Task resumed")
	return true
}

// CancelTask stops a non-terminal task, releases it and removes its partial
// file unless KeepPartialOnCancel is set. It returns once the task's worker
// has exited.
func (m *Manager) CancelTask(id string) bool {
	t, ok := m.lookup(id)
	if !ok {
		return false
	}
	return m.cancelTasks([]*task{t}) == 1
}

func (m *Manager) CancelAllTasks() int {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return 0
	}
	ts := m.activeTasksLocked()
	m.mu.RUnlock()
	return m.cancelTasks(ts)
}

func (m *Manager) activeTasksLocked() []*task {
	ts := make([]*task, 0, len(m.tasks))
	for _, t := range m.tasks {
		ts = append(ts, t)
	}
	return ts
}

// cancelTasks signals every task first and then waits for the workers, so
// the waits overlap.
func (m *Manager) cancelTasks(ts []*task) int {
	type cancelled struct {
		t    *task
		done <-chan struct{}
		snap TaskInfo
	}
	var stopped []cancelled
	for _, t := range ts {
		t.mu.Lock()
		if t.status.IsTerminal() {
			t.mu.Unlock()
			continue
		}
		t.cancel(errCancelled)
		t.completeTime = time.Now()
		m.setStatusLocked(t, utils.StatusCancelled)
		stopped = append(stopped, cancelled{t: t, done: t.done, snap: t.snapshotLocked()})
		t.mu.Unlock()
	}
	for _, c := range stopped {
		<-c.done
		if !m.cfg.KeepPartialOnCancel {
			if err := m.store.DiscardPartial(c.t.filePath); err != nil {
				m.log.Warn().Str("op", "scheduler/cancel").Str("task", c.t.id).Err(err).Msg("Failed to discard partial file")
			}
		}
		m.release(c.t, c.snap)
		m.log.Info().Str("op", "scheduler/cancel").Str("task", c.t.id).Msg("Task cancelled")
	}
	return len(stopped)
}

// release drops a terminal task from the registry, keeping its final snapshot.
func (m *Manager) release(t *task, snap TaskInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks[t.id] == t {
		delete(m.tasks, t.id)
		m.finished[t.id] = snap
	}
}

// GetTaskStatus reports the status of a live or finished task.
func (m *Manager) GetTaskStatus(id string) (utils.DownloadStatus, bool) {
	info, ok := m.GetTask(id)
	return info.Status, ok
}

func (m *Manager) GetTask(id string) (TaskInfo, bool) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	info, done := m.finished[id]
	m.mu.RUnlock()
	if ok {
		return t.snapshot(), true
	}
	return info, done
}

// ListTasks returns live and finished tasks ordered by creation time.
func (m *Manager) ListTasks() []TaskInfo {
	m.mu.RLock()
	live := m.activeTasksLocked()
	infos := make([]TaskInfo, 0, len(live)+len(m.finished))
	for _, info := range m.finished {
		infos = append(infos, info)
	}
	m.mu.RUnlock()
	for _, t := range live {
		infos = append(infos, t.snapshot())
	}
	slices.SortFunc(infos, func(a, b TaskInfo) int {
		if c := a.CreateTime.Compare(b.CreateTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// DeleteTask cancels the task if it is still live, forgets it and removes its
// output and partial files.
func (m *Manager) DeleteTask(id string) bool {
	info, ok := m.GetTask(id)
	if !ok {
		return false
	}
	if !info.Status.IsTerminal() {
		m.CancelTask(id)
	}
	m.mu.Lock()
	delete(m.finished, id)
	m.mu.Unlock()
	if err := m.store.Remove(info.FilePath); err != nil {
		m.log.Warn().Str("op", "scheduler/delete").Str("task", id).Err(err).Msg("Failed to remove output file")
	}
	return true
}

// ClearFinished forgets all terminal tasks and returns how many were dropped.
func (m *Manager) ClearFinished() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.finished)
	clear(m.finished)
	return n
}

// Wait blocks until every submitted run has exited and their callbacks were
// delivered. Paused tasks do not hold it up. Tasks must not be added while
// waiting.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return m.notifier.Flush(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every live task, waits for the workers and drains pending
// callbacks. Later control calls are no-ops.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ts := m.activeTasksLocked()
	m.mu.Unlock()
	m.log.Debug().Str("op", "scheduler/shutdown").Int("tasks", len(ts)).Msg("Shutting down")

	stopped := make(chan struct{})
	go func() {
		m.cancelTasks(ts)
		m.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
	}
	return m.notifier.Close(ctx)
}

// setStatusLocked records s and emits the status change followed by the
// matching lifecycle event.
func (m *Manager) setStatusLocked(t *task, s utils.DownloadStatus) {
	t.status = s
	metrics.TaskTransitions.WithLabelValues(s.String()).Inc()
	m.emit(t, notify.Event{Type: notify.EventStatus, Status: s})
	switch s {
	case utils.StatusDownloading:
		if !t.started {
			t.started = true
			m.emit(t, notify.Event{Type: notify.EventStart})
		}
	case utils.StatusPaused:
		m.emit(t, notify.Event{Type: notify.EventPause})
	case utils.StatusCancelled:
		m.emit(t, notify.Event{Type: notify.EventCancel})
	case utils.StatusCompleted:
		m.emit(t, notify.Event{Type: notify.EventComplete, FilePath: t.filePath})
	}
}

func (m *Manager) emit(t *task, ev notify.Event) {
	ev.TaskID = t.id
	m.notifier.Notify(t.cb, ev)
}
