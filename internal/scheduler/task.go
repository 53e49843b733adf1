package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tanq16/rangefetch/internal/notify"
	"github.com/tanq16/rangefetch/internal/progress"
	"github.com/tanq16/rangefetch/internal/utils"
)

// TaskInfo is a by-value snapshot of a task.
type TaskInfo struct {
	ID              string
	URL             string
	FilePath        string
	Status          utils.DownloadStatus
	TotalBytes      int64 // <= 0 while unknown
	DownloadedBytes int64
	Progress        float64 // percent, progress.UnknownPercent when the size is unknown
	SupportsRange   bool
	Speed           float64
	ETA             time.Duration
	CreateTime      time.Time
	CompleteTime    time.Time
	Error           string
}

type task struct {
	mu sync.Mutex

	id        string
	url       string
	filePath  string
	cb        notify.Callback
	transport utils.Transport
	agg       *progress.Aggregator

	status        utils.DownloadStatus
	total         int64
	supportsRange bool
	probed        bool
	started       bool
	restart       bool // discard the partial before the next run
	chunks        []*chunk
	speed         float64
	eta           time.Duration
	createTime    time.Time
	completeTime  time.Time
	errMsg        string

	downloaded atomic.Int64

	cancel context.CancelCauseFunc
	done   chan struct{} // closed when the current run exits
}

func (t *task) snapshotLocked() TaskInfo {
	downloaded := t.downloaded.Load()
	return TaskInfo{
		ID:              t.id,
		URL:             t.url,
		FilePath:        t.filePath,
		Status:          t.status,
		TotalBytes:      t.total,
		DownloadedBytes: downloaded,
		Progress:        progress.Percent(downloaded, t.total),
		SupportsRange:   t.supportsRange,
		Speed:           t.speed,
		ETA:             t.eta,
		CreateTime:      t.createTime,
		CompleteTime:    t.completeTime,
		Error:           t.errMsg,
	}
}

func (t *task) snapshot() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// resetLocked forgets all transferred bytes and the chunk plan.
func (t *task) resetLocked() {
	t.downloaded.Store(0)
	t.chunks = nil
	t.agg.Reset(0)
}
