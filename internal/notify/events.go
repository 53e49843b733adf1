package notify

import "github.com/tanq16/rangefetch/internal/utils"

// Callback receives engine events. All methods run on the notifier goroutine,
// one at a time.
type Callback interface {
	OnProgress(taskID string, percent float64, downloaded, total int64)
	OnStatusChanged(taskID string, status utils.DownloadStatus)
	OnError(taskID string, message string)
}

// LifecycleCallback is optionally implemented by a Callback to receive
// higher level lifecycle events.
type LifecycleCallback interface {
	OnStart(taskID string)
	OnPause(taskID string)
	OnResume(taskID string)
	OnCancel(taskID string)
	OnComplete(taskID string, filePath string)
}

type EventType int

const (
	EventProgress EventType = iota
	EventStatus
	EventError
	EventStart
	EventPause
	EventResume
	EventCancel
	EventComplete
)

var eventNames = [...]string{"progress", "status", "error", "start", "pause", "resume", "cancel", "complete"}

func (e EventType) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

type Event struct {
	TaskID     string
	Type       EventType
	Status     utils.DownloadStatus
	Percent    float64
	Downloaded int64
	Total      int64
	Message    string
	FilePath   string
}

func dispatch(cb Callback, ev Event) {
	switch ev.Type {
	case EventProgress:
		cb.OnProgress(ev.TaskID, ev.Percent, ev.Downloaded, ev.Total)
	case EventStatus:
		cb.OnStatusChanged(ev.TaskID, ev.Status)
	case EventError:
		cb.OnError(ev.TaskID, ev.Message)
	default:
		lc, ok := cb.(LifecycleCallback)
		if !ok {
			return
		}
		switch ev.Type {
		case EventStart:
			lc.OnStart(ev.TaskID)
		case EventPause:
			lc.OnPause(ev.TaskID)
		case EventResume:
			lc.OnResume(ev.TaskID)
		case EventCancel:
			lc.OnCancel(ev.TaskID)
		case EventComplete:
			lc.OnComplete(ev.TaskID, ev.FilePath)
		}
	}
}

// Funcs adapts plain functions to Callback and LifecycleCallback. Nil fields are skipped.
type Funcs struct {
	Progress func(taskID string, percent float64, downloaded, total int64)
	Status   func(taskID string, status utils.DownloadStatus)
	Error    func(taskID string, message string)
	Start    func(taskID string)
	Pause    func(taskID string)
	Resume   func(taskID string)
	Cancel   func(taskID string)
	Complete func(taskID string, filePath string)
}

func (f Funcs) OnProgress(taskID string, percent float64, downloaded, total int64) {
	if f.Progress != nil {
		f.Progress(taskID, percent, downloaded, total)
	}
}

func (f Funcs) OnStatusChanged(taskID string, status utils.DownloadStatus) {
	if f.Status != nil {
		f.Status(taskID, status)
	}
}

func (f Funcs) OnError(taskID string, message string) {
	if f.Error != nil {
		f.Error(taskID, message)
	}
}

func (f Funcs) OnStart(taskID string) {
	if f.Start != nil {
		f.Start(taskID)
	}
}

func (f Funcs) OnPause(taskID string) {
	if f.Pause != nil {
		f.Pause(taskID)
	}
}

func (f Funcs) OnResume(taskID string) {
	if f.Resume != nil {
		f.Resume(taskID)
	}
}

func (f Funcs) OnCancel(taskID string) {
	if f.Cancel != nil {
		f.Cancel(taskID)
	}
}

func (f Funcs) OnComplete(taskID string, filePath string) {
	if f.Complete != nil {
		f.Complete(taskID, filePath)
	}
}
