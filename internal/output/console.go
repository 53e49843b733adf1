package output

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/rangefetch/internal/utils"
)

type taskView struct {
	id         string
	label      string
	status     utils.DownloadStatus
	percent    float64
	downloaded int64
	total      int64
	err        string
	index      int
	startTime  time.Time
	updated    time.Time
}

type errorReport struct {
	label string
	err   string
	time  time.Time
}

// Console renders task callbacks to a writer. On a terminal it redraws a live
// view on every tick; otherwise it prints one line per terminal transition.
type Console struct {
	out         io.Writer
	interactive bool
	tick        time.Duration

	mu       sync.RWMutex
	tasks    map[string]*taskView
	count    int
	numLines int
	errors   []errorReport

	doneCh    chan struct{}
	displayWg sync.WaitGroup
}

func NewConsole(out io.Writer) *Console {
	return &Console{
		out:         out,
		interactive: isTerminal(out),
		tick:        300 * time.Millisecond,
		tasks:       make(map[string]*taskView),
		doneCh:      make(chan struct{}),
	}
}

// Track registers a task id with a display label before its first event.
func (c *Console) Track(id, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view(id).label = label
}

// view returns the row for id, creating it. Callers hold c.mu.
func (c *Console) view(id string) *taskView {
	v, ok := c.tasks[id]
	if !ok {
		c.count++
		v = &taskView{id: id, label: id, index: c.count, startTime: time.Now(), updated: time.Now()}
		c.tasks[id] = v
	}
	return v
}

func (c *Console) OnProgress(id string, percent float64, downloaded, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.view(id)
	v.percent, v.downloaded, v.total = percent, downloaded, total
	v.updated = time.Now()
}

func (c *Console) OnStatusChanged(id string, status utils.DownloadStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.view(id)
	v.status = status
	v.updated = time.Now()
	if status == utils.StatusFailed {
		c.errors = append(c.errors, errorReport{label: v.label, err: v.err, time: v.updated})
	}
	if status.IsTerminal() && !c.interactive {
		fmt.Fprintln(c.out, c.row(v))
	}
}

// OnError records the message. It is reported with the task once it reaches
// FAILED and shown as a note while the task is still running.
func (c *Console) OnError(id, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view(id).err = message
}

func (c *Console) OnStart(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.view(id)
	v.startTime = time.Now()
}

func (c *Console) OnPause(string)  {}
func (c *Console) OnResume(string) {}
func (c *Console) OnCancel(string) {}

func (c *Console) OnComplete(id, filePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view(id).label = filePath
}

// Counts returns how many tracked tasks completed and failed.
func (c *Console) Counts() (completed, failed, total int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.tasks {
		switch v.status {
		case utils.StatusCompleted:
			completed++
		case utils.StatusFailed:
			failed++
		}
	}
	return completed, failed, len(c.tasks)
}

func (c *Console) row(v *taskView) string {
	symbol, style := statusLook(v.status)
	elapsed := v.updated.Sub(v.startTime).Round(time.Second)
	if !v.status.IsTerminal() {
		elapsed = time.Since(v.startTime).Round(time.Second)
	}
	var message string
	switch v.status {
	case utils.StatusCompleted:
		message = fmt.Sprintf("Completed %s (%s)", v.label, utils.FormatBytes(uint64(max(v.downloaded, 0))))
	case utils.StatusFailed:
		message = fmt.Sprintf("Failed %s: %s", v.label, v.err)
	case utils.StatusCancelled:
		message = fmt.Sprintf("Cancelled %s", v.label)
	case utils.StatusPaused:
		message = fmt.Sprintf("Paused %s", v.label)
	case utils.StatusDownloading:
		message = fmt.Sprintf("Downloading %s", v.label)
	default:
		message = fmt.Sprintf("Waiting %s", v.label)
	}
	return fmt.Sprintf("  %s %s %s", style.Render(symbol), debugStyle.Render(elapsed.String()), style.Render(message))
}

func (c *Console) sortTasks() (active, queued, finished []*taskView) {
	all := make([]*taskView, 0, len(c.tasks))
	for _, v := range c.tasks {
		all = append(all, v)
	}
	slices.SortFunc(all, func(a, b *taskView) int { return a.index - b.index })
	for _, v := range all {
		switch {
		case v.status.IsTerminal():
			finished = append(finished, v)
		case v.status == utils.StatusQueued:
			queued = append(queued, v)
		default:
			active = append(active, v)
		}
	}
	return active, queued, finished
}

// render redraws the live view in place.
func (c *Console) render() {
	c.mu.Lock()
	defer c.mu.Unlock()
	available := terminalHeight(c.out) - 3
	var lines []string
	active, queued, finished := c.sortTasks()
	for _, v := range active {
		lines = append(lines, c.row(v))
		if v.err != "" {
			lines = append(lines, "      "+warningStyle.Render(v.err))
		}
		if v.status == utils.StatusDownloading {
			lines = append(lines, "      "+streamStyle.Render(transferLine(v.percent, v.downloaded, v.total, time.Since(v.startTime))))
		}
	}
	for _, v := range queued {
		lines = append(lines, c.row(v))
	}
	if len(finished) > 10 {
		lines = append(lines, "  "+infoStyle.Render(fmt.Sprintf("%d downloads finished earlier ...", len(finished)-8)))
		finished = finished[len(finished)-8:]
	}
	for _, v := range finished {
		lines = append(lines, c.row(v))
	}
	if len(lines) > available {
		lines = lines[:max(available, 0)]
	}

	var b strings.Builder
	if c.numLines > 0 {
		fmt.Fprintf(&b, "\033[%dA\033[J", c.numLines)
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	io.WriteString(c.out, b.String())
	c.numLines = len(lines)
}

// Start begins periodic redraws on interactive outputs.
func (c *Console) Start() {
	if !c.interactive {
		return
	}
	c.displayWg.Add(1)
	go func() {
		defer c.displayWg.Done()
		ticker := time.NewTicker(c.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.render()
			case <-c.doneCh:
				c.render()
				return
			}
		}
	}()
}

// Stop ends the redraw loop and prints the summary.
func (c *Console) Stop() {
	close(c.doneCh)
	c.displayWg.Wait()
	c.ShowSummary()
}

func (c *Console) ShowSummary() {
	completed, failed, total := c.Counts()
	c.mu.RLock()
	defer c.mu.RUnlock()
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "  "+summaryStyle.Render(fmt.Sprintf("Completed %d of %d", completed, total)))
	if failed > 0 {
		fmt.Fprintln(c.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, total)))
	}
	if len(c.errors) > 0 {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "  "+errorStyle.Bold(true).Render("Errors:"))
		for i, e := range c.errors {
			fmt.Fprintf(c.out, "    %s %s %s\n",
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", e.time.Format("15:04:05"))),
				errorStyle.Render(e.label))
			fmt.Fprintf(c.out, "      %s\n", errorStyle.Render("Error: "+e.err))
		}
	}
	fmt.Fprintln(c.out)
}
