package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/tanq16/rangefetch/internal/progress"
	"github.com/tanq16/rangefetch/internal/utils"
)

// ProgressBar renders a fixed width bar. An unknown percent draws an empty
// bar with the byte count only.
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		width = 30
	}
	if percent == progress.UnknownPercent {
		return debugStyle.Render(fmt.Sprintf("%s%s%s ?%% ", StyleSymbols["bullet"], strings.Repeat(" ", width), StyleSymbols["bullet"]))
	}
	percent = max(0, min(percent, 100))
	filled := max(0, min(int(percent/100*float64(width)), width))
	bar := StyleSymbols["bullet"] + strings.Repeat(StyleSymbols["hline"], filled) + strings.Repeat(" ", width-filled) + StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% ", bar, percent))
}

// transferLine is the stream line shown under an active task.
func transferLine(percent float64, downloaded, total int64, elapsed time.Duration) string {
	size := utils.FormatBytes(uint64(max(downloaded, 0)))
	if total > 0 {
		size += " / " + utils.FormatBytes(uint64(total))
	}
	speed := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		speed = float64(downloaded) / secs
	}
	return fmt.Sprintf("%s%s %s %s", ProgressBar(percent, 30), debugStyle.Render(size), StyleSymbols["bullet"], debugStyle.Render(utils.FormatSpeed(speed)))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func terminalHeight(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if _, height, err := term.GetSize(f.Fd()); err == nil && height > 0 {
			return height
		}
	}
	return 24
}
