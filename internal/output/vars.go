package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/tanq16/rangefetch/internal/utils"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))            // dark green
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))             // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))            // blue
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))            // cyan
	debugStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))           // light grey
	streamStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))           // grey
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"pending": "◉",
	"pause":   "‖",
	"info":    "ℹ",
	"arrow":   "→",
	"bullet":  "•",
	"hline":   "━",
}

// statusLook maps a task status to its indicator symbol and style.
func statusLook(s utils.DownloadStatus) (string, lipgloss.Style) {
	switch s {
	case utils.StatusCompleted:
		return StyleSymbols["pass"], successStyle
	case utils.StatusFailed:
		return StyleSymbols["fail"], errorStyle
	case utils.StatusCancelled:
		return StyleSymbols["warning"], warningStyle
	case utils.StatusPaused:
		return StyleSymbols["pause"], warningStyle
	case utils.StatusDownloading:
		return StyleSymbols["pending"], pendingStyle
	default:
		return StyleSymbols["bullet"], infoStyle
	}
}

func PrintSuccess(text string) {
	fmt.Println(successStyle.Render(text))
}
func PrintError(text string) {
	fmt.Println(errorStyle.Render(text))
}
func PrintWarning(text string) {
	fmt.Println(warningStyle.Render(text))
}
func PrintInfo(text string) {
	fmt.Println(infoStyle.Render(text))
}
func PrintHeader(text string) {
	fmt.Println(headerStyle.Render(text))
}
