package notify

import "github.com/charmbracelet/lipgloss"

var (
	colorTitle  = lipgloss.Color("#bd93f9")
	colorText   = lipgloss.Color("#a9b1d6")
	colorAction = lipgloss.Color("#8be9fd")
	colorMuted  = lipgloss.Color("#44475a")
)

var (
	colorOngoing  = lipgloss.Color("#50fa7b")
	colorPending  = lipgloss.Color("#ffb86c")
	colorFinished = lipgloss.Color("#bd93f9")
)

const (
	progressStart = "#ff79c6"
	progressEnd   = "#bd93f9"
)
