package tui

import "github.com/charmbracelet/lipgloss"

var (
	wechatGreen = lipgloss.Color("#07C160")
	accentCyan  = lipgloss.Color("#00BFFF")
	warnOrange  = lipgloss.Color("#FF8C00")
	errorRed    = lipgloss.Color("#FF4040")
	dimWhite    = lipgloss.Color("#B0B0B0")
	mutedGray   = lipgloss.Color("#626262")

	titleStyle = lipgloss.NewStyle().
			Background(wechatGreen).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(wechatGreen).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(accentCyan).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	successStyle = lipgloss.NewStyle().
			Foreground(wechatGreen).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warnOrange).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorRed).
			Bold(true)

	itemStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			PaddingLeft(2)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(mutedGray)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			PaddingTop(1)
)

func levelStyle(level string) lipgloss.Style {
	switch level {
	case "ERROR":
		return errorStyle
	case "WARN":
		return warningStyle
	case "SUCCESS":
		return successStyle
	default:
		return labelStyle
	}
}
