package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/commodity-alerts/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

// HeaderStyle is used for section headers.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// UnreadStyle marks unread notification titles.
var UnreadStyle = lipgloss.NewStyle().Bold(true)

// ReadStyle dims notifications that were already read.
var ReadStyle = lipgloss.NewStyle().Foreground(ColorGray)

// HelpStyle is used for hints and placeholder messages.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ErrorStyle is used for the retry prompt.
var ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)

// SeverityStyle returns a color-coded style for a severity level.
func SeverityStyle(s model.Severity) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch s {
	case model.SeverityHigh:
		return base.Foreground(ColorRed)
	case model.SeverityMedium:
		return base.Foreground(ColorOrange)
	default:
		return base.Foreground(ColorBlue)
	}
}

// TypeStyle returns a color-coded style for a notification type label.
func TypeStyle(t model.NotificationType) lipgloss.Style {
	base := lipgloss.NewStyle().Padding(0, 1)

	switch t {
	case model.NotificationPrice:
		return base.Foreground(ColorYellow)
	case model.NotificationNews:
		return base.Foreground(ColorGreen)
	case model.NotificationThreshold:
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}

// ChangeStyle colors a percentage change by direction.
func ChangeStyle(pct float64) lipgloss.Style {
	if pct < 0 {
		return lipgloss.NewStyle().Foreground(ColorRed)
	}
	return lipgloss.NewStyle().Foreground(ColorGreen)
}
