package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the dashboard.
var (
	ColorRed     = lipgloss.Color("#E5484D")
	ColorGreen   = lipgloss.Color("#30A46C")
	ColorAmber   = lipgloss.Color("#F5A524")
	ColorTeal    = lipgloss.Color("#12A594")
	ColorGray    = lipgloss.Color("#6F6F6F")
	ColorDimGray = lipgloss.Color("#3E3E3E")
	ColorWhite   = lipgloss.Color("#FFFFFF")
	ColorNavy    = lipgloss.Color("#1B2A4A")
)

// Base styles reused by the views.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorTeal)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	TabStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Padding(0, 1)

	TabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite).
			Background(ColorNavy).
			Padding(0, 1)

	KPILabelStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	KPIValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	KPIBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDimGray).
			Padding(0, 1)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWhite)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorTeal).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	CriticalStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	OngoingStyle = lipgloss.NewStyle().
			Foreground(ColorAmber)

	PaidStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	FlashStyle = lipgloss.NewStyle().
			Foreground(ColorGreen).
			Bold(true)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorAmber).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	OverlayStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorTeal).
			Padding(0, 2)

	LoginBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorNavy).
			Padding(1, 3)

	ImmediateBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorWhite).
				Background(ColorRed).
				Bold(true).
				Padding(0, 1)

	StandardBadgeStyle = lipgloss.NewStyle().
				Foreground(ColorWhite).
				Background(ColorDimGray).
				Padding(0, 1)
)

// StatusStyle picks the color for a taxpayer status label.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "Critique":
		return CriticalStyle
	case "En cours":
		return OngoingStyle
	case "Payé":
		return PaidStyle
	default:
		return DimStyle
	}
}

// IndexStyle colors a decision index against the immediate-action threshold.
func IndexStyle(index, immediate int) lipgloss.Style {
	switch {
	case index >= immediate:
		return CriticalStyle
	case index >= immediate/2:
		return OngoingStyle
	default:
		return DimStyle
	}
}

// Bar renders a fixed-width progress bar for a percentage in [0,100].
func Bar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(pct / 100 * float64(width))
	filled = max(0, min(filled, width))
	var b []rune
	for i := 0; i < width; i++ {
		if i < filled {
			b = append(b, '█')
		} else {
			b = append(b, '░')
		}
	}
	return string(b)
}
