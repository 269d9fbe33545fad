package app

// Key binding constants used in handleKey.
const (
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeySearch     = "/"
	KeySegment    = "s"
	KeyStatus     = "f"
	KeyPrevPage   = "h"
	KeyLeft       = "left"
	KeyNextPage   = "l"
	KeyRight      = "right"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyJ          = "j"
	KeyK          = "k"
	KeyEnter      = "enter"
	KeyEsc        = "esc"
	KeyNew        = "n"
	KeySave       = "w"
	KeyPDF        = "p"
	KeySignOut    = "o"
	KeyTab        = "tab"
	KeyShiftTab   = "shift+tab"
	KeyCommit     = "ctrl+s"
	KeySignUp     = "ctrl+n"

	KeyViewPortfolio     = "1"
	KeyViewSegments      = "2"
	KeyViewPlan          = "3"
	KeyViewSegmentTotals = "4"
	KeyViewReport        = "5"
)

// viewKeys maps the number keys to their view.
var viewKeys = map[string]View{
	KeyViewPortfolio:     ViewPortfolio,
	KeyViewSegments:      ViewSegments,
	KeyViewPlan:          ViewPlan,
	KeyViewSegmentTotals: ViewSegmentTotals,
	KeyViewReport:        ViewReport,
}
