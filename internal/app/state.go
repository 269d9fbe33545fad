package app

import (
	"strings"

	"github.com/lndambition2025-ops/fiscops/internal/db"
)

// View identifies one of the dashboard views.
type View int

const (
	ViewPortfolio View = iota
	ViewSegments
	ViewPlan
	ViewSegmentTotals
	ViewReport
)

// Views lists the views in navigation order.
var Views = []View{ViewPortfolio, ViewSegments, ViewPlan, ViewSegmentTotals, ViewReport}

func (v View) String() string {
	switch v {
	case ViewPortfolio:
		return "Portefeuille"
	case ViewSegments:
		return "Segments"
	case ViewPlan:
		return "Plan semaine"
	case ViewSegmentTotals:
		return "IFU"
	case ViewReport:
		return "Rapport"
	}
	return "?"
}

// All is the filter value that disables a filter.
const All = "Tous"

// State is the navigation state of the dashboard. Every transition returns a
// new value and leaves the receiver untouched.
type State struct {
	View    View
	Query   string
	Segment string
	Status  string
	Page    int // 1-based
	Cursor  int // row within the page
	OpenID  string
}

// NewState returns the initial state: portfolio view, no filter, page 1.
func NewState() State {
	return State{View: ViewPortfolio, Segment: All, Status: All, Page: 1}
}

func (s State) WithView(v View) State {
	s.View = v
	return s
}

// WithQuery sets the search text and goes back to the first page.
func (s State) WithQuery(q string) State {
	s.Query = q
	return s.firstPage()
}

// WithSegment sets the segment filter and goes back to the first page.
func (s State) WithSegment(segment string) State {
	s.Segment = segment
	return s.firstPage()
}

// WithStatus sets the status filter and goes back to the first page.
func (s State) WithStatus(status string) State {
	s.Status = status
	return s.firstPage()
}

// CycleSegment moves the segment filter to the next value of
// Tous, names[0], names[1]...
func (s State) CycleSegment(names []string) State {
	return s.WithSegment(cycle(append([]string{All}, names...), s.Segment))
}

// CycleStatus moves the status filter to the next value of Tous and the
// taxpayer statuses.
func (s State) CycleStatus() State {
	return s.WithStatus(cycle(append([]string{All}, db.Statuses...), s.Status))
}

// NextPage advances one page without passing the last one.
func (s State) NextPage(total, pageSize int) State {
	s.Page++
	s.Cursor = 0
	return s.Clamp(total, pageSize)
}

// PrevPage goes back one page without passing the first one.
func (s State) PrevPage() State {
	s.Page = max(1, s.Page-1)
	s.Cursor = 0
	return s
}

// MoveCursor moves the row cursor by delta within a page of rows rows.
func (s State) MoveCursor(delta, rows int) State {
	if rows <= 0 {
		s.Cursor = 0
		return s
	}
	s.Cursor = max(0, min(rows-1, s.Cursor+delta))
	return s
}

// Open marks a dossier as open in the overlay.
func (s State) Open(id string) State {
	s.OpenID = id
	return s
}

// CloseDossier hides the overlay.
func (s State) CloseDossier() State {
	s.OpenID = ""
	return s
}

// Clamp brings the page into [1, PageCount(total, pageSize)] and the cursor
// into the rows of that page.
func (s State) Clamp(total, pageSize int) State {
	pages := PageCount(total, pageSize)
	s.Page = max(1, min(s.Page, pages))
	rows := rowsOnPage(total, pageSize, s.Page)
	s.Cursor = max(0, min(s.Cursor, rows-1))
	return s
}

func (s State) firstPage() State {
	s.Page = 1
	s.Cursor = 0
	return s
}

func cycle(values []string, current string) string {
	for i, v := range values {
		if v == current {
			return values[(i+1)%len(values)]
		}
	}
	return values[0]
}

// Filter keeps the records matching the query, segment and status of s, in
// their original order. The query is a case-insensitive substring of the
// name, sector or company type.
func Filter(records []db.Taxpayer, s State) []db.Taxpayer {
	q := strings.ToLower(strings.TrimSpace(s.Query))
	var out []db.Taxpayer
	for _, t := range records {
		if q != "" &&
			!strings.Contains(strings.ToLower(t.Name), q) &&
			!strings.Contains(strings.ToLower(t.Sector), q) &&
			!strings.Contains(strings.ToLower(t.Type), q) {
			continue
		}
		if s.Segment != All && s.Segment != "" && t.Segment != s.Segment {
			continue
		}
		if s.Status != All && s.Status != "" && t.StatusOrDefault() != s.Status {
			continue
		}
		out = append(out, t)
	}
	return out
}

// PageCount is max(1, ceil(total/pageSize)).
func PageCount(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// Paginate returns the records of page (1-based, clamped) and the clamped
// page number.
func Paginate(records []db.Taxpayer, page, pageSize int) ([]db.Taxpayer, int) {
	page = max(1, min(page, PageCount(len(records), pageSize)))
	if pageSize <= 0 {
		return records, page
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(records))
	if start >= end {
		return nil, page
	}
	return records[start:end], page
}

func rowsOnPage(total, pageSize, page int) int {
	if pageSize <= 0 {
		return total
	}
	start := (page - 1) * pageSize
	return max(0, min(pageSize, total-start))
}
