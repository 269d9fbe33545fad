// Package report builds the one-page portfolio report and renders it as PDF.
package report

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"

	"github.com/lndambition2025-ops/fiscops/internal/scoring"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
	"github.com/lndambition2025-ops/fiscops/internal/ui"
)

// Heading introduces the priority list.
const Heading = "Priorités"

// MaxItems caps the priorities listed in the report.
const MaxItems = 8

// Title heads every report.
const Title = "FiscOps — Rapport 1 page"

// Disclaimer closes the report.
const Disclaimer = "Les décisions présentées dans ce rapport sont basées sur des indicateurs objectifs calculés automatiquement par le système."

// Item is one priority line.
type Item struct {
	Name    string
	Segment string
	Debt    float64
	Index   int
}

// Document is the fixed layout of the report.
type Document struct {
	Title     string
	Center    string
	Period    string
	Objective float64
	Reference float64
	DebtTotal float64
	Critical  int
	Impact    float64
	ImpactPct float64
	Items     []Item
}

// Build assembles a report from already computed aggregates.
func Build(s settings.Settings, totals scoring.Totals, pr scoring.Priorities) Document {
	doc := Document{
		Title:     Title,
		Center:    s.CenterName,
		Period:    s.PeriodLabel,
		Objective: s.Objective,
		Reference: s.Reference.Total,
		DebtTotal: totals.DebtTotal,
		Critical:  totals.Critical,
		Impact:    pr.Impact,
		ImpactPct: scoring.PctObjective(pr.Impact, s.Objective),
	}
	for i, p := range pr.Top {
		if i == MaxItems {
			break
		}
		doc.Items = append(doc.Items, Item{
			Name:    p.Taxpayer.Name,
			Segment: p.Taxpayer.Segment,
			Debt:    p.Taxpayer.Debt,
			Index:   p.Index,
		})
	}
	return doc
}

// Lines returns the report as text, one entry per printed line.
func (d Document) Lines() []string {
	lines := []string{
		d.Title,
		d.Center + " • " + d.Period,
		fmt.Sprintf("Objectif annuel : %s (réf. : %s)", ui.FCFA(d.Objective), ui.FCFA(d.Reference)),
		fmt.Sprintf("Dette totale : %s • Dettes critiques : %d", ui.FCFA(d.DebtTotal), d.Critical),
		Heading,
		fmt.Sprintf("Impact potentiel estimé : +%s (%s)", ui.FCFA(d.Impact), ui.Percent(d.ImpactPct)),
	}
	for _, it := range d.Items {
		lines = append(lines, fmt.Sprintf("• %s — %s — %s — Indice %d/100", it.Name, it.Segment, ui.FCFA(it.Debt), it.Index))
	}
	return append(lines, "", Disclaimer)
}

// WritePDF renders the document on a single A4 portrait page.
func WritePDF(w io.Writer, d Document) error {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	y := 48.0
	for i, line := range d.Lines() {
		x, step := 40.0, 14.0
		switch {
		case i == 0:
			pdf.SetFont("Helvetica", "B", 14)
			step = 18
		case line == Heading:
			pdf.SetFont("Helvetica", "B", 10)
			step = 12
		case line == Disclaimer:
			pdf.SetFont("Helvetica", "I", 8)
			y += 8
		case strings.HasPrefix(line, "• "):
			pdf.SetFont("Helvetica", "", 10)
			x, step = 48, 12
		default:
			pdf.SetFont("Helvetica", "", 10)
		}
		pdf.Text(x, y, tr(line))
		y += step
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return pdf.Output(w)
}

// Filename returns the download name for a center's report,
// e.g. FiscOps_Rapport_Owendo.pdf.
func Filename(centerID string) string {
	id := strings.TrimSpace(centerID)
	if id == "" {
		id = "Centre"
	}
	r := []rune(strings.ToLower(id))
	r[0] = unicode.ToUpper(r[0])
	return "FiscOps_Rapport_" + string(r) + ".pdf"
}
