package scoring

import (
	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
)

// SegmentSummary aggregates the dossiers of one IFU segment.
type SegmentSummary struct {
	Segment   string   `json:"ifu"`
	Label     string   `json:"label"`
	Keywords  []string `json:"sectors"`
	Count     int      `json:"dossiers"`
	Debt      float64  `json:"debt"`
	Critical  int      `json:"crit"`
	Reference float64  `json:"reference"`
}

// SegmentSummaries returns one summary per declared segment, in order.
// Taxpayers assigned to an undeclared segment are not counted.
func SegmentSummaries(records []db.Taxpayer, s settings.Settings) []SegmentSummary {
	idx := make(map[string]int, len(s.SegmentNames))
	out := make([]SegmentSummary, len(s.SegmentNames))
	for i, name := range s.SegmentNames {
		idx[name] = i
		def := s.Segments[name]
		out[i] = SegmentSummary{
			Segment:   name,
			Label:     def.Label,
			Keywords:  def.Sectors,
			Reference: s.Reference.SegmentTotals[name],
		}
	}
	for _, t := range records {
		i, ok := idx[t.Segment]
		if !ok {
			continue
		}
		out[i].Count++
		out[i].Debt += t.Debt
		if IsCritical(t, s.Thresholds) {
			out[i].Critical++
		}
	}
	return out
}
