// Package scoring computes the portfolio aggregates and the decision index
// used to prioritise dossiers. Every function is pure.
package scoring

import (
	"math"
	"sort"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
)

// DefaultTopN is the size of the daily priorities list.
const DefaultTopN = 10

// Recommendations shown on a dossier.
const (
	RecommendImmediate = "Action immédiate requise"
	RecommendStandard  = "Suivi standard"
)

// Totals are the portfolio aggregates.
type Totals struct {
	// Recovered stays at zero until payment data is tracked.
	Recovered    float64 `json:"recovered"`
	DebtTotal    float64 `json:"debtTotal"`
	RevenueTotal float64 `json:"caTotal"`
	// Ratio is debt over revenue, in percent.
	Ratio    float64 `json:"ratio"`
	Critical int     `json:"crit"`
}

// Priority is a taxpayer with its decision index.
type Priority struct {
	Taxpayer db.Taxpayer `json:"taxpayer"`
	Index    int         `json:"index"`
}

// Priorities is the ranked head of the portfolio.
type Priorities struct {
	Top []Priority `json:"top"`
	// Impact is the summed debt of Top.
	Impact float64 `json:"impact"`
}

// IsCritical reports whether a dossier crosses either threshold.
func IsCritical(t db.Taxpayer, th settings.Thresholds) bool {
	return t.Debt >= th.CriticalDebt || t.AgeDays >= th.CriticalAgeDays
}

// ComputeTotals aggregates debt and revenue over records.
func ComputeTotals(records []db.Taxpayer, th settings.Thresholds) Totals {
	var tot Totals
	for _, t := range records {
		tot.DebtTotal += t.Debt
		tot.RevenueTotal += t.Revenue
		if IsCritical(t, th) {
			tot.Critical++
		}
	}
	if tot.RevenueTotal != 0 {
		tot.Ratio = tot.DebtTotal / tot.RevenueTotal * 100
	}
	return tot
}

// DecisionIndex scores a dossier from 0 to 100. The debt and age components
// are each clamped to their weight before summing.
func DecisionIndex(t db.Taxpayer, p settings.IndexParams) int {
	var d, a float64
	if p.DebtScale > 0 {
		d = clamp(t.Debt/p.DebtScale*p.DebtWeight, 0, p.DebtWeight)
	}
	if p.AgeScale > 0 {
		a = clamp(float64(t.AgeDays)/p.AgeScale*p.AgeWeight, 0, p.AgeWeight)
	}
	return int(math.Round(clamp(d+a, 0, 100)))
}

// Recommendation turns an index into the dossier's recommended handling.
func Recommendation(index int, th settings.Thresholds) string {
	if index >= th.ImmediateIndex {
		return RecommendImmediate
	}
	return RecommendStandard
}

// TopPriorities ranks records by index then debt, both descending, and keeps
// the first n. Exact ties keep their input order.
func TopPriorities(records []db.Taxpayer, p settings.IndexParams, n int) Priorities {
	ranked := make([]Priority, len(records))
	for i, t := range records {
		ranked[i] = Priority{Taxpayer: t, Index: DecisionIndex(t, p)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Index != ranked[j].Index {
			return ranked[i].Index > ranked[j].Index
		}
		return ranked[i].Taxpayer.Debt > ranked[j].Taxpayer.Debt
	})
	if n < 0 {
		n = 0
	}
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	var impact float64
	for _, r := range ranked {
		impact += r.Taxpayer.Debt
	}
	return Priorities{Top: ranked, Impact: impact}
}

// PctObjective is amount as a share of the annual objective, in percent with
// two decimals. Negative amounts count as zero.
func PctObjective(amount, objective float64) float64 {
	if objective <= 0 {
		return 0
	}
	return math.Round(math.Max(0, amount)/objective*10000) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
