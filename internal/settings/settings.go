// Package settings holds the center configuration: labels, the annual
// objective, the five IFU segments and the risk thresholds.
package settings

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/kv"
)

// SegmentDefinition describes one IFU segment.
type SegmentDefinition struct {
	Label   string   `json:"label"`
	Sectors []string `json:"sectors"`
}

// Reference holds the prior-year collection totals.
type Reference struct {
	Total         float64            `json:"total"`
	SegmentTotals map[string]float64 `json:"ifuTotals"`
	Spontaneous   float64            `json:"spontaneous"`
	Enforced      float64            `json:"amr"`
}

// Thresholds drive the critical flag and the dossier recommendation.
type Thresholds struct {
	CriticalDebt    float64 `json:"criticalDebt"`
	CriticalAgeDays int     `json:"criticalAgeDays"`
	ImmediateIndex  int     `json:"immediateIndex"`
}

// IndexParams are the decision index normalisation constants.
type IndexParams struct {
	DebtScale  float64 `json:"debtScale"`
	DebtWeight float64 `json:"debtWeight"`
	AgeScale   float64 `json:"ageScale"`
	AgeWeight  float64 `json:"ageWeight"`
}

// UI holds display preferences.
type UI struct {
	PageSize int `json:"pageSize"`
}

// Settings is the full center configuration. JSON names match the persisted
// override blob.
type Settings struct {
	CenterName   string                       `json:"centerName"`
	PeriodLabel  string                       `json:"monthLabel"`
	Objective    float64                      `json:"objectiveAnnual"`
	SegmentNames []string                     `json:"ifuNames"`
	Segments     map[string]SegmentDefinition `json:"ifuDefinitions"`
	Reference    Reference                    `json:"reference2025"`
	Thresholds   Thresholds                   `json:"thresholds"`
	Index        IndexParams                  `json:"index"`
	UI           UI                           `json:"ui"`
}

// Defaults returns the built-in settings of the Owendo tax center.
func Defaults() Settings {
	return Settings{
		CenterName:   "Centre des impôts d'Owendo",
		PeriodLabel:  "Exercice 2026",
		Objective:    120_000_000_000,
		SegmentNames: []string{"IFU 1", "IFU 2", "IFU 3", "IFU 4", "IFU 5"},
		Segments: map[string]SegmentDefinition{
			"IFU 1": {Label: "BTP", Sectors: []string{"BTP", "Construction", "Travaux publics"}},
			"IFU 2": {Label: "Commerce / Restauration", Sectors: []string{"Restaurant", "Hôtel", "Tourisme", "Décoration", "Commerce", "Boulangerie"}},
			"IFU 3": {Label: "Industrie / Ressources", Sectors: []string{"Forêt", "Bois", "Logistique", "Industrie", "Pétrole", "Mine", "Transport"}},
			"IFU 4": {Label: "Réglementé / Santé / Éducation", Sectors: []string{"Notaire", "Avocat", "École", "Immobilier", "Établissement privé", "Pharmacie", "Clinique"}},
			"IFU 5": {Label: "Services divers", Sectors: []string{"Communication", "Laverie", "Pressing", "Télécommunication", "Pompes funèbres", "Gardiennage", "Sécurité", "Placement", "Location d'engins", "Nettoyage"}},
		},
		Reference: Reference{
			Total: 82_022_587_928,
			SegmentTotals: map[string]float64{
				"IFU 1": 7_818_798_832,
				"IFU 2": 6_435_389_081,
				"IFU 3": 36_545_071_977,
				"IFU 4": 21_079_669_793,
				"IFU 5": 10_143_658_245,
			},
			Spontaneous: 78_204_558_091,
			Enforced:    3_818_992_397,
		},
		Thresholds: Thresholds{CriticalDebt: 50_000_000, CriticalAgeDays: 90, ImmediateIndex: 80},
		Index:      IndexParams{DebtScale: 50_000_000, DebtWeight: 60, AgeScale: 90, AgeWeight: 40},
		UI:         UI{PageSize: 25},
	}
}

// Fallback returns the catch-all segment, the last declared one.
func (s Settings) Fallback() string {
	if len(s.SegmentNames) == 0 {
		return ""
	}
	return s.SegmentNames[len(s.SegmentNames)-1]
}

// HasSegment reports whether name is a declared segment.
func (s Settings) HasSegment(name string) bool {
	for _, n := range s.SegmentNames {
		if n == name {
			return true
		}
	}
	return false
}

// Label returns the display label of a segment, or "".
func (s Settings) Label(segment string) string {
	return s.Segments[segment].Label
}

// SegmentFor classifies a free-text sector into a segment. Matching is a
// case-insensitive substring test in both directions against each segment's
// keywords, in declared order; the first match wins. Unmatched sectors fall
// into the catch-all segment. Overlapping keywords can pick an unintended
// segment; that is accepted.
func (s Settings) SegmentFor(sector string) string {
	needle := strings.ToLower(sector)
	for _, name := range s.SegmentNames {
		for _, kw := range s.Segments[name].Sectors {
			k := strings.ToLower(kw)
			if strings.Contains(needle, k) || strings.Contains(k, needle) {
				return name
			}
		}
	}
	return s.Fallback()
}

// Decode merges a persisted override over the defaults. Keys absent from the
// override keep their default value.
func Decode(raw []byte) (Settings, error) {
	s := Defaults()
	if err := json.Unmarshal(raw, &s); err != nil {
		return Defaults(), fmt.Errorf("decode settings: %w", err)
	}
	s.repair()
	return s, nil
}

// repair restores defaults for values the rest of the application cannot
// work with.
func (s *Settings) repair() {
	d := Defaults()
	if s.Objective <= 0 {
		s.Objective = d.Objective
	}
	if len(s.SegmentNames) == 0 {
		s.SegmentNames = d.SegmentNames
		s.Segments = d.Segments
	}
	if s.Segments == nil {
		s.Segments = map[string]SegmentDefinition{}
	}
	if s.UI.PageSize <= 0 {
		s.UI.PageSize = d.UI.PageSize
	}
	if s.Index.DebtScale <= 0 {
		s.Index.DebtScale = d.Index.DebtScale
	}
	if s.Index.AgeScale <= 0 {
		s.Index.AgeScale = d.Index.AgeScale
	}
}

// Load reads the settings override from store. A missing or unreadable
// override yields the defaults.
func Load(ctx context.Context, store kv.Store, log *zap.Logger) Settings {
	raw, ok, err := store.Get(ctx, kv.KeySettings)
	if err != nil {
		log.Warn("read settings", zap.Error(err))
		return Defaults()
	}
	if !ok {
		return Defaults()
	}
	s, err := Decode([]byte(raw))
	if err != nil {
		log.Warn("ignoring settings override", zap.Error(err))
	}
	return s
}

// Save persists the full settings as the override.
func Save(ctx context.Context, store kv.Store, s Settings) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return store.Set(ctx, kv.KeySettings, string(b))
}
