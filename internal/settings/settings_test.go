package settings

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/kv"
)

func TestSegmentFor(t *testing.T) {
	s := Defaults()

	cases := []struct {
		sector string
		want   string
	}{
		{"BTP", "IFU 1"},
		{"btp", "IFU 1"},
		{"Travaux publics routiers", "IFU 1"},
		{"Restaurant", "IFU 2"},
		{"Hôtel", "IFU 2"},
		{"Transport", "IFU 3"},
		{"Industrie", "IFU 3"},
		{"Pharmacie", "IFU 4"},
		{"Clinique", "IFU 4"},
		{"Notaire", "IFU 4"},
		{"Nettoyage", "IFU 5"},
		{"Communication", "IFU 5"},
		{"Agriculture", "IFU 5"},
		// Keyword contains the sector text.
		{"Phar", "IFU 4"},
	}
	for _, c := range cases {
		if got := s.SegmentFor(c.sector); got != c.want {
			t.Errorf("SegmentFor(%q) = %q, want %q", c.sector, got, c.want)
		}
	}
}

func TestSegmentForIdempotent(t *testing.T) {
	s := Defaults()
	for _, sector := range []string{"BTP", "Logistique", "xyz", "", "Commerce de gros"} {
		first := s.SegmentFor(sector)
		if second := s.SegmentFor(sector); second != first {
			t.Errorf("SegmentFor(%q) not stable: %q then %q", sector, first, second)
		}
		if !s.HasSegment(first) {
			t.Errorf("SegmentFor(%q) = %q, not a declared segment", sector, first)
		}
	}
}

func TestSegmentForFirstMatchWins(t *testing.T) {
	s := Defaults()
	s.SegmentNames = []string{"A", "B", "C"}
	s.Segments = map[string]SegmentDefinition{
		"A": {Sectors: []string{"bois"}},
		"B": {Sectors: []string{"bois", "forêt"}},
		"C": {},
	}
	if got := s.SegmentFor("Bois"); got != "A" {
		t.Errorf("SegmentFor(Bois) = %q, want A", got)
	}
	if got := s.SegmentFor("Forêt"); got != "B" {
		t.Errorf("SegmentFor(Forêt) = %q, want B", got)
	}
	if got := s.SegmentFor("Mer"); got != "C" {
		t.Errorf("SegmentFor(Mer) = %q, want fallback C", got)
	}
}

func TestDecodeMergesOverDefaults(t *testing.T) {
	s, err := Decode([]byte(`{"centerName":"Centre de Ntoum","ui":{"pageSize":10},"thresholds":{"criticalDebt":1000}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.CenterName != "Centre de Ntoum" {
		t.Errorf("CenterName = %q", s.CenterName)
	}
	if s.UI.PageSize != 10 {
		t.Errorf("PageSize = %d, want 10", s.UI.PageSize)
	}
	if s.Thresholds.CriticalDebt != 1000 {
		t.Errorf("CriticalDebt = %v, want 1000", s.Thresholds.CriticalDebt)
	}
	if s.Thresholds.CriticalAgeDays != 90 {
		t.Errorf("CriticalAgeDays = %d, want default 90", s.Thresholds.CriticalAgeDays)
	}
	if s.Objective != 120_000_000_000 {
		t.Errorf("Objective = %v, want default", s.Objective)
	}
	if len(s.SegmentNames) != 5 {
		t.Errorf("SegmentNames = %v", s.SegmentNames)
	}
}

func TestDecodeRepairsInvalidValues(t *testing.T) {
	s, err := Decode([]byte(`{"objectiveAnnual":0,"ifuNames":[],"ui":{"pageSize":-3}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.Objective <= 0 || s.UI.PageSize != 25 || len(s.SegmentNames) != 5 {
		t.Errorf("not repaired: objective %v page %d segments %v", s.Objective, s.UI.PageSize, s.SegmentNames)
	}
}

func TestLoadIgnoresMalformedOverride(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	store.Set(ctx, kv.KeySettings, "{not json")

	s := Load(ctx, store, zap.NewNop())
	if s.CenterName != Defaults().CenterName {
		t.Errorf("CenterName = %q, want default", s.CenterName)
	}
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()

	s := Defaults()
	s.PeriodLabel = "Exercice 2027"
	if err := Save(ctx, store, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := Load(ctx, store, zap.NewNop())
	if got.PeriodLabel != "Exercice 2027" {
		t.Errorf("PeriodLabel = %q", got.PeriodLabel)
	}
}
