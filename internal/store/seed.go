package store

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
)

// SeedSize is the number of synthetic taxpayers of a demo dataset.
const SeedSize = 120

var (
	seedSectors  = []string{"BTP", "Commerce", "Restaurant", "Hôtel", "Logistique", "Industrie", "Transport", "Pharmacie", "Clinique", "Notaire", "Communication", "Nettoyage"}
	seedTypes    = []string{"PME", "TPE", "GE"}
	seedStatuses = []string{db.StatusNormal, db.StatusNormal, db.StatusNormal, db.StatusCritical, db.StatusOngoing}
)

// Seed generates the synthetic demo dataset. Amounts are random but bounded
// and every debt stays below its revenue.
func Seed(rng *rand.Rand, s settings.Settings) db.Dataset {
	taxpayers := make([]db.Taxpayer, SeedSize)
	for i := range taxpayers {
		sector := seedSectors[i%len(seedSectors)]

		base := 25_000_000.0
		switch {
		case rng.Float64() < 0.2:
			base = 1_200_000_000
		case rng.Float64() < 0.5:
			base = 180_000_000
		}
		revenue := math.Round(base * (0.6 + rng.Float64()))
		debt := math.Round(revenue * (0.02 + rng.Float64()*0.12))

		taxpayers[i] = db.Taxpayer{
			ID:      fmt.Sprintf("T%04d", i+1),
			Name:    fmt.Sprintf("Contribuable %d", i+1),
			Sector:  sector,
			Type:    seedTypes[i%len(seedTypes)],
			Revenue: revenue,
			Debt:    debt,
			AgeDays: 10 + rng.Intn(220),
			Status:  seedStatuses[i%len(seedStatuses)],
			Segment: s.SegmentFor(sector),
		}
	}
	ds := db.Dataset{Taxpayers: taxpayers}
	ds.Normalize()
	return ds
}

// Repair gives every taxpayer a declared segment, inferring it from the
// sector when the stored one is missing or unknown.
func Repair(ds *db.Dataset, s settings.Settings) {
	for i := range ds.Taxpayers {
		t := &ds.Taxpayers[i]
		if !s.HasSegment(t.Segment) {
			t.Segment = s.SegmentFor(t.Sector)
		}
	}
}
