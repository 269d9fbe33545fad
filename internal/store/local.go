package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/kv"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
)

// Local keeps the dataset as one JSON blob in the workstation kv store.
type Local struct {
	kv       kv.Store
	settings settings.Settings
	rng      *rand.Rand
	log      *zap.Logger
}

// NewLocal creates a Local backend. rng drives the demo seed.
func NewLocal(store kv.Store, s settings.Settings, rng *rand.Rand, log *zap.Logger) *Local {
	return &Local{kv: store, settings: s, rng: rng, log: log}
}

func (l *Local) Mode() Mode { return ModeLocal }

// errMalformed marks a stored blob that cannot be decoded.
var errMalformed = errors.New("malformed dataset")

// Load returns the stored dataset. A missing or malformed blob is replaced
// by a freshly seeded dataset, which is persisted right away. A failing kv
// read is returned as is and nothing is written.
func (l *Local) Load(ctx context.Context) (db.Dataset, error) {
	ds, err := l.read(ctx)
	if err == nil {
		Repair(&ds, l.settings)
		return ds, nil
	}
	if !errors.Is(err, ErrNoData) && !errors.Is(err, errMalformed) {
		return db.Dataset{}, err
	}
	l.log.Info("seeding local dataset", zap.Error(err))

	ds = Seed(l.rng, l.settings)
	if err := l.Save(ctx, ds); err != nil {
		return ds, fmt.Errorf("persist seed: %w", err)
	}
	return ds, nil
}

func (l *Local) read(ctx context.Context) (db.Dataset, error) {
	raw, ok, err := l.kv.Get(ctx, kv.KeyData)
	if err != nil {
		return db.Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	if !ok {
		return db.Dataset{}, ErrNoData
	}
	var ds db.Dataset
	if err := json.Unmarshal([]byte(raw), &ds); err != nil {
		return db.Dataset{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if ds.Taxpayers == nil {
		return db.Dataset{}, ErrNoData
	}
	ds.Normalize()
	return ds, nil
}

// Save writes the whole dataset.
func (l *Local) Save(ctx context.Context, ds db.Dataset) error {
	ds.Normalize()
	b, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return l.kv.Set(ctx, kv.KeyData, string(b))
}
