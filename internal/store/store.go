// Package store loads and saves a center's dataset, either from the
// workstation key/value store or from the relational store.
package store

import (
	"context"
	"errors"
	"math/rand"

	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
)

// Mode names the active storage backend.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ErrNoData is returned by a backend that holds no dataset yet.
var ErrNoData = errors.New("no dataset stored")

// Backend persists one center's dataset.
type Backend interface {
	Mode() Mode
	Load(ctx context.Context) (db.Dataset, error)
	Save(ctx context.Context, ds db.Dataset) error
}

// LoadOrSeed loads the dataset from b. When the load fails the error is
// logged and returned together with a synthetic dataset so callers can keep
// working.
func LoadOrSeed(ctx context.Context, b Backend, s settings.Settings, rng *rand.Rand, log *zap.Logger) (db.Dataset, error) {
	ds, err := b.Load(ctx)
	if err == nil {
		return ds, nil
	}
	log.Error("load dataset failed, using demo data", zap.String("mode", string(b.Mode())), zap.Error(err))
	return Seed(rng, s), err
}
