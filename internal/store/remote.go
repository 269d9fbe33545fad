package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
)

// ChunkSize is the number of taxpayers written per upsert.
const ChunkSize = 200

// Remote loads and saves a center's dataset in the relational store.
type Remote struct {
	db       *db.Store
	centerID string
	settings settings.Settings
	log      *zap.Logger
	now      func() time.Time
}

// NewRemote creates a Remote backend scoped to centerID.
func NewRemote(store *db.Store, centerID string, s settings.Settings, log *zap.Logger) *Remote {
	return &Remote{db: store, centerID: centerID, settings: s, log: log, now: time.Now}
}

func (r *Remote) Mode() Mode { return ModeRemote }

// CenterID returns the center the backend is scoped to.
func (r *Remote) CenterID() string { return r.centerID }

// Load runs the three center queries concurrently. Any failing query fails
// the load; a missing week plan does not.
func (r *Remote) Load(ctx context.Context) (db.Dataset, error) {
	var ds db.Dataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tps, err := r.db.Taxpayers(gctx, r.centerID, db.MaxTaxpayers)
		ds.Taxpayers = tps
		return err
	})
	g.Go(func() error {
		actions, err := r.db.Actions(gctx, r.centerID, db.MaxActions)
		ds.ActionsLog = actions
		return err
	})
	g.Go(func() error {
		plan, err := r.db.WeekPlan(gctx, r.centerID)
		ds.WeekPlan = plan
		return err
	})
	if err := g.Wait(); err != nil {
		return db.Dataset{}, fmt.Errorf("load center %s: %w", r.centerID, err)
	}
	ds.Normalize()
	Repair(&ds, r.settings)
	return ds, nil
}

// Save upserts taxpayers in chunks, one after the other. A failing chunk is
// logged and does not stop the following ones. The week plan and new
// actions are written last. All failures are returned joined.
func (r *Remote) Save(ctx context.Context, ds db.Dataset) error {
	now := r.now()
	var errs []error
	for start := 0; start < len(ds.Taxpayers); start += ChunkSize {
		end := min(start+ChunkSize, len(ds.Taxpayers))
		if err := r.db.UpsertTaxpayers(ctx, r.centerID, ds.Taxpayers[start:end], now); err != nil {
			r.log.Error("upsert taxpayer chunk",
				zap.String("center", r.centerID), zap.Int("from", start), zap.Int("to", end), zap.Error(err))
			errs = append(errs, fmt.Errorf("chunk %d-%d: %w", start, end, err))
		}
	}
	if err := r.db.UpsertWeekPlan(ctx, r.centerID, ds.WeekPlan, now); err != nil {
		r.log.Error("upsert week plan", zap.String("center", r.centerID), zap.Error(err))
		errs = append(errs, err)
	}
	if err := r.db.InsertActions(ctx, r.centerID, ds.ActionsLog); err != nil {
		r.log.Error("insert actions", zap.String("center", r.centerID), zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
