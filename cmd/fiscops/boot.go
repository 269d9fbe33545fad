package main

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/config"
	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/kv"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
	"github.com/lndambition2025-ops/fiscops/internal/store"
)

const redisPrefix = "fiscops:"

// runtime is everything a command needs once the configuration is known.
type runtime struct {
	cfg      config.Config
	log      *zap.Logger
	kv       kv.Store
	settings settings.Settings
	centerID string
	backend  store.Backend
	db       *db.Store // nil in local mode

	closers []func() error
}

func defaultLogFile(dir string) string {
	return filepath.Join(dir, "fiscops.log")
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// boot opens the workstation store, resolves the center and picks the
// backend for the configured mode.
func boot(ctx context.Context, cfg config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log}

	if cfg.RedisAddr != "" {
		r, err := kv.NewRedis(ctx, cfg.RedisAddr, redisPrefix)
		if err != nil {
			return nil, err
		}
		rt.kv = r
		rt.closers = append(rt.closers, r.Close)
	} else {
		f, err := kv.NewFile(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		rt.kv = f
	}

	rt.settings = settings.Load(ctx, rt.kv, log)

	centerID, err := config.CenterID(ctx, rt.kv, cfg.CenterID)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("read center: %w", err)
	}
	if cfg.CenterID != "" {
		if err := config.SetCenterID(ctx, rt.kv, centerID); err != nil {
			log.Warn("could not remember center", zap.Error(err))
		}
	}
	rt.centerID = centerID

	switch cfg.Mode() {
	case store.ModeRemote:
		st, err := db.Open(cfg.RemoteURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.db = st
		rt.closers = append(rt.closers, st.Close)
		rt.backend = store.NewRemote(st, centerID, rt.settings, log)
	default:
		rt.backend = store.NewLocal(rt.kv, rt.settings, newRand(), log)
	}

	log.Info("fiscops started",
		zap.String("mode", string(cfg.Mode())),
		zap.String("center", centerID),
		zap.String("data_dir", cfg.DataDir))
	return rt, nil
}

// Close releases the stores in reverse order of opening.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.log.Warn("close failed", zap.Error(err))
		}
	}
	rt.closers = nil
}
