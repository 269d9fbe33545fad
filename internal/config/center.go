package config

import (
	"context"
	"strings"

	"github.com/lndambition2025-ops/fiscops/internal/kv"
)

// CenterID returns the center the workstation is attached to. An explicit
// override wins, then the stored value, then DefaultCenterID.
func CenterID(ctx context.Context, store kv.Store, override string) (string, error) {
	if id := normalizeCenter(override); id != "" {
		return id, nil
	}
	raw, ok, err := store.Get(ctx, kv.KeyCenter)
	if err != nil {
		return "", err
	}
	if id := normalizeCenter(raw); ok && id != "" {
		return id, nil
	}
	return DefaultCenterID, nil
}

// SetCenterID persists the center for later sessions.
func SetCenterID(ctx context.Context, store kv.Store, id string) error {
	id = normalizeCenter(id)
	if id == "" {
		id = DefaultCenterID
	}
	return store.Set(ctx, kv.KeyCenter, id)
}

func normalizeCenter(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
