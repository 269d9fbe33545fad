// Package kv provides the small key/value persistence FiscOps keeps on the
// workstation: the local dataset blob, the settings override, the active
// center id and the auth session.
package kv

import (
	"context"
	"errors"
)

// Fixed keys used across the application.
const (
	KeyData     = "fiscops_data_v2"
	KeySettings = "fiscops_settings_v2"
	KeyCenter   = "fiscops_center_id"
	KeySession  = "fiscops_session"
)

// ErrInvalidKey is returned for keys that cannot be stored.
var ErrInvalidKey = errors.New("kv: invalid key")

// Store is a string key/value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
