package storage

import (
	"context"
	"errors"
)

// Persisted keys
const (
	KeyCart        = "shopping-cart"
	KeyFilters     = "product-filters"
	KeyPreferences = "user-preferences"
)

var (
	ErrNotFound         = errors.New("key not found")
	ErrWatchUnsupported = errors.New("backend does not publish changes")
)

// Backend is a durable key-value store holding serialized values
type Backend interface {
	// Get returns ErrNotFound when the key is absent
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete is a no-op for absent keys
	Delete(ctx context.Context, key string) error
	Close() error
}

// Change is a write made by another context. Value is nil when the key was deleted.
type Change struct {
	Key   string
	Value []byte
}

// Watcher is implemented by backends that can report writes from other contexts.
// Writes made through the watching backend itself are not reported.
type Watcher interface {
	Watch(ctx context.Context, fn func(Change)) (stop func() error, err error)
}
