package storage

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
)

// NotFoundIsHealthy lets a breaker treat missing keys as successful calls
func NotFoundIsHealthy(err error) bool {
	return errors.Is(err, ErrNotFound)
}

type breakerBackend struct {
	Backend
	br *circuitbreaker.Breaker
}

// WithBreaker routes every call to b through br. The change feed of b, if any,
// is passed through untouched.
func WithBreaker(b Backend, br *circuitbreaker.Breaker) Backend {
	return &breakerBackend{Backend: b, br: br}
}

func (b *breakerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return b.br.Do(func() ([]byte, error) {
		return b.Backend.Get(ctx, key)
	})
}

func (b *breakerBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.br.Do(func() ([]byte, error) {
		return nil, b.Backend.Set(ctx, key, value)
	})
	return err
}

func (b *breakerBackend) Delete(ctx context.Context, key string) error {
	_, err := b.br.Do(func() ([]byte, error) {
		return nil, b.Backend.Delete(ctx, key)
	})
	return err
}

func (b *breakerBackend) Watch(ctx context.Context, fn func(Change)) (func() error, error) {
	w, ok := b.Backend.(Watcher)
	if !ok {
		return nil, ErrWatchUnsupported
	}
	return w.Watch(ctx, fn)
}
