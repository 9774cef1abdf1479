package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	logx "github.com/fjod/go_cart/storefront/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Store serializes values to JSON on top of a Backend. Reads fail soft and
// writes are best effort: failures are logged and returned but never panic.
type Store struct {
	backend Backend
	sfg     singleflight.Group // collapses concurrent loads of one key

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func([]byte)

	stopWatch func() error
}

// New wraps backend. If the backend implements Watcher, external changes are
// dispatched to Subscribe handlers until Close.
func New(ctx context.Context, backend Backend) *Store {
	s := &Store{
		backend: backend,
		subs:    make(map[string]map[int]func([]byte)),
	}

	if w, ok := backend.(Watcher); ok {
		stop, err := w.Watch(ctx, s.dispatch)
		switch {
		case err == nil:
			s.stopWatch = stop
		case errors.Is(err, ErrWatchUnsupported):
			logx.Debug().Msg("storage backend has no change feed")
		default:
			logx.Warn().Err(err).Msg("failed to watch storage backend, cross-context sync disabled")
		}
	}
	return s
}

// Load returns the value stored under key, or def when the key is missing or
// the stored payload does not parse.
func Load[T any](ctx context.Context, s *Store, key string, def T) T {
	raw, err := s.get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logx.Warn().Err(err).Str("key", key).Msg("failed to read storage key, using default")
		}
		return def
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("stored value is corrupt, using default")
		return def
	}
	return v
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		return s.backend.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Save serializes value and writes it under key
func (s *Store) Save(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to marshal value")
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.backend.Set(ctx, key, b); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to persist value")
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Remove deletes key
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to remove value")
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Subscribe calls fn whenever another context writes a value under key that
// parses into T. Deletions and unparsable payloads are skipped.
func Subscribe[T any](s *Store, key string, fn func(T)) (cancel func()) {
	return s.subscribe(key, func(raw []byte) {
		if raw == nil {
			return
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			logx.Warn().Err(err).Str("key", key).Msg("ignoring unparsable external change")
			return
		}
		fn(v)
	})
}

func (s *Store) subscribe(key string, fn func([]byte)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func([]byte))
	}
	s.subs[key][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[key], id)
	}
}

func (s *Store) dispatch(c Change) {
	s.mu.RLock()
	handlers := make([]func([]byte), 0, len(s.subs[c.Key]))
	for _, fn := range s.subs[c.Key] {
		handlers = append(handlers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range handlers {
		fn(c.Value)
	}
}

// Close stops the change feed and closes the backend
func (s *Store) Close() error {
	if s.stopWatch != nil {
		if err := s.stopWatch(); err != nil {
			logx.Warn().Err(err).Msg("failed to stop storage watch")
		}
	}
	return s.backend.Close()
}
