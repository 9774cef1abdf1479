// Package redisstore keeps storage keys in Redis and announces every write on a
// pub/sub channel, so separate processes sharing the server see each other's
// changes.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/storage"
	logx "github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "storefront:changes"

type Option func(*Backend)

// WithChannel overrides the pub/sub channel
func WithChannel(channel string) Option {
	return func(b *Backend) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithTTL expires keys after ttl of inactivity. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.ttl = ttl }
}

type Backend struct {
	client  *redis.Client
	origin  string
	channel string
	ttl     time.Duration
}

// envelope is the pub/sub payload
type envelope struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Value  []byte `json:"value"`
}

func NewBackend(client *redis.Client, opts ...Option) *Backend {
	b := &Backend{
		client:  client,
		origin:  uuid.New().String(),
		channel: DefaultChannel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Origin identifies this backend in published changes
func (b *Backend) Origin() string {
	return b.origin
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, storageKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	msg, err := json.Marshal(envelope{Origin: b.origin, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("marshal change failed: %w", err)
	}

	_, err = b.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, storageKey(key), value, b.ttl)
		p.Publish(ctx, b.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	msg, err := json.Marshal(envelope{Origin: b.origin, Key: key})
	if err != nil {
		return fmt.Errorf("marshal change failed: %w", err)
	}

	_, err = b.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, storageKey(key))
		p.Publish(ctx, b.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Watch subscribes to the change channel. It returns once the subscription is
// confirmed by the server.
func (b *Backend) Watch(ctx context.Context, fn func(storage.Change)) (func() error, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}

	go func() {
		for msg := range ps.Channel() {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logx.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed change message")
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			fn(storage.Change{Key: env.Key, Value: env.Value})
		}
	}()

	return ps.Close, nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func storageKey(key string) string {
	return fmt.Sprintf("storefront:%s", key)
}

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Watcher = (*Backend)(nil)
)
