package redisstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts a miniredis server and returns a backend connected to it
func setupTestRedis(t *testing.T, opts ...Option) (*Backend, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	return newBackend(t, mr, opts...), mr
}

func newBackend(t *testing.T, mr *miniredis.Miniredis, opts ...Option) *Backend {
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewBackend(client, opts...)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestGet_Success(t *testing.T) {
	b, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(storageKey(storage.KeyCart), `[{"id":1}]`))

	got, err := b.Get(context.Background(), storage.KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1}]`, string(got))
}

func TestGet_Missing(t *testing.T) {
	b, _ := setupTestRedis(t)

	got, err := b.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Nil(t, got)
}

func TestSet_Success(t *testing.T) {
	b, mr := setupTestRedis(t)

	require.NoError(t, b.Set(context.Background(), storage.KeyFilters, []byte(`{"category":"Books"}`)))

	stored, err := mr.Get(storageKey(storage.KeyFilters))
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"Books"}`, stored)
	assert.Equal(t, time.Duration(0), mr.TTL(storageKey(storage.KeyFilters)))
}

func TestSet_WithTTL(t *testing.T) {
	b, mr := setupTestRedis(t, WithTTL(10*time.Minute))

	require.NoError(t, b.Set(context.Background(), storage.KeyCart, []byte(`[]`)))
	assert.Equal(t, 10*time.Minute, mr.TTL(storageKey(storage.KeyCart)))
}

func TestDelete(t *testing.T) {
	b, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(storageKey(storage.KeyCart), `[]`))

	require.NoError(t, b.Delete(context.Background(), storage.KeyCart))
	assert.False(t, mr.Exists(storageKey(storage.KeyCart)))
	assert.NoError(t, b.Delete(context.Background(), "nonexistent"))
}

func TestSet_PublishesEnvelope(t *testing.T) {
	b, mr := setupTestRedis(t, WithChannel("test:changes"))
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, "test:changes")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Set(ctx, storage.KeyCart, []byte(`[]`)))

	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, b.Origin(), env.Origin)
	assert.Equal(t, storage.KeyCart, env.Key)
	assert.Equal(t, []byte(`[]`), env.Value)
}

func TestWatch_ReceivesOtherOriginsOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	local := newBackend(t, mr)
	remote := newBackend(t, mr)
	ctx := context.Background()

	changes := make(chan storage.Change, 10)
	stop, err := local.Watch(ctx, func(c storage.Change) { changes <- c })
	require.NoError(t, err)
	defer stop()

	require.NoError(t, local.Set(ctx, storage.KeyCart, []byte(`"mine"`)))
	require.NoError(t, remote.Set(ctx, storage.KeyCart, []byte(`"theirs"`)))

	select {
	case c := <-changes:
		assert.Equal(t, storage.KeyCart, c.Key)
		assert.Equal(t, []byte(`"theirs"`), c.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("remote change not delivered")
	}

	select {
	case c := <-changes:
		t.Fatalf("unexpected change %q", c.Value)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBackend_ThroughStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	local := storage.New(ctx, newBackend(t, mr))
	remote := storage.New(ctx, newBackend(t, mr))

	got := make(chan []int, 1)
	cancel := storage.Subscribe(local, storage.KeyCart, func(v []int) { got <- v })
	defer cancel()

	require.NoError(t, remote.Save(ctx, storage.KeyCart, []int{1, 2}))

	select {
	case v := <-got:
		assert.Equal(t, []int{1, 2}, v)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
	assert.Equal(t, []int{1, 2}, storage.Load(ctx, local, storage.KeyCart, []int(nil)))
}
