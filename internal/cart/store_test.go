package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addedAt = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func product(id int64, price string, stock int) *domain.Product {
	return &domain.Product{
		ID:       id,
		Name:     "Product",
		Price:    decimal.RequireFromString(price),
		Category: domain.CategoryBooks,
		Stock:    stock,
		Tags:     []string{"fiction"},
	}
}

// eventLog collects published events
type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) record(e notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *eventLog) last() notify.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return notify.Event{}
	}
	return l.events[len(l.events)-1]
}

func setupCart(t *testing.T) (*Store, *memory.Space, *eventLog) {
	space := memory.NewSpace()
	st := storage.New(context.Background(), space.Context())
	t.Cleanup(func() { st.Close() })

	log := &eventLog{}
	bus := notify.NewBus()
	bus.Subscribe(log.record)

	c := NewStore(context.Background(), st, WithEvents(bus), WithClock(func() time.Time { return addedAt }))
	t.Cleanup(c.Close)
	return c, space, log
}

func TestAddToCart_NewLine(t *testing.T) {
	c, _, log := setupCart(t)
	ctx := context.Background()

	require.NoError(t, c.AddToCart(ctx, product(1, "10.00", 5), 2))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].ID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, addedAt, lines[0].AddedAt)
	assert.True(t, c.IsInCart(1))

	e := log.last()
	assert.Equal(t, notify.CartAdded, e.Kind)
	assert.Equal(t, notify.Success, e.Outcome)
	assert.Equal(t, "Product added to cart!", e.Message)
}

func TestAddToCart_MergesExistingLine(t *testing.T) {
	c, _, log := setupCart(t)
	ctx := context.Background()
	p := product(1, "10.00", 5)

	require.NoError(t, c.AddToCart(ctx, p, 2))
	require.NoError(t, c.AddToCart(ctx, p, 3))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, notify.CartUpdated, log.last().Kind)
}

func TestAddToCart_RejectsOverStock(t *testing.T) {
	c, _, log := setupCart(t)
	ctx := context.Background()
	p := product(1, "10.00", 5)

	require.NoError(t, c.AddToCart(ctx, p, 3))

	err := c.AddToCart(ctx, p, 3)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	line, ok := c.Line(1)
	require.True(t, ok)
	assert.Equal(t, 3, line.Quantity, "rejected in full, not clamped")

	e := log.last()
	assert.Equal(t, notify.CartStockLimit, e.Kind)
	assert.Equal(t, notify.RejectedInsufficientStock, e.Outcome)

	assert.ErrorIs(t, c.AddToCart(ctx, product(2, "1.00", 0), 1), ErrInsufficientStock)
	assert.False(t, c.IsInCart(2))
}

func TestAddToCart_InvalidInput(t *testing.T) {
	c, _, log := setupCart(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.AddToCart(ctx, nil, 1), ErrInvalidProduct)
	assert.Equal(t, notify.MsgInvalidProduct, log.last().Message)
	assert.ErrorIs(t, c.AddToCart(ctx, &domain.Product{Stock: 5}, 1), ErrInvalidProduct)
	assert.ErrorIs(t, c.AddToCart(ctx, product(1, "1.00", 5), 0), ErrInvalidQuantity)
	assert.Equal(t, notify.RejectedInvalidInput, log.last().Outcome)
	assert.Equal(t, notify.MsgInvalidQuantity, log.last().Message)
	assert.Empty(t, c.Lines())
}

func TestAddToCart_SnapshotsProduct(t *testing.T) {
	c, _, _ := setupCart(t)
	p := product(1, "10.00", 5)

	require.NoError(t, c.AddToCart(context.Background(), p, 1))
	p.Name = "Renamed"
	p.Tags[0] = "changed"

	line, _ := c.Line(1)
	assert.Equal(t, "Product", line.Name)
	assert.Equal(t, []string{"fiction"}, line.Tags)
}

func TestUpdateQuantity(t *testing.T) {
	c, _, log := setupCart(t)
	ctx := context.Background()
	require.NoError(t, c.AddToCart(ctx, product(1, "10.00", 5), 2))

	require.NoError(t, c.UpdateQuantity(ctx, 1, 4))
	line, _ := c.Line(1)
	assert.Equal(t, 4, line.Quantity)

	assert.ErrorIs(t, c.UpdateQuantity(ctx, 1, 6), ErrInsufficientStock)
	line, _ = c.Line(1)
	assert.Equal(t, 4, line.Quantity)
	assert.Equal(t, notify.CartStockLimit, log.last().Kind)

	require.NoError(t, c.UpdateQuantity(ctx, 99, 2), "absent id is ignored")

	require.NoError(t, c.UpdateQuantity(ctx, 1, 0))
	assert.False(t, c.IsInCart(1))
	assert.Equal(t, notify.CartRemoved, log.last().Kind)
}

func TestIncrementDecrement(t *testing.T) {
	c, _, _ := setupCart(t)
	ctx := context.Background()
	require.NoError(t, c.AddToCart(ctx, product(1, "10.00", 2), 1))

	require.NoError(t, c.IncrementQuantity(ctx, 1))
	line, _ := c.Line(1)
	assert.Equal(t, 2, line.Quantity)

	assert.ErrorIs(t, c.IncrementQuantity(ctx, 1), ErrInsufficientStock)

	require.NoError(t, c.DecrementQuantity(ctx, 1))
	require.NoError(t, c.DecrementQuantity(ctx, 1))
	assert.False(t, c.IsInCart(1))

	assert.NoError(t, c.IncrementQuantity(ctx, 1))
	assert.NoError(t, c.DecrementQuantity(ctx, 1))
	assert.Empty(t, c.Lines())
}

func TestRemoveFromCart(t *testing.T) {
	c, _, log := setupCart(t)
	ctx := context.Background()
	require.NoError(t, c.AddToCart(ctx, product(1, "10.00", 5), 1))
	require.NoError(t, c.AddToCart(ctx, product(2, "5.00", 5), 1))

	c.RemoveFromCart(ctx, 1)
	assert.False(t, c.IsInCart(1))
	assert.True(t, c.IsInCart(2))
	assert.Equal(t, "Product removed from cart!", log.last().Message)

	before := log.count()
	c.RemoveFromCart(ctx, 1)
	assert.Equal(t, before, log.count(), "no event for an absent id")
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		qty      int
		shipping string
		total    string
	}{
		{"exactly 50 pays shipping", "25.00", 2, "5.99", "60.99"},
		{"above 50 ships free", "50.01", 1, "0", "55.011"},
		{"small order", "10.00", 1, "5.99", "16.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := setupCart(t)
			require.NoError(t, c.AddToCart(context.Background(), product(1, tt.price, 10), tt.qty))

			sum := c.Summary()
			assert.True(t, decimal.RequireFromString(tt.shipping).Equal(sum.Shipping), "shipping %s", sum.Shipping)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(sum.Total), "total %s", sum.Total)
			assert.Equal(t, tt.qty, sum.TotalItems)
			assert.Equal(t, 1, sum.UniqueItems)
			assert.False(t, sum.IsEmpty)
		})
	}
}

func TestClearCart(t *testing.T) {
	c, space, log := setupCart(t)
	ctx := context.Background()
	require.NoError(t, c.AddToCart(ctx, product(1, "10.00", 5), 3))

	c.ClearCart(ctx)

	sum := c.Summary()
	assert.True(t, sum.IsEmpty)
	assert.Zero(t, sum.TotalItems)
	assert.True(t, sum.Subtotal.IsZero())
	assert.True(t, sum.Tax.IsZero())
	assert.True(t, decimal.RequireFromString("5.99").Equal(sum.Total))
	assert.Equal(t, notify.MsgCartCleared, log.last().Message)

	raw, ok := space.Raw(storage.KeyCart)
	require.True(t, ok)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestPersistAndReload(t *testing.T) {
	c, space, _ := setupCart(t)
	ctx := context.Background()
	require.NoError(t, c.AddToCart(ctx, product(1, "10.00", 5), 2))
	require.NoError(t, c.AddToCart(ctx, product(2, "3.50", 5), 1))

	st := storage.New(ctx, space.Context())
	t.Cleanup(func() { st.Close() })
	reloaded := NewStore(ctx, st)
	t.Cleanup(reloaded.Close)

	lines := reloaded.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, int64(1), lines[0].ID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("10").Equal(lines[0].Price))
	assert.True(t, lines[0].AddedAt.Equal(addedAt))
	assert.Equal(t, int64(2), lines[1].ID)
	assert.True(t, c.Summary().Total.Equal(reloaded.Summary().Total))
}

func TestLoad_DropsInvalidLines(t *testing.T) {
	space := memory.NewSpace()
	space.Put(storage.KeyCart, []byte(`[
		{"id":1,"name":"a","price":"2","stock":5,"quantity":1},
		{"id":1,"name":"dup","price":"2","stock":5,"quantity":3},
		{"id":2,"name":"zero","price":"2","stock":5,"quantity":0},
		{"id":0,"name":"noid","price":"2","stock":5,"quantity":1},
		{"id":3,"name":"over","price":"2","stock":2,"quantity":9}
	]`))
	st := storage.New(context.Background(), space.Context())
	t.Cleanup(func() { st.Close() })

	c := NewStore(context.Background(), st)
	t.Cleanup(c.Close)

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "a", lines[0].Name)
}

func TestLoad_CorruptPayloadYieldsEmptyCart(t *testing.T) {
	space := memory.NewSpace()
	space.Put(storage.KeyCart, []byte(`{not json`))
	st := storage.New(context.Background(), space.Context())
	t.Cleanup(func() { st.Close() })

	c := NewStore(context.Background(), st)
	t.Cleanup(c.Close)
	assert.True(t, c.Summary().IsEmpty)
}

func TestSyncFromOtherContext(t *testing.T) {
	a, space, _ := setupCart(t)
	ctx := context.Background()

	st := storage.New(ctx, space.Context())
	t.Cleanup(func() { st.Close() })
	log := &eventLog{}
	bus := notify.NewBus()
	bus.Subscribe(log.record)
	b := NewStore(ctx, st, WithEvents(bus))
	t.Cleanup(b.Close)

	require.NoError(t, a.AddToCart(ctx, product(7, "4.00", 9), 2))

	require.Eventually(t, func() bool {
		line, ok := b.Line(7)
		return ok && line.Quantity == 2
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return log.last().Kind == notify.CartSynced
	}, time.Second, 5*time.Millisecond)

	a.ClearCart(ctx)
	require.Eventually(t, func() bool { return b.Summary().IsEmpty }, time.Second, 5*time.Millisecond)

	space.Put(storage.KeyCart, []byte(`[
		{"id":8,"name":"over","price":"2","stock":2,"quantity":9},
		{"id":9,"name":"fits","price":"2","stock":5,"quantity":1}
	]`))
	require.Eventually(t, func() bool { return b.IsInCart(9) }, time.Second, 5*time.Millisecond)
	assert.False(t, b.IsInCart(8), "lines above their stock are dropped")
	assert.Equal(t, 1, b.Summary().TotalItems)
}

func TestInMemoryOnly(t *testing.T) {
	c := NewStore(context.Background(), nil)
	require.NoError(t, c.AddToCart(context.Background(), product(1, "1.00", 1), 1))
	assert.True(t, c.IsInCart(1))
	assert.False(t, c.Loading())
	c.Close()
}
