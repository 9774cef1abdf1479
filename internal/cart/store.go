package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/fjod/go_cart/storefront/internal/storage"
	logx "github.com/fjod/go_cart/storefront/pkg/logger"
)

var (
	ErrInvalidProduct    = errors.New("invalid product")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Option func(*Store)

func WithEvents(bus *notify.Bus) Option {
	return func(s *Store) { s.events = bus }
}

// WithClock sets the source of AddedAt timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the shopping cart of one context. Mutations are serialized and
// persisted before they return, so saves land in mutation order.
type Store struct {
	store       *storage.Store
	events      *notify.Bus
	now         func() time.Time
	unsubscribe func()
	loading     atomic.Bool

	mu    sync.RWMutex
	lines []domain.CartLine
}

// NewStore restores the persisted cart. A missing or corrupt payload yields an
// empty cart. A nil store keeps the cart in memory only.
func NewStore(ctx context.Context, store *storage.Store, opts ...Option) *Store {
	s := &Store{
		store: store,
		now:   time.Now,
		lines: []domain.CartLine{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if store != nil {
		s.lines = sanitize(storage.Load(ctx, store, storage.KeyCart, []domain.CartLine{}))
		s.unsubscribe = storage.Subscribe(store, storage.KeyCart, s.applyExternal)
	}
	return s
}

// AddToCart adds qty units of p, merging with an existing line. The whole
// request is rejected when the combined quantity would exceed stock.
func (s *Store) AddToCart(ctx context.Context, p *domain.Product, qty int) error {
	if !p.Valid() {
		s.publish(notify.CartInvalid, notify.RejectedInvalidInput, 0, notify.MsgInvalidProduct)
		return ErrInvalidProduct
	}
	if qty < 1 {
		s.publish(notify.CartInvalid, notify.RejectedInvalidInput, p.ID, notify.MsgInvalidQuantity)
		return ErrInvalidQuantity
	}
	if qty > p.Stock {
		s.publish(notify.CartStockLimit, notify.RejectedInsufficientStock, p.ID, fmt.Sprintf("Only %d items available", p.Stock))
		return fmt.Errorf("add %d of product %d: %w", qty, p.ID, ErrInsufficientStock)
	}

	s.mu.Lock()
	i := s.indexLocked(p.ID)
	if i >= 0 {
		combined := s.lines[i].Quantity + qty
		if combined > p.Stock {
			s.mu.Unlock()
			s.publish(notify.CartStockLimit, notify.RejectedInsufficientStock, p.ID, fmt.Sprintf("Cannot add more than %d items", p.Stock))
			return fmt.Errorf("add %d of product %d: %w", qty, p.ID, ErrInsufficientStock)
		}
		s.lines = slices.Clone(s.lines)
		s.lines[i].Quantity = combined
		s.persistLocked(ctx)
		s.mu.Unlock()

		s.publish(notify.CartUpdated, notify.Success, p.ID, fmt.Sprintf("%s %s", p.Name, notify.MsgQuantityUpdated))
		return nil
	}

	line := domain.CartLine{Product: snapshot(*p), Quantity: qty, AddedAt: s.now().UTC()}
	s.lines = append(slices.Clone(s.lines), line)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.publish(notify.CartAdded, notify.Success, p.ID, fmt.Sprintf("%s %s", p.Name, notify.MsgAddedToCart))
	return nil
}

// RemoveFromCart drops the line for productID; absent ids are ignored
func (s *Store) RemoveFromCart(ctx context.Context, productID int64) {
	s.mu.Lock()
	i := s.indexLocked(productID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	name := s.lines[i].Name
	s.lines = slices.Delete(slices.Clone(s.lines), i, i+1)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.publish(notify.CartRemoved, notify.Success, productID, fmt.Sprintf("%s %s", name, notify.MsgRemovedFromCart))
}

// UpdateQuantity sets the quantity of an existing line. Below 1 removes the
// line; above the snapshot stock is rejected and the line is left unchanged.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, qty int) error {
	if qty < 1 {
		s.RemoveFromCart(ctx, productID)
		return nil
	}

	s.mu.Lock()
	i := s.indexLocked(productID)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	line := s.lines[i]
	if qty > line.Stock {
		s.mu.Unlock()
		s.publish(notify.CartStockLimit, notify.RejectedInsufficientStock, productID, fmt.Sprintf("Only %d items available", line.Stock))
		return fmt.Errorf("set product %d to %d: %w", productID, qty, ErrInsufficientStock)
	}
	if qty == line.Quantity {
		s.mu.Unlock()
		return nil
	}
	s.lines = slices.Clone(s.lines)
	s.lines[i].Quantity = qty
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.publish(notify.CartUpdated, notify.Success, productID, fmt.Sprintf("%s %s", line.Name, notify.MsgQuantityUpdated))
	return nil
}

// IncrementQuantity adds one unit to an existing line
func (s *Store) IncrementQuantity(ctx context.Context, productID int64) error {
	line, ok := s.Line(productID)
	if !ok {
		return nil
	}
	return s.UpdateQuantity(ctx, productID, line.Quantity+1)
}

// DecrementQuantity removes one unit, dropping the line at zero
func (s *Store) DecrementQuantity(ctx context.Context, productID int64) error {
	line, ok := s.Line(productID)
	if !ok {
		return nil
	}
	return s.UpdateQuantity(ctx, productID, line.Quantity-1)
}

func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	s.lines = []domain.CartLine{}
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.publish(notify.CartCleared, notify.Success, 0, notify.MsgCartCleared)
}

// Summary derives the totals from the current lines
func (s *Store) Summary() domain.CartSummary {
	return domain.Summarize(s.Lines())
}

// Lines returns the cart lines in insertion order
func (s *Store) Lines() []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lines)
}

func (s *Store) Line(productID int64) (domain.CartLine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(productID)
	if i < 0 {
		return domain.CartLine{}, false
	}
	return s.lines[i], true
}

func (s *Store) IsInCart(productID int64) bool {
	_, ok := s.Line(productID)
	return ok
}

// Loading reports whether a mutation is being persisted
func (s *Store) Loading() bool {
	return s.loading.Load()
}

// Close stops following changes made by other contexts
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Store) applyExternal(lines []domain.CartLine) {
	clean := sanitize(lines)

	s.mu.Lock()
	s.lines = clean
	s.mu.Unlock()

	logx.Debug().Int("lines", len(clean)).Msg("cart changed in another context")
	s.publish(notify.CartSynced, notify.Success, 0, notify.MsgCartSynced)
}

func (s *Store) indexLocked(productID int64) int {
	return slices.IndexFunc(s.lines, func(l domain.CartLine) bool { return l.ID == productID })
}

// persistLocked must run under s.mu
func (s *Store) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.loading.Store(true)
	defer s.loading.Store(false)
	// the store logs failures; the in-memory cart stays authoritative
	_ = s.store.Save(ctx, storage.KeyCart, s.lines)
}

func (s *Store) publish(kind notify.Kind, outcome notify.Outcome, productID int64, msg string) {
	s.events.Publish(notify.Event{
		Kind:      kind,
		Outcome:   outcome,
		ProductID: productID,
		Message:   msg,
		At:        s.now(),
	})
}

// snapshot copies p so later changes to the caller's value do not reach the cart
func snapshot(p domain.Product) domain.Product {
	p.Tags = slices.Clone(p.Tags)
	return p
}

// sanitize drops lines without an id, with a quantity outside 1..stock, and
// every line after the first of a duplicated id.
func sanitize(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, l := range lines {
		if l.ID <= 0 || l.Quantity < 1 || l.Quantity > l.Stock {
			continue
		}
		if _, dup := seen[l.ID]; dup {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}
