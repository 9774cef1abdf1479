package notify

import (
	"sync"
	"time"
)

// Kind identifies what happened
type Kind string

const (
	CartAdded      Kind = "cart.added"
	CartUpdated    Kind = "cart.updated"
	CartRemoved    Kind = "cart.removed"
	CartCleared    Kind = "cart.cleared"
	CartStockLimit Kind = "cart.stock_limit"
	CartInvalid    Kind = "cart.invalid"
	CartSynced     Kind = "cart.synced"

	FiltersSynced Kind = "catalog.filters_synced"
)

// Outcome classifies the result of a mutation
type Outcome string

const (
	Success                   Outcome = "success"
	RejectedInsufficientStock Outcome = "rejected_insufficient_stock"
	RejectedInvalidInput      Outcome = "rejected_invalid_input"
)

// User-facing message fragments
const (
	MsgAddedToCart     = "added to cart!"
	MsgRemovedFromCart = "removed from cart!"
	MsgCartCleared     = "Cart cleared successfully!"
	MsgQuantityUpdated = "quantity updated"
	MsgInvalidProduct  = "Invalid product data"
	MsgInvalidQuantity = "Quantity must be at least 1"
	MsgCartSynced      = "Cart updated in another window"
)

// Event is an advisory signal for the presentational layer
type Event struct {
	Kind      Kind
	Outcome   Outcome
	ProductID int64
	Message   string
	At        time.Time
}

// Bus fans events out to subscribers. A nil *Bus drops everything.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers e synchronously to every subscriber
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
