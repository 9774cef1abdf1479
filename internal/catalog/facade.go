package catalog

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/internal/timer"
	logx "github.com/fjod/go_cart/storefront/pkg/logger"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidSort     = errors.New("invalid sort field or order")
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size is not an allowed option")
)

const (
	DefaultSearchDelay = 300 * time.Millisecond
	DefaultLatency     = 300 * time.Millisecond
	DefaultPageSize    = 20

	minSuggestionLen = 2
	maxSuggestions   = 10
	persistTimeout   = time.Second
)

var pageSizeOptions = []int{10, 20, 50, 100}

// PageSizeOptions lists the allowed page sizes
func PageSizeOptions() []int {
	return slices.Clone(pageSizeOptions)
}

type FacadeOption func(*Facade)

// WithSearchDelay sets the debounce interval of SetSearch. Zero applies searches immediately.
func WithSearchDelay(d time.Duration) FacadeOption {
	return func(f *Facade) { f.searchDelay = d }
}

// WithLatency sets the simulated loading delay. Zero recomputes synchronously.
func WithLatency(d time.Duration) FacadeOption {
	return func(f *Facade) { f.latency = d }
}

func WithPageSize(n int) FacadeOption {
	return func(f *Facade) {
		if slices.Contains(pageSizeOptions, n) {
			f.pageSize = n
		}
	}
}

func WithEvents(bus *notify.Bus) FacadeOption {
	return func(f *Facade) { f.events = bus }
}

// View is what the presentational layer renders
type View struct {
	Products    []domain.Product
	Total       int
	Page        int
	PageSize    int
	HasNextPage bool
	HasPrevPage bool
	Start       int
	End         int
	Loading     bool
	Filters     domain.FilterState
	// Err is the last rejected input, cleared by the next accepted change
	Err error
}

// Facade holds the browsing state over an immutable catalog. Every accepted
// change marks the view as loading and recomputes it after the simulated
// latency; a newer change cancels a pending recomputation.
type Facade struct {
	products []domain.Product
	index    map[int64]int
	counts   map[domain.Category]int

	store       *storage.Store
	events      *notify.Bus
	searchDelay time.Duration
	latency     time.Duration
	unsubscribe func()

	mu          sync.Mutex
	filters     domain.FilterState
	searchInput string
	page        int
	pageSize    int
	result      Result
	loading     bool
	err         error

	debounce  timer.Pending
	recompute timer.Pending

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(View)
}

// NewFacade restores persisted filters from store, if given, and schedules the
// first recomputation.
func NewFacade(ctx context.Context, products []domain.Product, store *storage.Store, opts ...FacadeOption) *Facade {
	f := &Facade{
		products:    products,
		index:       make(map[int64]int, len(products)),
		counts:      make(map[domain.Category]int, len(domain.Categories)),
		store:       store,
		searchDelay: DefaultSearchDelay,
		latency:     DefaultLatency,
		filters:     domain.DefaultFilterState(),
		page:        1,
		pageSize:    DefaultPageSize,
		subs:        make(map[int]func(View)),
	}
	for _, opt := range opts {
		opt(f)
	}

	for _, c := range domain.Categories {
		f.counts[c] = 0
	}
	for i, p := range products {
		f.index[p.ID] = i
		f.counts[p.Category]++
	}

	if store != nil {
		f.filters = storage.Load(ctx, store, storage.KeyFilters, domain.DefaultFilterState()).Normalize()
		f.unsubscribe = storage.Subscribe(store, storage.KeyFilters, f.applyExternalFilters)
	}
	f.searchInput = f.filters.SearchTerm

	f.refresh()
	return f
}

// SetSearch debounces term; only the last value within the delay is applied.
// A change beyond surrounding whitespace returns to page 1.
func (f *Facade) SetSearch(term string) {
	f.mu.Lock()
	f.searchInput = term
	f.mu.Unlock()

	f.debounce.Schedule(f.searchDelay, func(tok timer.Token) {
		f.commitSearch(tok, term)
	})
}

func (f *Facade) commitSearch(tok timer.Token, term string) {
	f.mu.Lock()
	if !f.debounce.Current(tok) || strings.TrimSpace(f.filters.SearchTerm) == strings.TrimSpace(term) {
		f.mu.Unlock()
		return
	}
	f.filters.SearchTerm = term
	f.page = 1
	f.err = nil
	filters := f.filters
	f.mu.Unlock()

	f.saveFilters(filters)
	f.refresh()
}

// SetCategory filters by category; empty means all. Page resets only when the
// category changes.
func (f *Facade) SetCategory(category domain.Category) {
	f.mu.Lock()
	if f.filters.Category == category {
		f.mu.Unlock()
		return
	}
	f.filters.Category = category
	f.page = 1
	f.err = nil
	filters := f.filters
	f.mu.Unlock()

	f.saveFilters(filters)
	f.refresh()
}

// SetSort changes the ordering. Like every other filter input, a change
// returns to page 1.
func (f *Facade) SetSort(field domain.SortField, order domain.SortOrder) error {
	if !field.Valid() || !order.Valid() {
		return f.reject(ErrInvalidSort)
	}

	f.mu.Lock()
	if f.filters.SortBy == field && f.filters.SortOrder == order {
		f.mu.Unlock()
		return nil
	}
	f.filters.SortBy = field
	f.filters.SortOrder = order
	f.page = 1
	f.err = nil
	filters := f.filters
	f.mu.Unlock()

	f.saveFilters(filters)
	f.refresh()
	return nil
}

// SetPage moves to page with pageSize items per page
func (f *Facade) SetPage(page, pageSize int) error {
	if page < 1 {
		return f.reject(ErrInvalidPage)
	}
	if !slices.Contains(pageSizeOptions, pageSize) {
		return f.reject(ErrInvalidPageSize)
	}

	f.mu.Lock()
	if f.page == page && f.pageSize == pageSize {
		f.mu.Unlock()
		return nil
	}
	f.page = page
	f.pageSize = pageSize
	f.err = nil
	f.mu.Unlock()

	f.refresh()
	return nil
}

// ClearFilters restores the default filters on page 1 and drops any pending search
func (f *Facade) ClearFilters() {
	f.debounce.Cancel()

	f.mu.Lock()
	f.filters = domain.DefaultFilterState()
	f.searchInput = ""
	f.page = 1
	f.err = nil
	filters := f.filters
	f.mu.Unlock()

	f.saveFilters(filters)
	f.refresh()
}

// ProductByID looks up id in the full catalog
func (f *Facade) ProductByID(id int64) (domain.Product, error) {
	i, ok := f.index[id]
	if !ok {
		return domain.Product{}, ErrProductNotFound
	}
	return detach(f.products[i]), nil
}

// CategoryCounts counts the full catalog per category, including empty ones
func (f *Facade) CategoryCounts() map[domain.Category]int {
	return maps.Clone(f.counts)
}

// SearchSuggestions returns up to 10 distinct product names, categories and
// brands containing term. Terms shorter than two characters yield nothing.
func (f *Facade) SearchSuggestions(term string) []string {
	needle := strings.ToLower(strings.TrimSpace(term))
	if utf8.RuneCountInString(needle) < minSuggestionLen {
		return []string{}
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, maxSuggestions)
	for _, p := range f.products {
		for _, candidate := range [...]string{p.Name, string(p.Category), p.Brand} {
			if _, dup := seen[candidate]; dup || !containsFold(candidate, needle) {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
			if len(out) == maxSuggestions {
				return out
			}
		}
	}
	return out
}

// Filters returns the applied filter state
func (f *Facade) Filters() domain.FilterState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters
}

// SearchInput returns the latest SetSearch value, which may still be debouncing
func (f *Facade) SearchInput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchInput
}

// View returns the current view
func (f *Facade) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// Subscribe calls fn with every new view, including loading transitions
func (f *Facade) Subscribe(fn func(View)) func() {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	return func() {
		f.subMu.Lock()
		defer f.subMu.Unlock()
		delete(f.subs, id)
	}
}

// Close cancels pending timers and stops following external filter changes
func (f *Facade) Close() {
	f.debounce.Cancel()
	f.recompute.Cancel()
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
}

func (f *Facade) applyExternalFilters(fs domain.FilterState) {
	fs = fs.Normalize()
	f.debounce.Cancel()

	f.mu.Lock()
	if fs == f.filters {
		f.mu.Unlock()
		return
	}
	f.filters = fs
	f.searchInput = fs.SearchTerm
	f.page = 1
	f.err = nil
	f.mu.Unlock()

	logx.Debug().Str("category", string(fs.Category)).Str("search", fs.SearchTerm).Msg("filters changed in another context")
	f.events.Publish(notify.Event{Kind: notify.FiltersSynced, Outcome: notify.Success})
	f.refresh()
}

func (f *Facade) reject(err error) error {
	f.mu.Lock()
	f.err = err
	v := f.viewLocked()
	f.mu.Unlock()

	f.emit(v)
	return err
}

func (f *Facade) refresh() {
	f.mu.Lock()
	f.loading = true
	// a timer firing before the Schedule below must not clear loading
	f.recompute.Cancel()
	v := f.viewLocked()
	f.mu.Unlock()

	f.emit(v)
	f.recompute.Schedule(f.latency, f.apply)
}

// apply runs against the state at fire time, so the surviving recomputation
// always reflects the latest input.
func (f *Facade) apply(tok timer.Token) {
	f.mu.Lock()
	if !f.recompute.Current(tok) {
		f.mu.Unlock()
		return
	}
	res := Run(f.products, Query{Filters: f.filters, Page: f.page, PageSize: f.pageSize})
	page := make([]domain.Product, len(res.Products))
	for i, p := range res.Products {
		page[i] = detach(p)
	}
	res.Products = page
	f.result = res
	f.loading = false
	v := f.viewLocked()
	f.mu.Unlock()

	f.emit(v)
}

func (f *Facade) viewLocked() View {
	return View{
		Products:    f.result.Products,
		Total:       f.result.Total,
		Page:        f.page,
		PageSize:    f.pageSize,
		HasNextPage: f.result.HasNextPage,
		HasPrevPage: f.result.HasPrevPage,
		Start:       f.result.Start,
		End:         f.result.End,
		Loading:     f.loading,
		Filters:     f.filters,
		Err:         f.err,
	}
}

func (f *Facade) emit(v View) {
	f.subMu.Lock()
	subs := make([]func(View), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.subMu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// detach copies the slice fields of p so callers cannot reach the catalog
func detach(p domain.Product) domain.Product {
	p.Tags = slices.Clone(p.Tags)
	return p
}

func (f *Facade) saveFilters(filters domain.FilterState) {
	if f.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	// failures are logged by the store; browsing continues in memory
	_ = f.store.Save(ctx, storage.KeyFilters, filters)
}
