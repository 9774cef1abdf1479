package catalog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// DefaultCount is the catalog size of a deployment
	DefaultCount = 10000

	ImageBaseURL = "https://picsum.photos/seed"

	minPrice        = 5
	maxPrice        = 999
	maxStock        = 100
	maxDiscount     = 30
	discountChance  = 0.3
	maxProductAge   = 2 * 365 * 24 * time.Hour
	maxTagsPerEntry = 3
)

var adjectives = map[domain.Category][]string{
	domain.CategoryElectronics: {"Smart", "Wireless", "Digital", "Portable", "Ultra HD"},
	domain.CategoryClothing:    {"Classic", "Slim Fit", "Cozy", "Vintage", "Casual"},
	domain.CategoryHome:        {"Rustic", "Modern", "Handcrafted", "Compact", "Outdoor"},
	domain.CategoryBooks:       {"Illustrated", "Collector's", "Pocket", "Annotated", "Hardcover"},
	domain.CategorySports:      {"Pro", "Lightweight", "All-Weather", "Trail", "Training"},
	domain.CategoryBeauty:      {"Organic", "Hydrating", "Gentle", "Radiant", "Natural"},
	domain.CategoryToys:        {"Educational", "Interactive", "Deluxe", "Mini", "Classic"},
	domain.CategoryHealth:      {"Daily", "Herbal", "Ergonomic", "Vital", "Balanced"},
}

var tagPool = map[domain.Category][]string{
	domain.CategoryElectronics: {"gadget", "bluetooth", "usb-c", "battery", "tech"},
	domain.CategoryClothing:    {"cotton", "summer", "winter", "unisex", "fashion"},
	domain.CategoryHome:        {"kitchen", "decor", "garden", "storage", "furniture"},
	domain.CategoryBooks:       {"fiction", "bestseller", "paperback", "history", "kids"},
	domain.CategorySports:      {"fitness", "outdoor", "running", "camping", "team"},
	domain.CategoryBeauty:      {"skincare", "vegan", "fragrance", "makeup", "haircare"},
	domain.CategoryToys:        {"puzzle", "board-game", "lego", "plush", "stem"},
	domain.CategoryHealth:      {"vitamins", "wellness", "yoga", "sleep", "organic"},
}

type Option func(*Generator)

// WithSeed makes generation reproducible. Zero picks a random seed.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.seed = seed }
}

// WithClock fixes the reference time used for createdAt
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// Generator produces the synthetic catalog once and caches it. Callers share
// one Generator instead of a package-level cache.
type Generator struct {
	mu     sync.Mutex
	seed   uint64
	now    func() time.Time
	faker  *gofakeit.Faker
	cached []domain.Product
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	g.faker = gofakeit.New(g.seed)
	return g
}

// Generate returns count products with ids 1..count. A count at or below the
// cached size returns a prefix of the cache; a larger count extends the cache
// so existing ids keep their content. The returned slice must not be modified.
func (g *Generator) Generate(count int) []domain.Product {
	if count <= 0 {
		return []domain.Product{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if count > len(g.cached) {
		now := g.now()
		grown := make([]domain.Product, len(g.cached), count)
		copy(grown, g.cached)
		for id := len(g.cached) + 1; id <= count; id++ {
			grown = append(grown, g.product(int64(id), now))
		}
		g.cached = grown
	}
	return g.cached[:count:count]
}

// Cached reports how many products have been generated so far
func (g *Generator) Cached() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cached)
}

// Reset drops the cache and reseeds, for tests
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cached = nil
	g.faker = gofakeit.New(g.seed)
}

func (g *Generator) product(id int64, now time.Time) domain.Product {
	f := g.faker
	category := domain.Categories[f.IntRange(0, len(domain.Categories)-1)]
	adj := adjectives[category][f.IntRange(0, len(adjectives[category])-1)]

	discount := 0
	if f.Float64Range(0, 1) < discountChance {
		discount = f.IntRange(1, maxDiscount)
	}

	return domain.Product{
		ID:          id,
		Name:        fmt.Sprintf("%s %s", adj, f.ProductName()),
		Description: f.ProductDescription(),
		Price:       decimal.NewFromFloat(f.Float64Range(minPrice, maxPrice)).Round(2),
		Image:       fmt.Sprintf("%s/%d/400/300", ImageBaseURL, id),
		Category:    category,
		Rating:      f.IntRange(1, 5),
		Stock:       f.IntRange(0, maxStock),
		Brand:       f.Company(),
		SKU:         sku(category, id),
		Tags:        g.tags(category),
		CreatedAt:   now.Add(-time.Duration(f.IntRange(0, int(maxProductAge/time.Second))) * time.Second).Truncate(time.Second),
		Discount:    discount,
	}
}

func (g *Generator) tags(category domain.Category) []string {
	pool := append([]string(nil), tagPool[category]...)
	n := g.faker.IntRange(1, maxTagsPerEntry)
	// partial shuffle keeps the picks distinct
	for i := 0; i < n; i++ {
		j := g.faker.IntRange(i, len(pool)-1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n:n]
}

func sku(category domain.Category, id int64) string {
	prefix := strings.ToUpper(strings.NewReplacer(" ", "", "&", "").Replace(string(category)))
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return fmt.Sprintf("%s-%06d", prefix, id)
}
