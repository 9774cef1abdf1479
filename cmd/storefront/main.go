package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/internal/storage/memory"
	"github.com/fjod/go_cart/storefront/internal/storage/redisstore"
	"github.com/fjod/go_cart/storefront/internal/storage/sqlite"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	logx "github.com/fjod/go_cart/storefront/pkg/logger"
)

func main() {
	cfg, err := config.Load(getEnv("ENV_FILE", ".env"))
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to load configuration")
	}
	logx.Init(logx.Opts{Environment: logx.ParseEnvironment(cfg.Environment)})

	ctx := context.Background()
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		logx.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open storage")
	}
	store := storage.New(ctx, backend)
	logx.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")

	events := notify.NewBus()
	events.Subscribe(func(e notify.Event) {
		logx.Info().Str("kind", string(e.Kind)).Str("outcome", string(e.Outcome)).Int64("product", e.ProductID).Msg(e.Message)
	})

	started := time.Now()
	gen := catalog.NewGenerator(catalog.WithSeed(cfg.Catalog.Seed))
	products := gen.Generate(cfg.Catalog.ProductCount)
	logx.Info().Int("products", len(products)).Dur("took", time.Since(started)).Msg("catalog generated")

	facade := catalog.NewFacade(ctx, products, store,
		catalog.WithSearchDelay(cfg.Catalog.SearchDebounce),
		catalog.WithLatency(cfg.Catalog.Latency),
		catalog.WithPageSize(cfg.Catalog.DefaultPageSize),
		catalog.WithEvents(events),
	)
	shop := cart.NewStore(ctx, store, cart.WithEvents(events))

	runSession(ctx, facade, shop, cfg.Catalog.SearchDebounce+cfg.Catalog.Latency)

	// keep following changes from other contexts until interrupted
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logx.Info().Msg("shutting down storefront...")
	facade.Close()
	shop.Close()
	if err := store.Close(); err != nil {
		logx.Error().Err(err).Msg("failed to close storage")
	}
	logx.Info().Msg("storefront stopped")
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		client, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		br := circuitbreaker.New(circuitbreaker.Config{
			Name:        "redis-storage",
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: cfg.Breaker.OpenTimeout,
			Ignore:      storage.NotFoundIsHealthy,
		})
		return storage.WithBreaker(redisstore.NewBackend(client, redisstore.WithChannel(cfg.Redis.Channel)), br), nil
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.Storage.SQLitePath, err)
		}
		return db, nil
	default:
		return memory.NewSpace().Context(), nil
	}
}

// runSession drives a short scripted browse and checkout preview
func runSession(ctx context.Context, f *catalog.Facade, shop *cart.Store, settle time.Duration) {
	f.SetSearch("smart")
	waitIdle(f, settle)
	f.SetCategory(domain.CategoryElectronics)
	waitIdle(f, settle)
	if err := f.SetSort(domain.SortByPrice, domain.SortAsc); err != nil {
		logx.Error().Err(err).Msg("failed to sort")
	}
	waitIdle(f, settle)

	view := f.View()
	logx.Info().Int("total", view.Total).Int("start", view.Start).Int("end", view.End).Bool("next", view.HasNextPage).Msg("browsing")

	for _, p := range view.Products {
		if !p.InStock() {
			continue
		}
		if err := shop.AddToCart(ctx, &p, 1); err != nil {
			logx.Warn().Err(err).Int64("product", p.ID).Msg("could not add product")
		}
		break
	}

	sum := shop.Summary()
	logx.Info().
		Int("items", sum.TotalItems).
		Str("subtotal", sum.Subtotal.StringFixed(2)).
		Str("tax", sum.Tax.StringFixed(2)).
		Str("shipping", sum.Shipping.StringFixed(2)).
		Str("total", sum.Total.StringFixed(2)).
		Msg("cart summary")
}

func waitIdle(f *catalog.Facade, settle time.Duration) {
	deadline := time.Now().Add(settle + time.Second)
	time.Sleep(settle)
	for f.View().Loading && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
