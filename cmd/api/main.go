package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/bodegamap/internal/adapters/http"
	"github.com/samirrijal/bodegamap/internal/adapters/memory"
	natsadapter "github.com/samirrijal/bodegamap/internal/adapters/nats"
	"github.com/samirrijal/bodegamap/internal/adapters/postgres"
	"github.com/samirrijal/bodegamap/internal/adapters/valkey"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/core/usecases"
	"github.com/samirrijal/bodegamap/internal/pkg/config"
	"github.com/samirrijal/bodegamap/internal/pkg/logging"
	"github.com/samirrijal/bodegamap/internal/pkg/metrics"
	"github.com/samirrijal/bodegamap/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load(config.ServiceAPI)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Cache
	var cache ports.CacheService
	var vk *valkey.Cache
	if cfg.Valkey.Enabled {
		vk, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, caching disabled", "error", err)
		} else {
			defer vk.Close()
			cache = vk
		}
	}

	deps := &http.Dependencies{Cache: vk, Version: version}

	// Repositories
	var (
		sites  ports.SiteRepository
		items  ports.ItemRepository
		facets ports.FacetRepository
	)
	switch cfg.Search.Backend {
	case config.BackendMemory:
		store := memory.NewStore()
		sites, items, facets = store.Sites(), store.Items(), store.Facets()
		if cfg.Search.SeedFile != "" {
			catalog, err := usecases.ReadCatalogFile(cfg.Search.SeedFile)
			if err != nil {
				log.Fatalf("seed file: %v", err)
			}
			stats, err := usecases.NewImportService(sites, items, nil).Import(ctx, catalog)
			if err != nil {
				log.Fatalf("import seed file: %v", err)
			}
			slog.Info("catalog loaded", "file", cfg.Search.SeedFile, "sites", stats.Sites, "items", stats.Items)
		}
		deps.InMemory = true
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		sites, items, facets = postgres.NewSiteRepo(db), postgres.NewItemRepo(db), postgres.NewFacetRepo(db)
		deps.DB = db

		metrics.RegisterDBPool(func() metrics.PoolStat { return db.Pool.Stat() })
	}

	deps.Search = usecases.NewSearchService(sites, items, cache, cfg.Valkey.CacheTTL)
	deps.Facets = usecases.NewFacetService(facets, cache, 0)

	// NATS: catalog updates invalidate cached results and facets.
	if cfg.NATS.Enabled {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, catalog updates will not invalidate caches", "error", err)
		} else {
			defer sub.Close()
			err := sub.SubscribeCatalogUpdated(ctx, func(ctx context.Context) error {
				deps.Search.Invalidate()
				return deps.Facets.Invalidate(ctx)
			})
			if err != nil {
				slog.Warn("subscribe catalog updates", "error", err)
			}
		}
		if nc, err := natsadapter.RawConn(cfg.NATS.URL); err != nil {
			slog.Warn("nats health conn unavailable", "error", err)
		} else {
			defer nc.Close()
			deps.NATS = nc
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "BodegaMap Search API",
	})
	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "backend", cfg.Search.Backend)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
