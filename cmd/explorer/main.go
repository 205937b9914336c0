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
	"github.com/gofiber/fiber/v2/middleware/recover"

	natsadapter "github.com/samirrijal/bodegamap/internal/adapters/nats"
	"github.com/samirrijal/bodegamap/internal/adapters/searchapi"
	"github.com/samirrijal/bodegamap/internal/adapters/ws"
	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/explorer"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/pkg/config"
	"github.com/samirrijal/bodegamap/internal/pkg/logging"
	"github.com/samirrijal/bodegamap/internal/pkg/metrics"
	"github.com/samirrijal/bodegamap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load(config.ServiceExplorer)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	search, err := searchapi.New(cfg.Search.BaseURL, searchapi.Options{
		Timeout:  cfg.Search.Timeout,
		RetryMax: cfg.Search.RetryMax,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("search client: %v", err)
	}

	// Analytics are best effort; sessions run without a broker.
	var publisher ports.EventPublisher
	var sub *natsadapter.Subscriber
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, analytics disabled", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
		}
		sub, err = natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, filter catalog will not refresh", "error", err)
		} else {
			defer sub.Close()
		}
	}

	e := cfg.Explorer
	if !explorer.IsMapsConfigured(e.MapsAPIKey) {
		slog.Warn("maps api key not configured, sessions will use the list fallback")
	}
	host := ws.NewHost(ws.HostConfig{
		Session: explorer.Config{
			Debounce: e.Debounce,
			RadiusKm: e.RadiusKm,
			Fix: ports.FixOptions{
				Timeout:      e.LocationTimeout,
				MaxAge:       e.LocationMaxAge,
				HighAccuracy: e.HighAccuracy,
			},
			Freshness: e.LocationFreshness,
			Camera: ports.Camera{
				Center: domain.GeoPosition{Lat: e.DefaultLat, Lng: e.DefaultLng},
				Zoom:   e.DefaultZoom,
			},
			Initial: domain.EntityType(e.InitialType),
		},
		MapsAPIKey:     e.MapsAPIKey,
		MapLoadTimeout: e.MapLoadTimeout,
	}, search, publisher, logger)
	defer host.Close()

	if sub != nil {
		err := sub.SubscribeCatalogUpdated(ctx, func(context.Context) error {
			host.InvalidateFacets()
			return nil
		})
		if err != nil {
			slog.Warn("subscribe catalog updates", "error", err)
		}
	}

	app := fiber.New(fiber.Config{
		AppName:               "BodegaMap Explorer",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())
	app.Get("/v1/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "sessions": host.Len()})
	})
	ws.Mount(app, host)

	go func() {
		addr := fmt.Sprintf(":%d", e.Port)
		slog.Info("explorer host starting", "addr", addr, "search", cfg.Search.BaseURL)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received, closing sessions...", "signal", sig.String())

	host.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("explorer stopped")
}
