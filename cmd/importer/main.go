package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/bodegamap/internal/adapters/nats"
	"github.com/samirrijal/bodegamap/internal/adapters/postgres"
	"github.com/samirrijal/bodegamap/internal/pkg/config"
	"github.com/samirrijal/bodegamap/internal/pkg/logging"
	"github.com/samirrijal/bodegamap/internal/workflows"
)

func main() {
	cfg, err := config.Load(config.ServiceImporter)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := postgres.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	acts := &workflows.ImportActivities{
		Sites: postgres.NewSiteRepo(db),
		Items: postgres.NewItemRepo(db),
	}
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, imports will not be announced", "error", err)
		} else {
			defer pub.Close()
			acts.Publisher = pub
		}
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.CatalogImportWorkflow)
	w.RegisterActivity(acts)

	slog.Info("importer worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
