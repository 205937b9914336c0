package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/client"

	natsadapter "github.com/samirrijal/bodegamap/internal/adapters/nats"
	"github.com/samirrijal/bodegamap/internal/adapters/postgres"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/core/usecases"
	"github.com/samirrijal/bodegamap/internal/pkg/config"
	"github.com/samirrijal/bodegamap/internal/pkg/logging"
	"github.com/samirrijal/bodegamap/internal/workflows"
)

func main() {
	cfg, err := config.Load(config.ServiceSeed)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text")

	path := cfg.Search.SeedFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		log.Fatal("usage: seed <catalog.json> (or set search.seed_file)")
	}

	catalog, err := usecases.ReadCatalogFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if cfg.Temporal.Enabled {
		runWorkflow(ctx, cfg, path, catalog)
		return
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var publisher ports.EventPublisher
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, services will not be told about the import", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
		}
	}

	start := time.Now()
	stats, err := usecases.NewImportService(postgres.NewSiteRepo(db), postgres.NewItemRepo(db), publisher).Import(ctx, catalog)
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	slog.Info("catalog imported", "file", path, "sites", stats.Sites, "items", stats.Items, "took", time.Since(start).Round(time.Millisecond))
}

// runWorkflow hands the catalog to the importer workers and waits for the result.
func runWorkflow(ctx context.Context, cfg *config.Config, path string, catalog usecases.Catalog) {
	if err := catalog.Prepare(); err != nil {
		log.Fatalf("invalid catalog: %v", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "catalog-import-" + filepath.Base(path),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflows.CatalogImportWorkflow, catalog)
	if err != nil {
		log.Fatalf("start import workflow: %v", err)
	}
	slog.Info("import workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var stats usecases.ImportStats
	if err := run.Get(ctx, &stats); err != nil {
		log.Fatalf("import workflow: %v", err)
	}
	slog.Info("catalog imported", "file", path, "sites", stats.Sites, "items", stats.Items)
}
