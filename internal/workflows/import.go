// Package workflows runs catalog imports as durable Temporal workflows, so a
// large seed survives database restarts and is retried batch by batch.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/bodegamap/internal/core/usecases"
)

// BatchSize bounds the rows written per activity.
const BatchSize = 500

// CatalogImportWorkflow upserts a prepared catalog: every site batch first,
// then every item batch, then announces the change. A failed announcement
// does not fail the import.
func CatalogImportWorkflow(ctx workflow.Context, c usecases.Catalog) (usecases.ImportStats, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting catalog import", "sites", len(c.Sites), "items", len(c.Items))

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var stats usecases.ImportStats
	for _, batch := range chunk(c.Sites, BatchSize) {
		var n int
		if err := workflow.ExecuteActivity(ctx, "UpsertSites", batch).Get(ctx, &n); err != nil {
			return stats, err
		}
		stats.Sites += n
	}
	for _, batch := range chunk(c.Items, BatchSize) {
		var n int
		if err := workflow.ExecuteActivity(ctx, "UpsertItems", batch).Get(ctx, &n); err != nil {
			return stats, err
		}
		stats.Items += n
	}

	announce := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	if err := workflow.ExecuteActivity(announce, "AnnounceCatalog").Get(ctx, nil); err != nil {
		logger.Warn("catalog announcement failed", "error", err)
	}

	logger.Info("Catalog import finished", "sites", stats.Sites, "items", stats.Items)
	return stats, nil
}

func chunk[T any](all []T, size int) [][]T {
	var out [][]T
	for len(all) > size {
		out = append(out, all[:size])
		all = all[size:]
	}
	if len(all) > 0 {
		out = append(out, all)
	}
	return out
}
