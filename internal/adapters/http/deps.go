package http

import (
	"github.com/nats-io/nats.go"
	"github.com/samirrijal/bodegamap/internal/adapters/postgres"
	"github.com/samirrijal/bodegamap/internal/adapters/valkey"
	"github.com/samirrijal/bodegamap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Search *usecases.SearchService
	Facets *usecases.FacetService
	NATS   *nats.Conn
	DB     *postgres.DB
	Cache  *valkey.Cache
	// InMemory marks the R-tree backend, which needs no database.
	InMemory bool
	Version  string
}
