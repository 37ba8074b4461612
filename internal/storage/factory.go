// Package storage selects and opens the configured entity store backend.
package storage

import (
	"context"
	"fmt"

	"carbon-scribe/blue-carbon-registry/internal/config"
	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/storage/memory"
	"carbon-scribe/blue-carbon-registry/internal/storage/postgres"
	"carbon-scribe/blue-carbon-registry/internal/storage/sqlite"
	"carbon-scribe/blue-carbon-registry/pkg/chain"
)

// Backend is an entity store that can be snapshotted and closed
type Backend interface {
	registry.Store
	ExportState() registry.Snapshot
	ImportState(snapshot registry.Snapshot)
	Restore(ctx context.Context, snapshot registry.Snapshot) error
	Close() error
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Open builds the backend named by cfg.Storage.Driver
func Open(cfg *config.Config, sim *chain.Simulator) (Backend, error) {
	opts := []memory.Option{memory.WithSimulator(sim)}
	switch cfg.Storage.Driver {
	case config.DriverMemory, "":
		return memory.NewStore(opts...), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.Storage.SQLitePath, opts...)
	case config.DriverPostgres:
		return postgres.Open(cfg.Database.GetDatabaseURL(), opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
