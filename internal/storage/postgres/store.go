// Package postgres persists registry snapshots to Postgres through gorm. The
// entity store itself stays in memory; a transaction commits only after its
// per-collection JSON rows are rewritten.
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/storage/memory"
	"carbon-scribe/blue-carbon-registry/internal/storage/snapshot"
)

var _ registry.Store = (*Store)(nil)

// StateRow is one persisted collection
type StateRow struct {
	Bucket    string         `gorm:"primaryKey;type:text"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// TableName overrides the default pluralised name
func (StateRow) TableName() string {
	return "registry_state"
}

// Store is a snapshotting Postgres-backed entity store
type Store struct {
	*memory.Store
	db *gorm.DB
}

// Open connects with the given DSN and hydrates the store
func Open(dsn string, opts ...memory.Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db, opts...)
}

// New wraps an existing gorm handle, migrating the state table if needed
func New(db *gorm.DB, opts ...memory.Option) (*Store, error) {
	if err := db.AutoMigrate(&StateRow{}); err != nil {
		return nil, fmt.Errorf("migrate state table: %w", err)
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(append(opts[:len(opts):len(opts)], memory.WithCommitHook(s.persist))...)
	if err := s.load(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	var rows []StateRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	buckets := make(map[string][]byte, len(rows))
	for _, row := range rows {
		buckets[row.Bucket] = row.Payload
	}
	state, err := snapshot.DecodeBuckets(buckets)
	if err != nil {
		return err
	}
	s.ImportState(state)
	return nil
}

// persist writes the candidate state of a commit. It runs under the memory
// store writer lock, so writes reach the database in commit order.
func (s *Store) persist(ctx context.Context, state registry.Snapshot) error {
	buckets, err := snapshot.EncodeBuckets(state)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rows := make([]StateRow, 0, len(snapshot.Buckets))
	for _, bucket := range snapshot.Buckets {
		rows = append(rows, StateRow{Bucket: bucket, Payload: datatypes.JSON(buckets[bucket]), UpdatedAt: now})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bucket"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).Create(&rows).Error
	})
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
