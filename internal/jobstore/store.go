// Package jobstore implements the job state store (§4.A): one record per
// job_id, upserted on every status transition, backed by SurrealDB —
// grounded on vire's internal/storage/surrealdb/{manager,internalstore}.go.
package jobstore

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/interfaces"
	"github.com/SystemGuard-official/docparse/internal/models"
)

const table = "job_state"

// Store implements interfaces.JobStateStore over a SurrealDB connection.
type Store struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// Open connects to SurrealDB at cfg.Address, signs in, selects the
// namespace/database, and ensures the job_state table exists.
func Open(ctx context.Context, cfg common.StorageConfig, logger *common.Logger) (*Store, error) {
	db, err := surrealdb.New(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Username,
		"pass": cfg.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
	if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
		return nil, fmt.Errorf("failed to define table %s: %w", table, err)
	}

	logger.Info().
		Str("address", cfg.Address).
		Str("namespace", cfg.Namespace).
		Str("database", cfg.Database).
		Msg("job state store connected")

	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an already-connected *surrealdb.DB — used by tests against
// a shared testcontainer connection that has already signed in and selected
// a namespace/database.
func NewWithDB(db *surrealdb.DB, logger *common.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Put upserts a job record keyed by its ID. Records are always overwritten
// in full (last write wins), matching §4.A's "Put is an upsert" contract.
func (s *Store) Put(ctx context.Context, rec *models.JobRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("jobstore: record requires a non-empty ID")
	}

	sql := "UPSERT $rid CONTENT $rec"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID(table, rec.ID),
		"rec": rec,
	}

	if _, err := surrealdb.Query[[]models.JobRecord](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("jobstore: put %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the job record for id, or (nil, nil) if no such record
// exists — never a not-found error, so callers can distinguish "absent"
// from a transient store failure (§7.4).
func (s *Store) Get(ctx context.Context, id string) (*models.JobRecord, error) {
	rec, err := surrealdb.Select[models.JobRecord](ctx, s.db, surrealmodels.NewRecordID(table, id))
	if err != nil {
		return nil, fmt.Errorf("jobstore: get %s: %w", id, err)
	}
	return rec, nil
}

// Close releases the underlying SurrealDB connection.
func (s *Store) Close() error {
	return s.db.Close(context.Background())
}

var _ interfaces.JobStateStore = (*Store)(nil)
