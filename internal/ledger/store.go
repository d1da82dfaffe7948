// Package ledger keeps a history of region runs in PostgreSQL so operators
// can see when each region's inventory was last refreshed and why a region
// was skipped.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/configsync/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/configsync/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/postgres"
)

// Schema creates the region_runs table and its lookup index. Migrate applies
// it.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS region_runs (
    id          BIGSERIAL PRIMARY KEY,
    run_id      TEXT NOT NULL,
    region      TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    snapshot_id TEXT,
    storage_key TEXT,
    attempts    INTEGER NOT NULL DEFAULT 0,
    bytes       BIGINT NOT NULL DEFAULT 0,
    indexed     INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS region_runs_region_finished_idx ON region_runs (region, finished_at DESC)`,
}

// Store persists region outcomes.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a ledger on db. A nil logger discards output.
func NewStore(db *postgres.Client, l *slog.Logger) *Store {
	if l == nil {
		l = logger.Nop()
	}
	return &Store{
		db:     db,
		logger: l.With("component", "ledger"),
	}
}

// Migrate creates the ledger table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, Schema...); err != nil {
		return fmt.Errorf("migrating ledger: %w", err)
	}
	return nil
}

// Record inserts one region outcome. It satisfies ingestion.OutcomeSink.
func (s *Store) Record(ctx context.Context, o ingestion.RegionOutcome) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO region_runs
			(run_id, region, outcome, snapshot_id, storage_key, attempts, bytes, indexed, failed, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.RunID, o.Region, string(o.Outcome), nullable(o.SnapshotID), nullable(o.StorageKey),
		o.Attempts, o.Bytes, o.Indexed, o.Failed, nullable(o.Error), o.StartedAt, o.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("recording outcome of %s: %w", o.Region, err)
	}
	s.logger.Debug("region outcome recorded", "run_id", o.RunID, "region", o.Region, "outcome", o.Outcome)
	return nil
}

// LastCompleted returns the most recent completed run of region, or nil when
// the region never completed.
func (s *Store) LastCompleted(ctx context.Context, region string) (*ingestion.RegionOutcome, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT run_id, region, outcome, snapshot_id, storage_key, attempts, bytes, indexed, failed, error, started_at, finished_at
		FROM region_runs WHERE region = $1 AND outcome = $2
		ORDER BY finished_at DESC LIMIT 1`,
		region, string(apperrors.OutcomeCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("querying last completed run of %s: %w", region, err)
	}
	defer rows.Close()
	outcomes, err := scan(rows)
	if err != nil || len(outcomes) == 0 {
		return nil, err
	}
	return &outcomes[0], nil
}

// listRun returns every region outcome of runID in the order they finished.
func (s *Store) listRun(ctx context.Context, runID string) ([]ingestion.RegionOutcome, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT run_id, region, outcome, snapshot_id, storage_key, attempts, bytes, indexed, failed, error, started_at, finished_at
		FROM region_runs WHERE run_id = $1 ORDER BY finished_at, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing run %s: %w", runID, err)
	}
	defer rows.Close()
	return scan(rows)
}

func scan(rows *sql.Rows) ([]ingestion.RegionOutcome, error) {
	var out []ingestion.RegionOutcome
	for rows.Next() {
		var (
			o                         ingestion.RegionOutcome
			outcome                   string
			snapshotID, key, errorMsg sql.NullString
			started, finished         time.Time
		)
		if err := rows.Scan(&o.RunID, &o.Region, &outcome, &snapshotID, &key, &o.Attempts, &o.Bytes,
			&o.Indexed, &o.Failed, &errorMsg, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning region run: %w", err)
		}
		o.Outcome = apperrors.Outcome(outcome)
		o.SnapshotID, o.StorageKey, o.Error = snapshotID.String, key.String, errorMsg.String
		o.StartedAt, o.FinishedAt = started.UTC(), finished.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
