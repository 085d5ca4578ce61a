// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finflow/mailsync/internal/models"
)

// HistoryStore persists one audit record per sync run. Rows are append-only
// and immutable once written; every run produces exactly one, including
// failed runs.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a history store backed by the given Postgres
// pool. It ensures the sync_history table exists on creation.
func NewHistoryStore(ctx context.Context, pool *pgxpool.Pool) (*HistoryStore, error) {
	s := &HistoryStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	slog.Info("history store initialised")
	return s, nil
}

func (s *HistoryStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sync_history (
			id          TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			run_type    TEXT NOT NULL,
			scanned     INT NOT NULL DEFAULT 0,
			found       INT NOT NULL DEFAULT 0,
			duplicates  INT NOT NULL DEFAULT 0,
			imported    INT NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			error       TEXT,
			started_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_owner ON sync_history(owner_id, started_at DESC);
	`)
	return err
}

// Record writes the run's audit row. Called exactly once per run regardless
// of outcome.
func (s *HistoryStore) Record(ctx context.Context, run models.SyncRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_history
			(id, owner_id, run_type, scanned, found, duplicates, imported,
			 duration_ms, status, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, run.ID, run.OwnerID, run.RunType, run.Scanned, run.Found, run.Duplicates,
		run.Imported, run.Duration.Milliseconds(), run.Status, run.Error, run.StartedAt)
	return err
}

// ListByOwner returns the owner's most recent runs, newest first.
func (s *HistoryStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, run_type, scanned, found, duplicates, imported,
		       duration_ms, status, error, started_at
		FROM sync_history
		WHERE owner_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var durationMs int64
		if err := rows.Scan(
			&run.ID, &run.OwnerID, &run.RunType, &run.Scanned, &run.Found,
			&run.Duplicates, &run.Imported, &durationMs, &run.Status,
			&run.Error, &run.StartedAt,
		); err != nil {
			return nil, err
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, run)
	}
	return out, rows.Err()
}
