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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finflow/mailsync/internal/models"
)

// SettingsStore persists per-owner sync settings. All writes go through
// Update, the single writer path: each write carries the version it read,
// so concurrent edits from multiple surfaces resolve as explicit
// last-writer-wins instead of silently clobbering each other.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a settings store backed by the given Postgres
// pool. It ensures the sync_settings table exists on creation.
func NewSettingsStore(ctx context.Context, pool *pgxpool.Pool) (*SettingsStore, error) {
	s := &SettingsStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure settings schema: %w", err)
	}
	slog.Info("settings store initialised")
	return s, nil
}

func (s *SettingsStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sync_settings (
			owner_id          TEXT PRIMARY KEY,
			enabled           BOOLEAN NOT NULL DEFAULT FALSE,
			account_id        TEXT DEFAULT '',
			last_run_at       TIMESTAMPTZ,
			last_auto_run_at  TIMESTAMPTZ,
			status            TEXT DEFAULT 'idle',
			imported_total    BIGINT NOT NULL DEFAULT 0,
			scan_inbox        BOOLEAN NOT NULL DEFAULT TRUE,
			scan_promotions   BOOLEAN NOT NULL DEFAULT FALSE,
			scan_updates      BOOLEAN NOT NULL DEFAULT TRUE,
			scan_social       BOOLEAN NOT NULL DEFAULT FALSE,
			scan_spam         BOOLEAN NOT NULL DEFAULT FALSE,
			scan_trash        BOOLEAN NOT NULL DEFAULT FALSE,
			frequency_minutes INT NOT NULL DEFAULT 60,
			lookback_days     INT NOT NULL DEFAULT 7,
			scan_mode         TEXT NOT NULL DEFAULT 'limited',
			version           BIGINT NOT NULL DEFAULT 1,
			updated_at        TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

const settingsColumns = `owner_id, enabled, account_id, last_run_at, last_auto_run_at,
       status, imported_total, scan_inbox, scan_promotions, scan_updates,
       scan_social, scan_spam, scan_trash, frequency_minutes, lookback_days,
       scan_mode, version, updated_at`

// Get retrieves an owner's settings, or nil when none exist yet.
func (s *SettingsStore) Get(ctx context.Context, ownerID string) (*models.SyncSettings, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+settingsColumns+`
		FROM sync_settings
		WHERE owner_id = $1
	`, ownerID)
	return scanSettings(row)
}

// GetOrCreate retrieves an owner's settings, inserting the defaults first
// if the owner has none.
func (s *SettingsStore) GetOrCreate(ctx context.Context, ownerID string) (*models.SyncSettings, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_settings (owner_id) VALUES ($1)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, ownerID)
}

// ListEnabled returns all owners whose sync is switched on. The scheduler
// uses this to drive automatic triggers.
func (s *SettingsStore) ListEnabled(ctx context.Context) ([]models.SyncSettings, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+settingsColumns+`
		FROM sync_settings
		WHERE enabled
		ORDER BY owner_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SyncSettings
	for rows.Next() {
		rec, err := scanSettingsValues(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Update applies a patch through the single writer path. The patch is
// applied to a fresh read and written back with a version bump; on a
// version conflict the read+apply is retried, so the later writer wins
// explicitly. Changes take effect on the next run, never retroactively.
func (s *SettingsStore) Update(ctx context.Context, ownerID string, patch models.SettingsPatch) (*models.SyncSettings, error) {
	for attempt := 0; attempt < 5; attempt++ {
		current, err := s.GetOrCreate(ctx, ownerID)
		if err != nil {
			return nil, err
		}

		next := applyPatch(*current, patch)

		tag, err := s.pool.Exec(ctx, `
			UPDATE sync_settings
			SET enabled = $2, account_id = $3,
			    scan_inbox = $4, scan_promotions = $5, scan_updates = $6,
			    scan_social = $7, scan_spam = $8, scan_trash = $9,
			    frequency_minutes = $10, lookback_days = $11, scan_mode = $12,
			    version = version + 1, updated_at = NOW()
			WHERE owner_id = $1 AND version = $13
		`, ownerID, next.Enabled, next.AccountID,
			next.Folders.Inbox, next.Folders.Promotions, next.Folders.Updates,
			next.Folders.Social, next.Folders.Spam, next.Folders.Trash,
			next.FrequencyMinutes, next.LookbackDays, next.ScanMode,
			current.Version)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 1 {
			return s.Get(ctx, ownerID)
		}
		// Version moved underneath us — re-read and re-apply.
	}
	return nil, fmt.Errorf("update settings for %s: too many concurrent writers", ownerID)
}

// RecordRunOutcome updates the run bookkeeping after a sync run. Successful
// runs advance last_run_at and the lifetime imported count; auto runs also
// advance last_auto_run_at.
func (s *SettingsStore) RecordRunOutcome(ctx context.Context, ownerID string, runType models.RunType, imported int, status models.RunStatus) error {
	success := status != models.RunFailed
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_settings
		SET last_run_at      = CASE WHEN $2 THEN NOW() ELSE last_run_at END,
		    last_auto_run_at = CASE WHEN $3 THEN NOW() ELSE last_auto_run_at END,
		    imported_total   = imported_total + $4,
		    status           = $5,
		    updated_at       = NOW()
		WHERE owner_id = $1
	`, ownerID, success, success && runType == models.RunAuto, imported, string(status))
	return err
}

// applyPatch merges a patch into current settings. A scan-mode change
// applies the folder preset; an explicit folder set wins over the preset.
func applyPatch(current models.SyncSettings, patch models.SettingsPatch) models.SyncSettings {
	next := current
	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	if patch.AccountID != nil {
		next.AccountID = *patch.AccountID
	}
	if patch.FrequencyMinutes != nil && *patch.FrequencyMinutes > 0 {
		next.FrequencyMinutes = *patch.FrequencyMinutes
	}
	if patch.LookbackDays != nil && *patch.LookbackDays > 0 {
		next.LookbackDays = *patch.LookbackDays
	}
	if patch.ScanMode != nil {
		next.ScanMode = *patch.ScanMode
		next.Folders = models.TogglesForMode(*patch.ScanMode)
	}
	if patch.Folders != nil {
		next.Folders = *patch.Folders
	}
	return next
}

func scanSettings(row pgx.Row) (*models.SyncSettings, error) {
	rec, err := scanSettingsValues(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func scanSettingsValues(row pgx.Row) (*models.SyncSettings, error) {
	var rec models.SyncSettings
	var mode string
	var updatedAt *time.Time
	err := row.Scan(
		&rec.OwnerID, &rec.Enabled, &rec.AccountID, &rec.LastRunAt, &rec.LastAutoRunAt,
		&rec.Status, &rec.ImportedTotal, &rec.Folders.Inbox, &rec.Folders.Promotions,
		&rec.Folders.Updates, &rec.Folders.Social, &rec.Folders.Spam, &rec.Folders.Trash,
		&rec.FrequencyMinutes, &rec.LookbackDays, &mode, &rec.Version, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ScanMode = models.ScanMode(mode)
	if updatedAt != nil {
		rec.UpdatedAt = *updatedAt
	}
	return &rec, nil
}
