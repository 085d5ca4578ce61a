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

// Package store provides the Postgres-backed stores for imported
// transactions, per-owner sync settings, and the append-only sync history.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finflow/mailsync/internal/models"
)

// ErrNotFound is returned when a transaction id does not exist.
var ErrNotFound = errors.New("transaction not found")

// ErrAlreadyProcessed is returned when a disposition is attempted on a
// transaction whose disposition has already been recorded. Re-approving or
// re-rejecting is a no-op error, never a silent overwrite.
var ErrAlreadyProcessed = errors.New("transaction already processed")

// TransactionStore provides CRUD operations for imported transactions.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a transaction store backed by the given
// Postgres pool. It ensures the transactions table exists on creation.
func NewTransactionStore(ctx context.Context, pool *pgxpool.Pool) (*TransactionStore, error) {
	s := &TransactionStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure transactions schema: %w", err)
	}
	slog.Info("transaction store initialised")
	return s, nil
}

func (s *TransactionStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS imported_transactions (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			merchant      TEXT DEFAULT '',
			amount_minor  BIGINT NOT NULL,
			tx_date       DATE NOT NULL,
			payment_mode  TEXT NOT NULL,
			direction     TEXT NOT NULL,
			confidence    DOUBLE PRECISION NOT NULL,
			needs_review  BOOLEAN NOT NULL DEFAULT FALSE,
			review_reason TEXT,
			is_duplicate  BOOLEAN NOT NULL DEFAULT FALSE,
			is_processed  BOOLEAN NOT NULL DEFAULT FALSE,
			category      TEXT DEFAULT 'Other',
			platform      TEXT DEFAULT '',
			subject       TEXT DEFAULT '',
			reference_id  TEXT DEFAULT '',
			account_mask  TEXT DEFAULT '',
			raw_fields    JSONB,
			created_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_tx_owner_date ON imported_transactions(owner_id, tx_date);
		CREATE INDEX IF NOT EXISTS idx_tx_owner_review ON imported_transactions(owner_id, needs_review) WHERE needs_review;
	`)
	return err
}

const txColumns = `id, owner_id, merchant, amount_minor, tx_date, payment_mode,
       direction, confidence, needs_review, review_reason, is_duplicate,
       is_processed, category, platform, subject, reference_id, account_mask,
       raw_fields, created_at`

// Insert persists a new imported transaction.
func (s *TransactionStore) Insert(ctx context.Context, tx models.Transaction) error {
	raw, err := json.Marshal(tx.RawFields)
	if err != nil {
		return fmt.Errorf("marshal raw fields: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO imported_transactions
			(id, owner_id, merchant, amount_minor, tx_date, payment_mode,
			 direction, confidence, needs_review, review_reason, is_duplicate,
			 is_processed, category, platform, subject, reference_id,
			 account_mask, raw_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, tx.ID, tx.OwnerID, tx.Merchant, tx.AmountMinor, tx.Date, tx.Mode,
		tx.Direction, tx.Confidence, tx.NeedsReview, tx.ReviewReason, tx.IsDuplicate,
		tx.IsProcessed, tx.Category, tx.Platform, tx.Subject, tx.ReferenceID,
		tx.AccountMask, raw)
	return err
}

// Get retrieves a single transaction by id.
func (s *TransactionStore) Get(ctx context.Context, id string) (*models.Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+txColumns+`
		FROM imported_transactions
		WHERE id = $1
	`, id)
	return scanTransaction(row)
}

// Window returns the owner's persisted transactions with dates inside
// [from, to]. Rejected rows are included on purpose: a rejected alert keeps
// suppressing re-imports of the same transaction.
func (s *TransactionStore) Window(ctx context.Context, ownerID string, from, to time.Time) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+txColumns+`
		FROM imported_transactions
		WHERE owner_id = $1 AND tx_date BETWEEN $2 AND $3
		ORDER BY tx_date, created_at
	`, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListReview returns the owner's review queue: persisted, unprocessed
// transactions flagged needs_review.
func (s *TransactionStore) ListReview(ctx context.Context, ownerID string) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+txColumns+`
		FROM imported_transactions
		WHERE owner_id = $1 AND needs_review AND NOT is_processed
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// PendingReviewCount returns the size of the owner's review queue.
func (s *TransactionStore) PendingReviewCount(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM imported_transactions
		WHERE owner_id = $1 AND needs_review AND NOT is_processed
	`, ownerID).Scan(&n)
	return n, err
}

// ClaimDisposition records a disposition with a compare-and-set against
// is_processed. markDuplicate is set on rejection so the row stays out of
// future consideration. Returns ErrAlreadyProcessed when the transaction
// has already been dispositioned, ErrNotFound when the id is unknown.
func (s *TransactionStore) ClaimDisposition(ctx context.Context, id string, markDuplicate bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE imported_transactions
		SET is_processed = TRUE,
		    needs_review = FALSE,
		    is_duplicate = is_duplicate OR $2
		WHERE id = $1 AND NOT is_processed
	`, id, markDuplicate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish "already processed" from "no such row".
	var exists bool
	if err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM imported_transactions WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyProcessed
}

// ReleaseDisposition rolls a claimed disposition back so the transaction is
// visible for retry. Used when ledger posting fails after a claim.
func (s *TransactionStore) ReleaseDisposition(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE imported_transactions
		SET is_processed = FALSE,
		    needs_review = TRUE
		WHERE id = $1
	`, id)
	return err
}

// scanTransaction scans a single row into a Transaction.
func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	var raw []byte
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Merchant, &t.AmountMinor, &t.Date, &t.Mode,
		&t.Direction, &t.Confidence, &t.NeedsReview, &t.ReviewReason, &t.IsDuplicate,
		&t.IsProcessed, &t.Category, &t.Platform, &t.Subject, &t.ReferenceID,
		&t.AccountMask, &raw, &t.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.RawFields); err != nil {
			return nil, fmt.Errorf("unmarshal raw fields: %w", err)
		}
	}
	return &t, nil
}

// collectTransactions scans multiple rows into a slice.
func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var raw []byte
		if err := rows.Scan(
			&t.ID, &t.OwnerID, &t.Merchant, &t.AmountMinor, &t.Date, &t.Mode,
			&t.Direction, &t.Confidence, &t.NeedsReview, &t.ReviewReason, &t.IsDuplicate,
			&t.IsProcessed, &t.Category, &t.Platform, &t.Subject, &t.ReferenceID,
			&t.AccountMask, &raw, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &t.RawFields); err != nil {
				return nil, fmt.Errorf("unmarshal raw fields: %w", err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
