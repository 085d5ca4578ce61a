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

// Package ledger posts approved transactions to the expense/income ledger
// and owns the review-queue disposition flow. The ledger itself belongs to
// the surrounding product; this package only appends, with a traceable
// back-reference from every entry to exactly one source transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EntryKind distinguishes the two ledgers.
type EntryKind string

const (
	KindExpense EntryKind = "expense"
	KindIncome  EntryKind = "income"
)

// Entry is one ledger row. SourceTransactionID carries the audit trail back
// to the imported transaction; the UNIQUE constraint on it is what makes
// posting exactly-once.
type Entry struct {
	ID                  string
	OwnerID             string
	Kind                EntryKind
	AmountMinor         int64
	Date                time.Time
	Category            string // set for expenses only
	Merchant            string
	SourceTransactionID string
	CreatedAt           time.Time
}

// ErrDuplicateEntry is returned when an entry for the same source
// transaction already exists.
var ErrDuplicateEntry = errors.New("ledger entry already exists for source transaction")

// Store appends entries to the product's ledger tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a ledger store backed by the given Postgres pool. It
// ensures the ledger_entries table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	slog.Info("ledger store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id                    TEXT PRIMARY KEY,
			owner_id              TEXT NOT NULL,
			kind                  TEXT NOT NULL,
			amount_minor          BIGINT NOT NULL CHECK (amount_minor > 0),
			entry_date            DATE NOT NULL,
			category              TEXT DEFAULT '',
			merchant              TEXT DEFAULT '',
			source_transaction_id TEXT NOT NULL UNIQUE,
			created_at            TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_owner ON ledger_entries(owner_id, entry_date);
	`)
	return err
}

// Append inserts a ledger entry. Returns ErrDuplicateEntry when the source
// transaction has already been posted.
func (s *Store) Append(ctx context.Context, e Entry) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_entries
			(id, owner_id, kind, amount_minor, entry_date, category, merchant,
			 source_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_transaction_id) DO NOTHING
	`, e.ID, e.OwnerID, e.Kind, e.AmountMinor, e.Date, e.Category, e.Merchant,
		e.SourceTransactionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateEntry
	}
	return nil
}

// CountBySource returns how many entries reference a source transaction.
// 0 or 1 by construction; exposed for audits.
func (s *Store) CountBySource(ctx context.Context, sourceTransactionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ledger_entries WHERE source_transaction_id = $1
	`, sourceTransactionID).Scan(&n)
	return n, err
}
