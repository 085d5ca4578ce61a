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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/finflow/mailsync/internal/models"
	"github.com/finflow/mailsync/internal/store"
)

// ErrPosting marks a recoverable ledger rejection. The disposition is
// rolled back so the transaction stays visible for retry; this is never a
// run failure.
var ErrPosting = errors.New("ledger posting failed")

// TransactionDispositioner is the slice of the transaction store the writer
// needs. Implemented by store.TransactionStore.
type TransactionDispositioner interface {
	Get(ctx context.Context, id string) (*models.Transaction, error)
	// ClaimDisposition flips is_processed false→true atomically. It must
	// return store.ErrAlreadyProcessed for an already-dispositioned row and
	// store.ErrNotFound for an unknown id.
	ClaimDisposition(ctx context.Context, id string, markDuplicate bool) error
	ReleaseDisposition(ctx context.Context, id string) error
}

// EntryAppender is the slice of the ledger store the writer needs.
type EntryAppender interface {
	Append(ctx context.Context, e Entry) error
}

// Writer applies review-queue dispositions. Each transaction id gets
// exactly one disposition: the claim is a compare-and-set against
// is_processed, so double submissions and concurrent calls surface as
// errors instead of duplicate ledger rows.
type Writer struct {
	transactions TransactionDispositioner
	entries      EntryAppender
}

// NewWriter creates a disposition writer.
func NewWriter(transactions TransactionDispositioner, entries EntryAppender) *Writer {
	return &Writer{
		transactions: transactions,
		entries:      entries,
	}
}

// Approve posts the transaction to the ledger (Income for credit, Expense
// for debit) and marks it processed. Posting and the flag update form one
// logical unit: the claim is taken first and rolled back if the ledger
// rejects the entry, leaving the transaction queued for retry.
func (w *Writer) Approve(ctx context.Context, transactionID string) error {
	tx, err := w.transactions.Get(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", transactionID, err)
	}
	if tx == nil {
		return fmt.Errorf("approve %s: %w", transactionID, store.ErrNotFound)
	}

	if err := w.transactions.ClaimDisposition(ctx, transactionID, false); err != nil {
		return err
	}

	entry := Entry{
		ID:                  uuid.New().String(),
		OwnerID:             tx.OwnerID,
		AmountMinor:         tx.AmountMinor,
		Date:                tx.Date,
		Merchant:            tx.Merchant,
		SourceTransactionID: tx.ID,
	}
	if tx.Direction == models.Credit {
		entry.Kind = KindIncome
	} else {
		entry.Kind = KindExpense
		entry.Category = tx.Category
	}

	if err := w.entries.Append(ctx, entry); err != nil {
		// Roll the claim back so the transaction stays visible for retry.
		if relErr := w.transactions.ReleaseDisposition(ctx, transactionID); relErr != nil {
			slog.Error("failed to release disposition after posting failure",
				"transaction_id", transactionID,
				"error", relErr,
			)
		}
		return fmt.Errorf("%w: %v", ErrPosting, err)
	}

	slog.Info("transaction approved",
		"transaction_id", transactionID,
		"owner", tx.OwnerID,
		"kind", entry.Kind,
		"amount_minor", entry.AmountMinor,
	)

	return nil
}

// Reject marks the transaction out of future consideration without creating
// a ledger entry. The row keeps participating in dedup windows so the same
// alert cannot be re-imported later.
func (w *Writer) Reject(ctx context.Context, transactionID string) error {
	if err := w.transactions.ClaimDisposition(ctx, transactionID, true); err != nil {
		return err
	}

	slog.Info("transaction rejected", "transaction_id", transactionID)
	return nil
}
