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
	"testing"
	"time"

	"github.com/finflow/mailsync/internal/models"
	"github.com/finflow/mailsync/internal/store"
)

// mockTransactions implements TransactionDispositioner with CAS semantics
// matching the Postgres store.
type mockTransactions struct {
	rows map[string]*models.Transaction
}

func newMockTransactions(txs ...models.Transaction) *mockTransactions {
	m := &mockTransactions{rows: make(map[string]*models.Transaction)}
	for i := range txs {
		tx := txs[i]
		m.rows[tx.ID] = &tx
	}
	return m
}

func (m *mockTransactions) Get(_ context.Context, id string) (*models.Transaction, error) {
	tx, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (m *mockTransactions) ClaimDisposition(_ context.Context, id string, markDuplicate bool) error {
	tx, ok := m.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	if tx.IsProcessed {
		return store.ErrAlreadyProcessed
	}
	tx.IsProcessed = true
	tx.NeedsReview = false
	tx.IsDuplicate = tx.IsDuplicate || markDuplicate
	return nil
}

func (m *mockTransactions) ReleaseDisposition(_ context.Context, id string) error {
	tx, ok := m.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	tx.IsProcessed = false
	tx.NeedsReview = true
	return nil
}

// mockEntries implements EntryAppender with the UNIQUE(source_transaction_id)
// behaviour of the Postgres ledger store.
type mockEntries struct {
	entries  []Entry
	failNext bool
}

func (m *mockEntries) Append(_ context.Context, e Entry) error {
	if m.failNext {
		m.failNext = false
		return errors.New("ledger unavailable")
	}
	for _, prev := range m.entries {
		if prev.SourceTransactionID == e.SourceTransactionID {
			return ErrDuplicateEntry
		}
	}
	m.entries = append(m.entries, e)
	return nil
}

func reviewTransaction() models.Transaction {
	return models.Transaction{
		ID:          "tx-1",
		OwnerID:     "owner-1",
		Merchant:    "Swiggy",
		AmountMinor: 49900,
		Date:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Mode:        models.ModeUPI,
		Direction:   models.Debit,
		Category:    "Food & Dining",
		NeedsReview: true,
	}
}

// TestWriter_ApproveDebit verifies that approving a debit posts one expense
// entry and marks the transaction processed.
func TestWriter_ApproveDebit(t *testing.T) {
	txs := newMockTransactions(reviewTransaction())
	entries := &mockEntries{}
	w := NewWriter(txs, entries)

	if err := w.Approve(context.Background(), "tx-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries.entries))
	}
	e := entries.entries[0]
	if e.Kind != KindExpense {
		t.Errorf("kind = %q, want expense", e.Kind)
	}
	if e.Category != "Food & Dining" {
		t.Errorf("category = %q, want Food & Dining", e.Category)
	}
	if e.SourceTransactionID != "tx-1" {
		t.Errorf("source = %q, want tx-1", e.SourceTransactionID)
	}
	if e.AmountMinor != 49900 {
		t.Errorf("amount = %d, want 49900", e.AmountMinor)
	}

	if !txs.rows["tx-1"].IsProcessed {
		t.Error("transaction should be marked processed")
	}
	if txs.rows["tx-1"].NeedsReview {
		t.Error("transaction should leave the review queue")
	}
}

// TestWriter_ApproveCredit verifies that credits post to the income ledger
// without a spend category.
func TestWriter_ApproveCredit(t *testing.T) {
	tx := reviewTransaction()
	tx.Direction = models.Credit
	txs := newMockTransactions(tx)
	entries := &mockEntries{}
	w := NewWriter(txs, entries)

	if err := w.Approve(context.Background(), "tx-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := entries.entries[0]
	if e.Kind != KindIncome {
		t.Errorf("kind = %q, want income", e.Kind)
	}
	if e.Category != "" {
		t.Errorf("income entries carry no category, got %q", e.Category)
	}
}

// TestWriter_ApproveExactlyOnce verifies that a second approval errors
// without creating a second entry.
func TestWriter_ApproveExactlyOnce(t *testing.T) {
	txs := newMockTransactions(reviewTransaction())
	entries := &mockEntries{}
	w := NewWriter(txs, entries)

	if err := w.Approve(context.Background(), "tx-1"); err != nil {
		t.Fatalf("first approve: %v", err)
	}

	err := w.Approve(context.Background(), "tx-1")
	if !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("second approve = %v, want ErrAlreadyProcessed", err)
	}

	if len(entries.entries) != 1 {
		t.Errorf("entries = %d, want exactly 1", len(entries.entries))
	}
}

// TestWriter_ApproveRollsBackOnPostingFailure verifies that a ledger
// rejection releases the claim so the transaction stays reviewable.
func TestWriter_ApproveRollsBackOnPostingFailure(t *testing.T) {
	txs := newMockTransactions(reviewTransaction())
	entries := &mockEntries{failNext: true}
	w := NewWriter(txs, entries)

	err := w.Approve(context.Background(), "tx-1")
	if !errors.Is(err, ErrPosting) {
		t.Fatalf("error = %v, want ErrPosting", err)
	}

	row := txs.rows["tx-1"]
	if row.IsProcessed {
		t.Error("claim should be rolled back after posting failure")
	}
	if !row.NeedsReview {
		t.Error("transaction should return to the review queue")
	}

	// Retry succeeds once the ledger recovers.
	if err := w.Approve(context.Background(), "tx-1"); err != nil {
		t.Fatalf("retry approve: %v", err)
	}
	if len(entries.entries) != 1 {
		t.Errorf("entries = %d, want 1 after retry", len(entries.entries))
	}
}

// TestWriter_Reject verifies that rejection marks the row processed and
// duplicate with no ledger entry.
func TestWriter_Reject(t *testing.T) {
	txs := newMockTransactions(reviewTransaction())
	entries := &mockEntries{}
	w := NewWriter(txs, entries)

	if err := w.Reject(context.Background(), "tx-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries.entries))
	}
	row := txs.rows["tx-1"]
	if !row.IsProcessed || !row.IsDuplicate {
		t.Errorf("rejected row should be processed and flagged duplicate, got %+v", row)
	}

	// A later approve of the same row must fail.
	if err := w.Approve(context.Background(), "tx-1"); !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Errorf("approve after reject = %v, want ErrAlreadyProcessed", err)
	}
}

// TestWriter_UnknownTransaction verifies the not-found mapping.
func TestWriter_UnknownTransaction(t *testing.T) {
	w := NewWriter(newMockTransactions(), &mockEntries{})

	if err := w.Approve(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("approve unknown = %v, want ErrNotFound", err)
	}
	if err := w.Reject(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("reject unknown = %v, want ErrNotFound", err)
	}
}
