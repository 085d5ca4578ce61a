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

// Package syncer runs the ingestion pipeline: fetch → extract → normalize →
// dedup → score → persist, and owns the scheduling discipline around it.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finflow/mailsync/internal/dedup"
	"github.com/finflow/mailsync/internal/extract"
	"github.com/finflow/mailsync/internal/mailbox"
	"github.com/finflow/mailsync/internal/models"
	"github.com/finflow/mailsync/internal/normalize"
	"github.com/finflow/mailsync/internal/score"
)

// MessageSource lists candidate messages from the mail provider.
// Implemented by mailbox.Client.
type MessageSource interface {
	ListMessages(ctx context.Context, q mailbox.Query) ([]models.RawMessage, error)
}

// SeenFilter suppresses reprocessing of provider message ids across runs.
// Forget undoes a marker set by IsNew when the message never reached a
// terminal classification, so the next run retries it. Implemented by
// dedup.Filter.
type SeenFilter interface {
	IsNew(ctx context.Context, ownerID, messageID string) (bool, error)
	Forget(ctx context.Context, ownerID, messageID string) error
}

// TransactionSink is the slice of the transaction store the runner needs.
type TransactionSink interface {
	Insert(ctx context.Context, tx models.Transaction) error
	Window(ctx context.Context, ownerID string, from, to time.Time) ([]models.Transaction, error)
	PendingReviewCount(ctx context.Context, ownerID string) (int, error)
}

// SettingsSource reads settings and records run bookkeeping.
type SettingsSource interface {
	GetOrCreate(ctx context.Context, ownerID string) (*models.SyncSettings, error)
	RecordRunOutcome(ctx context.Context, ownerID string, runType models.RunType, imported int, status models.RunStatus) error
}

// HistoryRecorder persists the run's audit record.
type HistoryRecorder interface {
	Record(ctx context.Context, run models.SyncRun) error
}

// SummaryPublisher pushes run summaries to the notification surface.
// Optional; publish failures never fail a run.
type SummaryPublisher interface {
	PublishRunSummary(ctx context.Context, run models.SyncRun, pendingReview int) error
}

// Runner executes one end-to-end sync run for an owner. Messages are
// processed sequentially per owner so the dedup window read and the insert
// operate against a serialized view; within-batch candidates are also
// matched against each other before persisting.
type Runner struct {
	source       MessageSource
	seen         SeenFilter
	transactions TransactionSink
	settings     SettingsSource
	history      HistoryRecorder
	publisher    SummaryPublisher
	matcher      *dedup.Matcher
	scorer       *score.Scorer
	runBudget    time.Duration
}

// RunnerConfig holds dependencies for the runner.
type RunnerConfig struct {
	Source       MessageSource
	Seen         SeenFilter
	Transactions TransactionSink
	Settings     SettingsSource
	History      HistoryRecorder
	Publisher    SummaryPublisher
	Matcher      *dedup.Matcher
	Scorer       *score.Scorer
	RunBudget    time.Duration
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg RunnerConfig) *Runner {
	budget := cfg.RunBudget
	if budget == 0 {
		budget = 2 * time.Minute
	}
	return &Runner{
		source:       cfg.Source,
		seen:         cfg.Seen,
		transactions: cfg.Transactions,
		settings:     cfg.Settings,
		history:      cfg.History,
		publisher:    cfg.Publisher,
		matcher:      cfg.Matcher,
		scorer:       cfg.Scorer,
		runBudget:    budget,
	}
}

// Run executes one sync run. It always writes exactly one history record,
// including failed runs. The returned summary carries the run's outcome;
// the error is non-nil only when the run failed outright (fetch failure).
func (r *Runner) Run(ctx context.Context, ownerID string, runType models.RunType) (*models.SyncRun, error) {
	start := time.Now()
	run := &models.SyncRun{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		RunType:   runType,
		Status:    models.RunCompleted,
		StartedAt: start.UTC(),
	}

	slog.Info("sync run starting",
		"run_id", run.ID,
		"owner", ownerID,
		"type", runType,
	)

	settings, err := r.settings.GetOrCreate(ctx, ownerID)
	if err != nil {
		return r.finish(ctx, run, start, fmt.Errorf("load settings: %w", err))
	}

	// Runs that exceed the wall-clock budget terminate with status partial,
	// keeping whatever was persisted so far.
	runCtx, cancel := context.WithTimeout(ctx, r.runBudget)
	defer cancel()

	folders := settings.Folders.Enabled()
	if len(folders) == 0 {
		folders = models.TogglesForMode(settings.ScanMode).Enabled()
	}

	messages, err := r.source.ListMessages(runCtx, mailbox.Query{
		AccountID: settings.AccountID,
		Folders:   folders,
		Since:     start.UTC().AddDate(0, 0, -settings.LookbackDays),
	})
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			// Budget exhaustion mid-fetch is a truncated run, not a
			// provider failure.
			slog.Warn("run budget expired during fetch",
				"run_id", run.ID,
				"owner", ownerID,
			)
			run.Status = models.RunPartial
			return r.finish(ctx, run, start, nil)
		}
		return r.finish(ctx, run, start, fmt.Errorf("%w: %v", mailbox.ErrFetch, err))
	}

	var accepted []models.Candidate
	partial := false

	for _, msg := range messages {
		if runCtx.Err() != nil {
			partial = true
			break
		}

		run.Scanned++

		isNew, err := r.seen.IsNew(runCtx, ownerID, msg.ID)
		if err != nil {
			slog.Warn("seen-filter check failed, proceeding", "error", err)
		} else if !isNew {
			run.Duplicates++
			continue
		}

		cand, ok := extract.Extract(msg)
		if !ok {
			// Unparsable messages count as scanned, not found.
			continue
		}

		cand = normalize.Apply(cand)
		if cand.Invalid {
			slog.Debug("dropping invalid candidate",
				"message_id", msg.ID,
				"reason", cand.InvalidReason,
			)
			continue
		}

		run.Found++

		if r.inBatchDuplicate(cand, accepted) {
			run.Duplicates++
			continue
		}

		from, to := r.matcher.Window(cand.Date)
		window, err := r.transactions.Window(runCtx, ownerID, from, to)
		if err != nil {
			slog.Error("dedup window query failed, skipping message",
				"message_id", msg.ID,
				"error", err,
			)
			r.forgetSeen(ctx, ownerID, msg.ID)
			partial = true
			continue
		}

		if r.matcher.IsDuplicate(cand, window) {
			run.Duplicates++
			continue
		}

		res := r.scorer.Score(cand)

		tx := buildTransaction(ownerID, cand, res)
		if err := r.transactions.Insert(runCtx, tx); err != nil {
			slog.Error("transaction insert failed",
				"message_id", msg.ID,
				"error", err,
			)
			r.forgetSeen(ctx, ownerID, msg.ID)
			partial = true
			continue
		}

		accepted = append(accepted, cand)
		run.Imported++
	}

	if partial {
		run.Status = models.RunPartial
	}

	return r.finish(ctx, run, start, nil)
}

// forgetSeen releases a message's seen marker after a mid-pipeline failure.
// Uses the parent context: the run budget may already be exhausted, and a
// marker left behind would suppress the message for the filter's whole TTL.
func (r *Runner) forgetSeen(ctx context.Context, ownerID, messageID string) {
	if err := r.seen.Forget(ctx, ownerID, messageID); err != nil {
		slog.Warn("failed to release seen marker, message stays suppressed",
			"message_id", messageID,
			"error", err,
		)
	}
}

// inBatchDuplicate compares a candidate against the candidates already
// accepted in this batch.
func (r *Runner) inBatchDuplicate(cand models.Candidate, accepted []models.Candidate) bool {
	for _, prev := range accepted {
		if r.matcher.MatchesCandidate(cand, prev) {
			return true
		}
	}
	return false
}

// finish closes out a run: status/error stamping, settings bookkeeping, the
// history record, and the notification event. History is written exactly
// once on every path; no run vanishes silently.
func (r *Runner) finish(ctx context.Context, run *models.SyncRun, start time.Time, runErr error) (*models.SyncRun, error) {
	if runErr != nil {
		run.Status = models.RunFailed
		msg := runErr.Error()
		run.Error = &msg
	}
	run.Duration = time.Since(start)

	// Bookkeeping uses the parent context: the run budget may already be
	// exhausted, but the audit trail must still be written.
	if err := r.settings.RecordRunOutcome(ctx, run.OwnerID, run.RunType, run.Imported, run.Status); err != nil {
		slog.Error("failed to record run outcome on settings",
			"run_id", run.ID,
			"error", err,
		)
	}

	if err := r.history.Record(ctx, *run); err != nil {
		slog.Error("failed to write sync history record",
			"run_id", run.ID,
			"error", err,
		)
	}

	if r.publisher != nil {
		pending := 0
		if n, err := r.transactions.PendingReviewCount(ctx, run.OwnerID); err == nil {
			pending = n
		}
		if err := r.publisher.PublishRunSummary(ctx, *run, pending); err != nil {
			slog.Warn("failed to publish run summary", "run_id", run.ID, "error", err)
		}
	}

	slog.Info("sync run finished",
		"run_id", run.ID,
		"owner", run.OwnerID,
		"status", run.Status,
		"scanned", run.Scanned,
		"found", run.Found,
		"duplicates", run.Duplicates,
		"imported", run.Imported,
		"duration", run.Duration,
	)

	return run, runErr
}

// buildTransaction materialises a persisted transaction from a scored
// candidate.
func buildTransaction(ownerID string, cand models.Candidate, res score.Result) models.Transaction {
	raw := map[string]string{
		"message_id":   cand.MessageID,
		"platform":     cand.Platform,
		"channel":      cand.Channel,
		"merchant":     cand.Merchant,
		"reference_id": cand.ReferenceID,
		"account_mask": cand.AccountMask,
		"date":         cand.Date.Format(normalize.DateLayout),
	}
	if cand.DateDefaulted {
		raw["date_defaulted"] = "true"
	}

	return models.Transaction{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Merchant:     cand.Merchant,
		AmountMinor:  cand.AmountMinor,
		Date:         cand.Date,
		Mode:         cand.Mode,
		Direction:    cand.Direction,
		Confidence:   res.Confidence,
		NeedsReview:  res.NeedsReview,
		ReviewReason: res.ReviewReason,
		Category:     res.Category,
		Platform:     cand.Platform,
		Subject:      cand.Subject,
		ReferenceID:  cand.ReferenceID,
		AccountMask:  cand.AccountMask,
		RawFields:    raw,
	}
}
