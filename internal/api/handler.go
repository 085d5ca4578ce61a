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

// Package api exposes the service's HTTP surface: manual sync triggers, the
// review queue with approve/reject dispositions, settings patches, and the
// countdown for the product UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/finflow/mailsync/internal/ledger"
	"github.com/finflow/mailsync/internal/mailbox"
	"github.com/finflow/mailsync/internal/models"
	"github.com/finflow/mailsync/internal/store"
	"github.com/finflow/mailsync/internal/syncer"
)

// Trigger is the scheduler surface the handler needs.
type Trigger interface {
	Trigger(ctx context.Context, ownerID string, runType models.RunType) (*models.SyncRun, error)
	CountdownSeconds(ownerID string) int
	OwnerState(ownerID string) syncer.State
}

// Dispositioner applies approve/reject decisions.
type Dispositioner interface {
	Approve(ctx context.Context, transactionID string) error
	Reject(ctx context.Context, transactionID string) error
}

// ReviewSource reads the review queue.
type ReviewSource interface {
	ListReview(ctx context.Context, ownerID string) ([]models.Transaction, error)
	PendingReviewCount(ctx context.Context, ownerID string) (int, error)
}

// SettingsWriter is the single settings write path plus reads.
type SettingsWriter interface {
	GetOrCreate(ctx context.Context, ownerID string) (*models.SyncSettings, error)
	Update(ctx context.Context, ownerID string, patch models.SettingsPatch) (*models.SyncSettings, error)
}

// HistorySource reads past run records.
type HistorySource interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.SyncRun, error)
}

// Handler wires the HTTP routes to the core.
type Handler struct {
	trigger  Trigger
	writer   Dispositioner
	review   ReviewSource
	settings SettingsWriter
	history  HistorySource
	pings    []func(ctx context.Context) error
}

// NewHandler creates the API handler. pings are health checks (Postgres,
// Redis) evaluated by /health.
func NewHandler(trigger Trigger, writer Dispositioner, review ReviewSource, settings SettingsWriter, history HistorySource, pings ...func(ctx context.Context) error) *Handler {
	return &Handler{
		trigger:  trigger,
		writer:   writer,
		review:   review,
		settings: settings,
		history:  history,
		pings:    pings,
	}
}

// Routes registers all endpoints on a mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /owners/{owner}/sync", h.handleTriggerSync)
	mux.HandleFunc("GET /owners/{owner}/sync/countdown", h.handleCountdown)
	mux.HandleFunc("GET /owners/{owner}/review", h.handleListReview)
	mux.HandleFunc("GET /owners/{owner}/history", h.handleHistory)
	mux.HandleFunc("GET /owners/{owner}/settings", h.handleGetSettings)
	mux.HandleFunc("PATCH /owners/{owner}/settings", h.handlePatchSettings)
	mux.HandleFunc("POST /transactions/{id}/approve", h.handleApprove)
	mux.HandleFunc("POST /transactions/{id}/reject", h.handleReject)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

func (h *Handler) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner")

	run, err := h.trigger.Trigger(r.Context(), ownerID, models.RunManual)
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		// User-visible condition, not a system error.
		writeError(w, http.StatusConflict, "sync already running")
		return
	case errors.Is(err, mailbox.ErrFetch):
		// The run failed but was recorded; return the summary with the error.
		writeJSON(w, http.StatusBadGateway, run)
		return
	case err != nil:
		slog.Error("trigger sync failed", "owner", ownerID, "error", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleCountdown(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"seconds": h.trigger.CountdownSeconds(ownerID),
		"state":   h.trigger.OwnerState(ownerID),
	})
}

func (h *Handler) handleListReview(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner")

	items, err := h.review.ListReview(r.Context(), ownerID)
	if err != nil {
		slog.Error("list review queue failed", "owner", ownerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load review queue")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": len(items),
		"items":   toReviewItems(items),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner")

	runs, err := h.history.ListByOwner(r.Context(), ownerID, 50)
	if err != nil {
		slog.Error("list history failed", "owner", ownerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}

	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner")

	settings, err := h.settings.GetOrCreate(r.Context(), ownerID)
	if err != nil {
		slog.Error("get settings failed", "owner", ownerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	writeJSON(w, http.StatusOK, toSettingsView(settings))
}

func (h *Handler) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("owner")

	var patch models.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings patch")
		return
	}
	if patch.ScanMode != nil && *patch.ScanMode != models.ScanLimited && *patch.ScanMode != models.ScanFull {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scan mode %q", *patch.ScanMode))
		return
	}

	settings, err := h.settings.Update(r.Context(), ownerID, patch)
	if err != nil {
		slog.Error("update settings failed", "owner", ownerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, toSettingsView(settings))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.writer.Approve(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, store.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, "transaction already processed")
	case errors.Is(err, ledger.ErrPosting):
		// Disposition was rolled back; the caller can retry.
		writeError(w, http.StatusBadGateway, "ledger rejected the entry, transaction left in review")
	case err != nil:
		slog.Error("approve failed", "transaction_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "approve failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.writer.Reject(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, store.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, "transaction already processed")
	case err != nil:
		slog.Error("reject failed", "transaction_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "reject failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, ping := range h.pings {
		if err := ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "dependency unhealthy")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// reviewItem is the wire shape of a queued transaction.
type reviewItem struct {
	ID           string  `json:"id"`
	Merchant     string  `json:"merchant"`
	AmountMinor  int64   `json:"amount_minor"`
	Date         string  `json:"date"`
	Mode         string  `json:"payment_mode"`
	Direction    string  `json:"direction"`
	Confidence   float64 `json:"confidence"`
	ReviewReason *string `json:"review_reason,omitempty"`
	Category     string  `json:"category"`
	Platform     string  `json:"platform"`
	Subject      string  `json:"subject"`
}

func toReviewItems(items []models.Transaction) []reviewItem {
	out := make([]reviewItem, 0, len(items))
	for _, t := range items {
		out = append(out, reviewItem{
			ID:           t.ID,
			Merchant:     t.Merchant,
			AmountMinor:  t.AmountMinor,
			Date:         t.Date.Format("2006-01-02"),
			Mode:         string(t.Mode),
			Direction:    string(t.Direction),
			Confidence:   t.Confidence,
			ReviewReason: t.ReviewReason,
			Category:     t.Category,
			Platform:     t.Platform,
			Subject:      t.Subject,
		})
	}
	return out
}

// settingsView is the wire shape of sync settings.
type settingsView struct {
	OwnerID          string               `json:"owner_id"`
	Enabled          bool                 `json:"enabled"`
	AccountID        string               `json:"account_id"`
	FrequencyMinutes int                  `json:"frequency_minutes"`
	LookbackDays     int                  `json:"lookback_days"`
	ScanMode         models.ScanMode      `json:"scan_mode"`
	Folders          models.FolderToggles `json:"folders"`
	ImportedTotal    int64                `json:"imported_total"`
	Status           string               `json:"status"`
	Version          int64                `json:"version"`
}

func toSettingsView(s *models.SyncSettings) settingsView {
	return settingsView{
		OwnerID:          s.OwnerID,
		Enabled:          s.Enabled,
		AccountID:        s.AccountID,
		FrequencyMinutes: s.FrequencyMinutes,
		LookbackDays:     s.LookbackDays,
		ScanMode:         s.ScanMode,
		Folders:          s.Folders,
		ImportedTotal:    s.ImportedTotal,
		Status:           s.Status,
		Version:          s.Version,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the API server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler: handler.Routes(),
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind API port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("API server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("API server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	return ready, nil
}
