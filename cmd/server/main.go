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

// FinFlow MailSync — Notification Ingestion Service
//
// Entry point for the sync service. It:
//  1. Loads configuration from config.yaml
//  2. Connects to PostgreSQL and Redis
//  3. Builds the mail provider client with OAuth2 client credentials
//  4. Starts the per-owner sync scheduler (auto-trigger loop)
//  5. Serves the HTTP API: manual sync, review queue, settings, history
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/finflow/mailsync/internal/api"
	"github.com/finflow/mailsync/internal/config"
	"github.com/finflow/mailsync/internal/dedup"
	"github.com/finflow/mailsync/internal/ledger"
	"github.com/finflow/mailsync/internal/mailbox"
	"github.com/finflow/mailsync/internal/notify"
	"github.com/finflow/mailsync/internal/score"
	"github.com/finflow/mailsync/internal/store"
	"github.com/finflow/mailsync/internal/syncer"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting FinFlow mailsync service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"scheduler_tick", cfg.SchedulerTick,
		"run_budget", cfg.RunBudget,
		"review_cutoff", cfg.Scoring.ReviewCutoff,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := notify.NewPublisher(rdb, cfg.NotifyQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Seen-message Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Postgres Stores ---
	transactions, err := store.NewTransactionStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise transaction store", "error", err)
		os.Exit(1)
	}
	settings, err := store.NewSettingsStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise settings store", "error", err)
		os.Exit(1)
	}
	history, err := store.NewHistoryStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise history store", "error", err)
		os.Exit(1)
	}
	entries, err := ledger.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise ledger store", "error", err)
		os.Exit(1)
	}

	// --- Mail Provider Client (OAuth2 client credentials) ---
	creds := &clientcredentials.Config{
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		TokenURL:     cfg.Provider.TokenURL,
		Scopes:       []string{cfg.Provider.Scope},
	}
	mailClient := mailbox.NewClient(creds.Client(ctx), cfg.Provider.BaseURL, cfg.PageDelay)

	// --- Pipeline ---
	matcher := dedup.NewMatcher(cfg.Dedup.WindowDays, cfg.Dedup.SimilarityThreshold)
	scorer := score.NewScorer(score.Weights{
		ReviewCutoff:       cfg.Scoring.ReviewCutoff,
		MissingReference:   cfg.Scoring.MissingReference,
		MissingAccountMask: cfg.Scoring.MissingAccountMask,
		MissingMerchant:    cfg.Scoring.MissingMerchant,
		DefaultedDate:      cfg.Scoring.DefaultedDate,
	})

	runner := syncer.NewRunner(syncer.RunnerConfig{
		Source:       mailClient,
		Seen:         filter,
		Transactions: transactions,
		Settings:     settings,
		History:      history,
		Publisher:    publisher,
		Matcher:      matcher,
		Scorer:       scorer,
		RunBudget:    cfg.RunBudget,
	})

	// --- Scheduler ---
	scheduler := syncer.NewScheduler(runner, settings, cfg.SchedulerTick)
	scheduler.Start(ctx)

	// --- Disposition Writer ---
	writer := ledger.NewWriter(transactions, entries)

	// --- HTTP API ---
	handler := api.NewHandler(scheduler, writer, transactions, settings, history,
		func(ctx context.Context) error { return pgPool.Ping(ctx) },
		publisher.Ping,
	)
	ready, err := api.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start API server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stops the scheduler loop and closes the API listener

	done := make(chan struct{})
	go func() {
		scheduler.Stop() // waits for in-flight runs
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		slog.Warn("timed out waiting for in-flight runs")
	}

	rdb.Close()
	pgPool.Close()

	slog.Info("mailsync service stopped")
}
