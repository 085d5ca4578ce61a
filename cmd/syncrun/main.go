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

// FinFlow MailSync — One-shot Sync Command
//
// Standalone CLI tool that runs a single sync for one owner and prints the
// run summary. Intended for seeding data on new deployments and for
// debugging extraction against a live mailbox.
//
// Usage:
//
//	go run ./cmd/syncrun/ --owner <owner-id> [--budget 5m]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/finflow/mailsync/internal/config"
	"github.com/finflow/mailsync/internal/dedup"
	"github.com/finflow/mailsync/internal/mailbox"
	"github.com/finflow/mailsync/internal/models"
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

	// --- CLI Flags ---
	ownerFlag := flag.String("owner", "", "Owner id to sync (required)")
	budgetFlag := flag.String("budget", "", "Wall-clock budget for the run (e.g. 5m); empty = configured default")
	flag.Parse()

	if *ownerFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --owner is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	budget := cfg.RunBudget
	if *budgetFlag != "" {
		d, err := time.ParseDuration(*budgetFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --budget duration %q: %v\n", *budgetFlag, err)
			os.Exit(1)
		}
		budget = d
	}

	slog.Info("starting one-shot sync", "owner", *ownerFlag, "budget", budget)

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

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

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

	// --- Mail Provider Client ---
	creds := &clientcredentials.Config{
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		TokenURL:     cfg.Provider.TokenURL,
		Scopes:       []string{cfg.Provider.Scope},
	}
	mailClient := mailbox.NewClient(creds.Client(ctx), cfg.Provider.BaseURL, cfg.PageDelay)

	// --- Run ---
	runner := syncer.NewRunner(syncer.RunnerConfig{
		Source:       mailClient,
		Seen:         filter,
		Transactions: transactions,
		Settings:     settings,
		History:      history,
		Matcher:      dedup.NewMatcher(cfg.Dedup.WindowDays, cfg.Dedup.SimilarityThreshold),
		Scorer: score.NewScorer(score.Weights{
			ReviewCutoff:       cfg.Scoring.ReviewCutoff,
			MissingReference:   cfg.Scoring.MissingReference,
			MissingAccountMask: cfg.Scoring.MissingAccountMask,
			MissingMerchant:    cfg.Scoring.MissingMerchant,
			DefaultedDate:      cfg.Scoring.DefaultedDate,
		}),
		RunBudget: budget,
	})

	run, err := runner.Run(ctx, *ownerFlag, models.RunManual)
	if err != nil {
		slog.Error("sync run failed", "error", err)
	}

	// --- Summary ---
	slog.Info("sync run complete",
		"run_id", run.ID,
		"owner", run.OwnerID,
		"status", run.Status,
		"scanned", run.Scanned,
		"found", run.Found,
		"duplicates", run.Duplicates,
		"imported", run.Imported,
		"duration", run.Duration,
	)

	if run.Status == models.RunFailed {
		os.Exit(1)
	}
}
