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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds credentials for the mail provider API.
type ProviderConfig struct {
	BaseURL      string `yaml:"base_url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Scope        string `yaml:"scope"`
}

// ScoringConfig carries the tunable confidence weights and thresholds.
// The defaults mirror the review surface's 0.7 high/low-confidence split;
// they are configuration, not constants.
type ScoringConfig struct {
	ReviewCutoff       float64 `yaml:"review_cutoff"`
	MissingReference   float64 `yaml:"missing_reference"`
	MissingAccountMask float64 `yaml:"missing_account_mask"`
	MissingMerchant    float64 `yaml:"missing_merchant"`
	DefaultedDate      float64 `yaml:"defaulted_date"`
}

// DedupConfig carries the duplicate-matcher tunables.
type DedupConfig struct {
	WindowDays          int     `yaml:"window_days"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// Config holds all configuration for the mailsync service.
type Config struct {
	Provider ProviderConfig
	Scoring  ScoringConfig
	Dedup    DedupConfig

	// Scheduler
	SchedulerTick time.Duration
	RunBudget     time.Duration // wall-clock budget per run
	PageDelay     time.Duration // delay between provider pages

	// Postgres
	DatabaseURL string

	// Redis
	RedisURL    string
	NotifyQueue string

	// API server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Provider ProviderConfig `yaml:"provider"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Notify string `yaml:"notify"`
		} `yaml:"queues"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Provider:      raw.Provider,
		Scoring:       raw.Scoring,
		Dedup:         raw.Dedup,
		SchedulerTick: envOrDefaultDuration("SCHEDULER_TICK", time.Second),
		RunBudget:     envOrDefaultDuration("RUN_BUDGET", 2*time.Minute),
		PageDelay:     envOrDefaultDuration("PAGE_DELAY", 500*time.Millisecond),
		DatabaseURL:   firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "")),
		RedisURL:      firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		NotifyQueue:   firstNonEmpty(raw.Redis.Queues.Notify, envOrDefault("NOTIFY_QUEUE", "sync_events")),
		Port:          envOrDefaultInt("PORT", 8080),
	}

	applyScoringDefaults(&cfg.Scoring)
	applyDedupDefaults(&cfg.Dedup)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required — set it in config.yaml or the environment")
	}

	if cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("provider.base_url is required — check config.yaml")
	}

	return cfg, nil
}

// applyScoringDefaults fills zero-valued weights with the documented defaults.
func applyScoringDefaults(s *ScoringConfig) {
	if s.ReviewCutoff == 0 {
		s.ReviewCutoff = 0.70
	}
	if s.MissingReference == 0 {
		s.MissingReference = 0.25
	}
	if s.MissingAccountMask == 0 {
		s.MissingAccountMask = 0.10
	}
	if s.MissingMerchant == 0 {
		s.MissingMerchant = 0.15
	}
	if s.DefaultedDate == 0 {
		s.DefaultedDate = 0.05
	}
}

func applyDedupDefaults(d *DedupConfig) {
	if d.WindowDays == 0 {
		d.WindowDays = 2
	}
	if d.SimilarityThreshold == 0 {
		d.SimilarityThreshold = 0.60
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
