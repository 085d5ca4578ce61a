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

// Package notify publishes run summaries and review-queue counts to Redis
// for the product's notification/UI surface. The surface only reads; no
// contract obligations flow back into the core.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/finflow/mailsync/internal/models"
)

// Publisher sends sync events to a Redis list consumed by the product
// backend.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// event is the envelope pushed onto the queue.
type event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"` // "run_completed", "review_pending"
	OwnerID       string          `json:"owner_id"`
	Run           *models.SyncRun `json:"run,omitempty"`
	PendingReview int             `json:"pending_review,omitempty"`
	EmittedAt     string          `json:"emitted_at"`
}

// PublishRunSummary pushes a run's summary after completion (any status).
func (p *Publisher) PublishRunSummary(ctx context.Context, run models.SyncRun, pendingReview int) error {
	ev := event{
		ID:            uuid.New().String(),
		Type:          "run_completed",
		OwnerID:       run.OwnerID,
		Run:           &run,
		PendingReview: pendingReview,
		EmittedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published run summary",
		"event_id", ev.ID,
		"owner", run.OwnerID,
		"status", run.Status,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
