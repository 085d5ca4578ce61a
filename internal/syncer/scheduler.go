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

package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/finflow/mailsync/internal/models"
)

// ErrSyncInProgress is returned when a trigger arrives while a run is
// already executing for the owner. Overlapping triggers are rejected, never
// queued.
var ErrSyncInProgress = errors.New("sync already in progress")

// State is the scheduler's per-owner phase.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateCooldown State = "cooldown"
)

// SettingsLister enumerates owners for the auto-trigger loop.
type SettingsLister interface {
	ListEnabled(ctx context.Context) ([]models.SyncSettings, error)
	GetOrCreate(ctx context.Context, ownerID string) (*models.SyncSettings, error)
}

// ownerState is the authoritative per-owner scheduling state. The Running
// guard is what enforces mutual exclusion; the countdown is derived,
// informational state and never gates execution.
type ownerState struct {
	state     State
	nextDue   time.Time
	frequency time.Duration
}

// Scheduler owns sync timing per owner: manual triggers, periodic
// auto-triggers, countdown state, and mutual exclusion.
//
// State machine per owner:
//
//	Idle --trigger--> Running --completion/failure--> Cooldown
//	Cooldown --timer expiry or manual trigger--> Idle
//
// A trigger while Running is rejected with ErrSyncInProgress. The countdown
// resets to the full frequency on every attempt, successful or not, so a
// failing provider cannot cause a tight retry loop.
type Scheduler struct {
	runner   *Runner
	settings SettingsLister
	tick     time.Duration

	mu     sync.Mutex
	owners map[string]*ownerState

	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler driving the given runner.
func NewScheduler(runner *Runner, settings SettingsLister, tick time.Duration) *Scheduler {
	if tick == 0 {
		tick = time.Second
	}
	return &Scheduler{
		runner:   runner,
		settings: settings,
		tick:     tick,
		owners:   make(map[string]*ownerState),
		now:      time.Now,
	}
}

// Trigger starts a run for the owner. Manual triggers are allowed from Idle
// and Cooldown; any trigger during Running returns ErrSyncInProgress.
func (s *Scheduler) Trigger(ctx context.Context, ownerID string, runType models.RunType) (*models.SyncRun, error) {
	settings, err := s.settings.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	frequency := time.Duration(settings.FrequencyMinutes) * time.Minute

	s.mu.Lock()
	st := s.ownerLocked(ownerID)
	if st.state == StateRunning {
		s.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	now := s.now()
	st.state = StateRunning
	st.frequency = frequency
	// Countdown resets on every attempt, successful or not.
	st.nextDue = now.Add(frequency)
	s.mu.Unlock()

	run, err := s.runner.Run(ctx, ownerID, runType)

	s.mu.Lock()
	st.state = StateCooldown
	s.mu.Unlock()

	return run, err
}

// CountdownSeconds returns the seconds until the owner's next automatic
// run: max(0, nextDue - now), where nextDue is reset to attempt+frequency
// on every trigger. Purely informational; the Running guard is
// authoritative for execution.
func (s *Scheduler) CountdownSeconds(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.owners[ownerID]
	if !ok || st.nextDue.IsZero() {
		return 0
	}
	remaining := st.nextDue.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// OwnerState reports the owner's current scheduling phase.
func (s *Scheduler) OwnerState(ownerID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.owners[ownerID]
	if !ok {
		return StateIdle
	}
	return st.state
}

// Start launches the auto-trigger loop. It returns immediately; the loop
// runs until the context is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				slog.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.pollOnce(loopCtx)
			}
		}
	}()

	slog.Info("scheduler started", "tick", s.tick)
}

// pollOnce fires auto runs for every enabled owner whose countdown reached
// zero. Disabled owners stop self-triggering, but a run already in progress
// is never cancelled.
func (s *Scheduler) pollOnce(ctx context.Context) {
	enabled, err := s.settings.ListEnabled(ctx)
	if err != nil {
		slog.Error("scheduler failed to list enabled owners", "error", err)
		return
	}

	now := s.now()

	for _, settings := range enabled {
		ownerID := settings.OwnerID

		s.mu.Lock()
		st := s.ownerLocked(ownerID)
		due := st.state != StateRunning && (st.nextDue.IsZero() || !now.Before(st.nextDue))
		if due {
			if st.state == StateCooldown {
				// Timer expiry moves Cooldown back to Idle before the trigger.
				st.state = StateIdle
			}
			// Push nextDue forward immediately so the following ticks do not
			// dispatch a second trigger before this one starts.
			st.frequency = time.Duration(settings.FrequencyMinutes) * time.Minute
			st.nextDue = now.Add(st.frequency)
		}
		s.mu.Unlock()

		if !due {
			continue
		}

		s.wg.Add(1)
		go func(ownerID string) {
			defer s.wg.Done()
			if _, err := s.Trigger(ctx, ownerID, models.RunAuto); err != nil {
				if errors.Is(err, ErrSyncInProgress) {
					return // manual run won the race, not an error
				}
				slog.Error("auto sync failed", "owner", ownerID, "error", err)
			}
		}(ownerID)
	}
}

// Stop shuts the auto-trigger loop down and waits for in-flight runs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// ownerLocked returns (creating if needed) the owner's state. Callers hold mu.
func (s *Scheduler) ownerLocked(ownerID string) *ownerState {
	st, ok := s.owners[ownerID]
	if !ok {
		st = &ownerState{state: StateIdle}
		s.owners[ownerID] = st
	}
	return st
}
