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

// Package models defines the data structures shared across the mailsync service.
package models

import "time"

// Folder identifies a mailbox folder the fetcher can scan.
type Folder string

const (
	FolderInbox      Folder = "inbox"
	FolderPromotions Folder = "promotions"
	FolderUpdates    Folder = "updates"
	FolderSocial     Folder = "social"
	FolderSpam       Folder = "spam"
	FolderTrash      Folder = "trash"
)

// ScanMode is a named preset over the folder toggles.
type ScanMode string

const (
	ScanLimited ScanMode = "limited" // inbox + updates only
	ScanFull    ScanMode = "full"    // every folder
)

// Direction is the money flow of a transaction from the owner's view.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// PaymentMode is the closed enumeration of payment instruments.
type PaymentMode string

const (
	ModeUPI          PaymentMode = "UPI"
	ModeCard         PaymentMode = "Card"
	ModeBankTransfer PaymentMode = "BankTransfer"
	ModeOther        PaymentMode = "Other"
)

// RunType distinguishes user-initiated syncs from scheduler-initiated ones.
type RunType string

const (
	RunManual RunType = "manual"
	RunAuto   RunType = "auto"
)

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// RawMessage is a candidate notification email as returned by the mail
// provider. The body is plain text (the provider is asked to down-convert
// HTML).
type RawMessage struct {
	ID         string    `json:"id"`
	Folder     Folder    `json:"folder"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Candidate is the ephemeral, per-message output of extraction. It only
// becomes a Transaction after dedup and scoring decide its fate.
type Candidate struct {
	MessageID   string
	Subject     string
	Platform    string // source platform guess, e.g. "hdfc", "gpay"
	Channel     string // "bank", "app", or "card"
	AmountMinor int64  // integer minor units (paise, cents)
	Date        time.Time
	// DateDefaulted is true when the body carried no usable date and the
	// message received timestamp was used instead.
	DateDefaulted bool
	Merchant      string
	ReferenceID   string // optional
	AccountMask   string // optional, e.g. "XX1234"
	Direction     Direction
	Mode          PaymentMode
	// Invalid is set by normalization when the candidate cannot be
	// persisted (e.g. non-positive amount). Invalid candidates are dropped
	// from the run's found set.
	Invalid       bool
	InvalidReason string
}

// Transaction is a persisted imported transaction, one row per accepted or
// queued candidate.
type Transaction struct {
	ID           string
	OwnerID      string
	Merchant     string
	AmountMinor  int64
	Date         time.Time
	Mode         PaymentMode
	Direction    Direction
	Confidence   float64
	NeedsReview  bool
	ReviewReason *string
	IsDuplicate  bool
	IsProcessed  bool
	Category     string
	Platform     string
	Subject      string
	ReferenceID  string
	AccountMask  string
	// RawFields retains the extracted fields verbatim for audit/debugging.
	RawFields map[string]string
	CreatedAt time.Time
}

// FolderToggles holds the per-folder scan switches.
type FolderToggles struct {
	Inbox      bool `json:"inbox" yaml:"inbox"`
	Promotions bool `json:"promotions" yaml:"promotions"`
	Updates    bool `json:"updates" yaml:"updates"`
	Social     bool `json:"social" yaml:"social"`
	Spam       bool `json:"spam" yaml:"spam"`
	Trash      bool `json:"trash" yaml:"trash"`
}

// Enabled returns the folders currently switched on, in a stable order.
func (t FolderToggles) Enabled() []Folder {
	var out []Folder
	if t.Inbox {
		out = append(out, FolderInbox)
	}
	if t.Promotions {
		out = append(out, FolderPromotions)
	}
	if t.Updates {
		out = append(out, FolderUpdates)
	}
	if t.Social {
		out = append(out, FolderSocial)
	}
	if t.Spam {
		out = append(out, FolderSpam)
	}
	if t.Trash {
		out = append(out, FolderTrash)
	}
	return out
}

// TogglesForMode returns the folder preset named by a scan mode.
func TogglesForMode(mode ScanMode) FolderToggles {
	if mode == ScanFull {
		return FolderToggles{Inbox: true, Promotions: true, Updates: true, Social: true, Spam: true, Trash: true}
	}
	return FolderToggles{Inbox: true, Updates: true}
}

// SyncSettings is the per-owner, long-lived sync configuration.
type SyncSettings struct {
	OwnerID          string
	Enabled          bool
	AccountID        string // linked mail account identifier
	LastRunAt        *time.Time
	LastAutoRunAt    *time.Time
	Status           string
	ImportedTotal    int64 // lifetime imported count
	Folders          FolderToggles
	FrequencyMinutes int
	LookbackDays     int
	ScanMode         ScanMode
	// Version increments on every settings write. All writes go through a
	// single path so concurrent edits are explicit last-writer-wins.
	Version   int64
	UpdatedAt time.Time
}

// SettingsPatch is a partial update applied through the single settings
// writer path. Nil fields are left untouched. Setting ScanMode applies the
// preset to the folder toggles; an explicit Folders value wins over the
// preset when both are present.
type SettingsPatch struct {
	Enabled          *bool          `json:"enabled,omitempty"`
	AccountID        *string        `json:"account_id,omitempty"`
	FrequencyMinutes *int           `json:"frequency_minutes,omitempty"`
	LookbackDays     *int           `json:"lookback_days,omitempty"`
	ScanMode         *ScanMode      `json:"scan_mode,omitempty"`
	Folders          *FolderToggles `json:"folders,omitempty"`
}

// SyncRun is the audit record written exactly once per run.
type SyncRun struct {
	ID         string        `json:"id"`
	OwnerID    string        `json:"owner_id"`
	RunType    RunType       `json:"run_type"`
	Scanned    int           `json:"scanned"`
	Found      int           `json:"found"`
	Duplicates int           `json:"duplicates"`
	Imported   int           `json:"imported"`
	Duration   time.Duration `json:"duration"`
	Status     RunStatus     `json:"status"`
	Error      *string       `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
}
