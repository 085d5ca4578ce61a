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

package dedup

import (
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/finflow/mailsync/internal/models"
)

// Matcher decides whether a candidate duplicates an already-persisted
// transaction. Rules apply in order, first match wins:
//
//  1. same reference ID, when both sides have one
//  2. same amount + same date + same payment mode, with merchant-name
//     similarity above the threshold
type Matcher struct {
	// WindowDays is the ± date tolerance used when loading the existing
	// window for comparison.
	WindowDays int

	// SimilarityThreshold is the minimum normalized merchant similarity
	// (0..1) for rule 2.
	SimilarityThreshold float64
}

// NewMatcher creates a matcher with the given tunables.
func NewMatcher(windowDays int, similarityThreshold float64) *Matcher {
	return &Matcher{
		WindowDays:          windowDays,
		SimilarityThreshold: similarityThreshold,
	}
}

// Window returns the [from, to] date range a candidate should be compared
// against.
func (m *Matcher) Window(date time.Time) (from, to time.Time) {
	tol := time.Duration(m.WindowDays) * 24 * time.Hour
	return date.Add(-tol), date.Add(tol)
}

// IsDuplicate reports whether the candidate matches any transaction in the
// existing window.
func (m *Matcher) IsDuplicate(c models.Candidate, existing []models.Transaction) bool {
	for _, tx := range existing {
		if m.matches(c, tx) {
			return true
		}
	}
	return false
}

// MatchesCandidate reports whether two candidates in the same batch would
// duplicate each other. Within-batch candidates are compared before
// persisting so two near-identical messages in one batch cannot both pass
// the window check.
func (m *Matcher) MatchesCandidate(a, b models.Candidate) bool {
	if a.ReferenceID != "" && b.ReferenceID != "" {
		return a.ReferenceID == b.ReferenceID
	}
	if a.AmountMinor != b.AmountMinor || !a.Date.Equal(b.Date) || a.Mode != b.Mode {
		return false
	}
	return Similarity(a.Merchant, b.Merchant) >= m.SimilarityThreshold
}

func (m *Matcher) matches(c models.Candidate, tx models.Transaction) bool {
	// Rule 1: reference id equality when both present
	if c.ReferenceID != "" && tx.ReferenceID != "" {
		return c.ReferenceID == tx.ReferenceID
	}

	// Rule 2: amount + date + mode + merchant similarity
	if c.AmountMinor != tx.AmountMinor {
		return false
	}
	if !c.Date.Equal(tx.Date) {
		return false
	}
	if c.Mode != tx.Mode {
		return false
	}
	return Similarity(c.Merchant, tx.Merchant) >= m.SimilarityThreshold
}

// Similarity is a normalized edit-distance similarity in [0, 1]. Empty
// strings on both sides count as identical (1); one empty side counts as
// entirely dissimilar (0).
func Similarity(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}
