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

package score

import (
	"math"
	"testing"
	"time"

	"github.com/finflow/mailsync/internal/models"
)

func fullCandidate() models.Candidate {
	return models.Candidate{
		MessageID:   "msg-1",
		Subject:     "Payment Alert",
		AmountMinor: 49900,
		Date:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Merchant:    "Swiggy",
		ReferenceID: "500123456789",
		AccountMask: "XX1234",
		Direction:   models.Debit,
		Mode:        models.ModeUPI,
	}
}

// TestScore_CompleteCandidate verifies full confidence when every signal is
// present.
func TestScore_CompleteCandidate(t *testing.T) {
	s := NewScorer(DefaultWeights())

	res := s.Score(fullCandidate())

	if res.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", res.Confidence)
	}
	if res.NeedsReview {
		t.Error("complete candidate should not need review")
	}
	if res.ReviewReason != nil {
		t.Errorf("unexpected review reason %q", *res.ReviewReason)
	}
	if res.Category != "Food & Dining" {
		t.Errorf("category = %q, want Food & Dining", res.Category)
	}
}

// TestScore_MissingReferenceAndMask verifies that losing both identity
// signals lands below the review cutoff.
func TestScore_MissingReferenceAndMask(t *testing.T) {
	s := NewScorer(DefaultWeights())

	c := fullCandidate()
	c.ReferenceID = ""
	c.AccountMask = ""

	res := s.Score(c)

	if math.Abs(res.Confidence-0.65) > 1e-9 {
		t.Errorf("confidence = %v, want 0.65", res.Confidence)
	}
	if !res.NeedsReview {
		t.Error("expected review below the cutoff")
	}
	if res.ReviewReason == nil || *res.ReviewReason != "missing reference id" {
		t.Errorf("review reason should name the heaviest missing signal, got %v", res.ReviewReason)
	}
}

// TestScore_CutoffIsExclusive verifies that a confidence of exactly the
// cutoff does not trigger review.
func TestScore_CutoffIsExclusive(t *testing.T) {
	s := NewScorer(Weights{
		ReviewCutoff:       0.70,
		MissingReference:   0.25,
		MissingAccountMask: 0.10,
		MissingMerchant:    0.15,
		DefaultedDate:      0.05,
	})

	// missing reference (0.25) + defaulted date (0.05) = exactly the cutoff
	c := fullCandidate()
	c.ReferenceID = ""
	c.DateDefaulted = true

	res := s.Score(c)

	if math.Abs(res.Confidence-0.70) > 1e-9 {
		t.Errorf("confidence = %v, want 0.70", res.Confidence)
	}
	if res.NeedsReview {
		t.Error("confidence equal to the cutoff must not need review")
	}
}

// TestScore_EverythingMissing verifies clamping and the weakest-signal
// reason when every optional field is absent.
func TestScore_EverythingMissing(t *testing.T) {
	s := NewScorer(DefaultWeights())

	c := models.Candidate{
		AmountMinor:   100,
		Date:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		DateDefaulted: true,
		Direction:     models.Debit,
		Mode:          models.ModeOther,
	}

	res := s.Score(c)

	if res.Confidence < 0 {
		t.Errorf("confidence = %v, must not go negative", res.Confidence)
	}
	if !res.NeedsReview {
		t.Error("expected review")
	}
	if res.ReviewReason == nil || *res.ReviewReason != "missing reference id" {
		t.Errorf("review reason = %v, want the heaviest deduction", res.ReviewReason)
	}
}

// TestCategorize verifies the keyword table and the fallback.
func TestCategorize(t *testing.T) {
	cases := []struct {
		merchant string
		subject  string
		want     string
	}{
		{"Swiggy", "", "Food & Dining"},
		{"Uber India", "", "Transport"},
		{"", "Your Amazon order", "Shopping"},
		{"Netflix", "", "Entertainment"},
		{"Bescom", "", "Utilities"},
		{"Blinkit", "", "Groceries"},
		{"Corner Store", "Payment alert", CategoryOther},
	}

	for _, tc := range cases {
		got := Categorize(models.Candidate{Merchant: tc.merchant, Subject: tc.subject})
		if got != tc.want {
			t.Errorf("Categorize(%q, %q) = %q, want %q", tc.merchant, tc.subject, got, tc.want)
		}
	}
}
