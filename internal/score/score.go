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

// Package score assigns a confidence score, a spend category, and a review
// flag to a candidate. Scoring is deterministic from extraction
// completeness: full credit when amount, date, reference id, and account
// mask are all present, with a weighted deduction per missing field.
package score

import (
	"github.com/finflow/mailsync/internal/models"
)

// Weights holds the tunable deductions and the review threshold. These are
// configuration, not constants — the defaults mirror the review surface's
// 0.7 high/low-confidence split.
type Weights struct {
	ReviewCutoff       float64
	MissingReference   float64
	MissingAccountMask float64
	MissingMerchant    float64
	DefaultedDate      float64
}

// DefaultWeights returns the starting configuration.
func DefaultWeights() Weights {
	return Weights{
		ReviewCutoff:       0.70,
		MissingReference:   0.25,
		MissingAccountMask: 0.10,
		MissingMerchant:    0.15,
		DefaultedDate:      0.05,
	}
}

// Result is the scoring outcome for one candidate.
type Result struct {
	Confidence   float64
	Category     string
	NeedsReview  bool
	ReviewReason *string // names the weakest signal when review is needed
}

// Scorer computes confidence and category for candidates.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weight table.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score evaluates a candidate. needs_review is true iff confidence is
// strictly below the cutoff; a score of exactly the cutoff does not need
// review.
func (s *Scorer) Score(c models.Candidate) Result {
	confidence := 1.0

	// Track the single heaviest deduction so review_reason names the
	// weakest signal.
	worstWeight := 0.0
	worstReason := ""

	deduct := func(weight float64, reason string) {
		confidence -= weight
		if weight > worstWeight {
			worstWeight = weight
			worstReason = reason
		}
	}

	if c.ReferenceID == "" {
		deduct(s.weights.MissingReference, "missing reference id")
	}
	if c.AccountMask == "" {
		deduct(s.weights.MissingAccountMask, "missing account mask")
	}
	if c.Merchant == "" {
		deduct(s.weights.MissingMerchant, "ambiguous merchant")
	}
	if c.DateDefaulted {
		deduct(s.weights.DefaultedDate, "date taken from message receipt")
	}

	if confidence < 0 {
		confidence = 0
	}

	res := Result{
		Confidence: confidence,
		Category:   Categorize(c),
	}

	if confidence < s.weights.ReviewCutoff {
		res.NeedsReview = true
		reason := worstReason
		res.ReviewReason = &reason
	}

	return res
}
