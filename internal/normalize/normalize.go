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

// Package normalize canonicalizes extracted candidate fields. Apply is a
// pure, total, idempotent function: Apply(Apply(c)) == Apply(c).
package normalize

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/finflow/mailsync/internal/models"
)

// DateLayout is the fixed calendar format for transaction dates.
const DateLayout = "2006-01-02"

// Apply canonicalizes a candidate: amount validity, calendar date, merchant
// casing, payment mode enum. It never errors; unusable candidates come back
// with Invalid set.
func Apply(c models.Candidate) models.Candidate {
	if c.AmountMinor <= 0 {
		c.Invalid = true
		c.InvalidReason = "non-positive amount"
	}

	c.Date = truncateToDay(c.Date)
	c.Merchant = TitleCase(c.Merchant)
	c.Mode = canonicalMode(c.Mode)
	c.ReferenceID = strings.ToUpper(strings.TrimSpace(c.ReferenceID))
	c.AccountMask = strings.ToUpper(strings.TrimSpace(c.AccountMask))
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))

	return c
}

// truncateToDay drops the time-of-day component, keeping UTC calendar dates.
func truncateToDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// TitleCase trims and title-cases a merchant name word by word.
func TitleCase(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, w := range words {
		lower := strings.ToLower(w)
		// First rune, not first byte: merchants are not always ASCII.
		r, size := utf8.DecodeRuneInString(lower)
		words[i] = string(unicode.ToUpper(r)) + lower[size:]
	}
	return strings.Join(words, " ")
}

// canonicalMode maps any mode value onto the closed enumeration.
func canonicalMode(m models.PaymentMode) models.PaymentMode {
	switch m {
	case models.ModeUPI, models.ModeCard, models.ModeBankTransfer:
		return m
	default:
		return models.ModeOther
	}
}
