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

package normalize

import (
	"reflect"
	"testing"
	"time"

	"github.com/finflow/mailsync/internal/models"
)

// TestApply_Canonicalizes verifies field-level canonicalization.
func TestApply_Canonicalizes(t *testing.T) {
	c := models.Candidate{
		AmountMinor: 49900,
		Date:        time.Date(2025, 1, 10, 14, 32, 9, 0, time.FixedZone("IST", 5*3600+1800)),
		Merchant:    "  SWIGGY  instamart ",
		Mode:        models.PaymentMode("upi-lite"),
		ReferenceID: " ref123abc ",
		AccountMask: "xx1234",
		Platform:    " HDFC ",
	}

	got := Apply(c)

	if got.Invalid {
		t.Fatalf("unexpected invalid: %s", got.InvalidReason)
	}
	if got.Merchant != "Swiggy Instamart" {
		t.Errorf("merchant = %q, want Swiggy Instamart", got.Merchant)
	}
	if got.Mode != models.ModeOther {
		t.Errorf("mode = %q, want Other", got.Mode)
	}
	if got.ReferenceID != "REF123ABC" {
		t.Errorf("reference = %q, want REF123ABC", got.ReferenceID)
	}
	if got.AccountMask != "XX1234" {
		t.Errorf("mask = %q, want XX1234", got.AccountMask)
	}
	if got.Platform != "hdfc" {
		t.Errorf("platform = %q, want hdfc", got.Platform)
	}
	if h, m, s := got.Date.Clock(); h+m+s != 0 {
		t.Errorf("date %v not truncated to a calendar day", got.Date)
	}
	if got.Date.Location() != time.UTC {
		t.Errorf("date location = %v, want UTC", got.Date.Location())
	}
}

// TestApply_Idempotent verifies Apply(Apply(c)) == Apply(c).
func TestApply_Idempotent(t *testing.T) {
	c := models.Candidate{
		AmountMinor: 12550,
		Date:        time.Date(2025, 3, 7, 23, 59, 59, 0, time.UTC),
		Merchant:    "cafe BLUE & co",
		Mode:        models.ModeUPI,
		ReferenceID: "abc12345",
		Platform:    "GPay",
	}

	once := Apply(c)
	twice := Apply(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Apply is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

// TestApply_NonPositiveAmount verifies invalid flagging instead of errors.
func TestApply_NonPositiveAmount(t *testing.T) {
	for _, amount := range []int64{0, -500} {
		got := Apply(models.Candidate{AmountMinor: amount})
		if !got.Invalid {
			t.Errorf("amount %d: expected Invalid to be set", amount)
		}
		if got.InvalidReason == "" {
			t.Errorf("amount %d: expected a reason", amount)
		}
	}
}

// TestApply_KeepsValidModes verifies the closed mode enumeration passes
// through untouched.
func TestApply_KeepsValidModes(t *testing.T) {
	for _, mode := range []models.PaymentMode{models.ModeUPI, models.ModeCard, models.ModeBankTransfer, models.ModeOther} {
		got := Apply(models.Candidate{AmountMinor: 100, Mode: mode})
		if got.Mode != mode {
			t.Errorf("mode %q came back as %q", mode, got.Mode)
		}
	}
}

// TestTitleCase verifies word-wise title casing.
func TestTitleCase(t *testing.T) {
	cases := []struct{ in, want string }{
		{"SWIGGY", "Swiggy"},
		{"cafe blue", "Cafe Blue"},
		{"  spaced   out  ", "Spaced Out"},
		{"über eats", "Über Eats"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := TitleCase(tc.in); got != tc.want {
			t.Errorf("TitleCase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
