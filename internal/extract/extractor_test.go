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

package extract

import (
	"testing"
	"time"

	"github.com/finflow/mailsync/internal/models"
)

// TestExtract_FullAlert verifies extraction of a complete UPI debit alert.
func TestExtract_FullAlert(t *testing.T) {
	msg := models.RawMessage{
		ID:      "msg-1",
		Folder:  models.FolderInbox,
		Sender:  "alerts@hdfcbank.net",
		Subject: "Payment Alert",
		Body: "Rs. 499.00 debited from A/c XX1234 on 10-01-2025 to Swiggy via UPI.\n" +
			"UPI Ref No 500123456789.",
		ReceivedAt: time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC),
	}

	cand, ok := Extract(msg)
	if !ok {
		t.Fatal("expected message to be recognised as a money alert")
	}

	if cand.AmountMinor != 49900 {
		t.Errorf("amount = %d, want 49900", cand.AmountMinor)
	}
	if cand.Direction != models.Debit {
		t.Errorf("direction = %q, want debit", cand.Direction)
	}
	if cand.Mode != models.ModeUPI {
		t.Errorf("mode = %q, want UPI", cand.Mode)
	}
	if cand.Merchant != "Swiggy" {
		t.Errorf("merchant = %q, want Swiggy", cand.Merchant)
	}
	if cand.ReferenceID != "500123456789" {
		t.Errorf("reference = %q, want 500123456789", cand.ReferenceID)
	}
	if cand.AccountMask != "XX1234" {
		t.Errorf("account mask = %q, want XX1234", cand.AccountMask)
	}
	if cand.Platform != "hdfc" || cand.Channel != "bank" {
		t.Errorf("platform/channel = %q/%q, want hdfc/bank", cand.Platform, cand.Channel)
	}
	if cand.DateDefaulted {
		t.Error("date should come from the body, not the receipt timestamp")
	}
	want := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	if !cand.Date.Equal(want) {
		t.Errorf("date = %v, want %v", cand.Date, want)
	}
}

// TestExtract_CreditAlert verifies credit direction and amount parsing with
// thousands separators.
func TestExtract_CreditAlert(t *testing.T) {
	msg := models.RawMessage{
		ID:         "msg-2",
		Sender:     "noreply@icicibank.com",
		Subject:    "Credit Alert",
		Body:       "INR 2,500.00 credited to your account on 05-02-2025. Ref: ABCD1234XYZ",
		ReceivedAt: time.Date(2025, 2, 5, 12, 0, 0, 0, time.UTC),
	}

	cand, ok := Extract(msg)
	if !ok {
		t.Fatal("expected message to be recognised as a money alert")
	}
	if cand.Direction != models.Credit {
		t.Errorf("direction = %q, want credit", cand.Direction)
	}
	if cand.AmountMinor != 250000 {
		t.Errorf("amount = %d, want 250000", cand.AmountMinor)
	}
	if cand.ReferenceID != "ABCD1234XYZ" {
		t.Errorf("reference = %q, want ABCD1234XYZ", cand.ReferenceID)
	}
}

// TestExtract_NotAnAlert verifies that promotional and OTP messages are
// dropped, not errored.
func TestExtract_NotAnAlert(t *testing.T) {
	cases := []struct {
		name string
		msg  models.RawMessage
	}{
		{
			name: "otp",
			msg:  models.RawMessage{ID: "m1", Subject: "Your OTP", Body: "Your OTP is 123456. Do not share it."},
		},
		{
			name: "promo without direction",
			msg:  models.RawMessage{ID: "m2", Subject: "Mega sale!", Body: "Everything under Rs. 999 this weekend."},
		},
		{
			name: "no amount",
			msg:  models.RawMessage{ID: "m3", Subject: "Statement ready", Body: "Your card statement has been generated."},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := Extract(tc.msg); ok {
				t.Error("expected message to be rejected")
			}
		})
	}
}

// TestExtract_DateFallback verifies that a missing body date falls back to
// the received timestamp with the defaulted flag set.
func TestExtract_DateFallback(t *testing.T) {
	received := time.Date(2025, 3, 1, 18, 45, 0, 0, time.UTC)
	msg := models.RawMessage{
		ID:         "msg-3",
		Sender:     "alerts@axisbank.com",
		Subject:    "Debit alert",
		Body:       "Rs. 150 spent at Cafe Blue using card ending 4242",
		ReceivedAt: received,
	}

	cand, ok := Extract(msg)
	if !ok {
		t.Fatal("expected message to be recognised as a money alert")
	}
	if !cand.DateDefaulted {
		t.Error("expected DateDefaulted to be set")
	}
	if !cand.Date.Equal(received) {
		t.Errorf("date = %v, want received timestamp %v", cand.Date, received)
	}
	if cand.Mode != models.ModeCard {
		t.Errorf("mode = %q, want Card", cand.Mode)
	}
}

// TestExtract_NamedDate verifies dd-Mon-yy body dates.
func TestExtract_NamedDate(t *testing.T) {
	msg := models.RawMessage{
		ID:         "msg-4",
		Sender:     "alerts@kotak.com",
		Subject:    "Transaction alert",
		Body:       "Rs. 75.50 debited on 03-Jan-25 to Blinkit via UPI",
		ReceivedAt: time.Date(2025, 1, 3, 8, 0, 0, 0, time.UTC),
	}

	cand, ok := Extract(msg)
	if !ok {
		t.Fatal("expected message to be recognised as a money alert")
	}
	want := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	if !cand.Date.Equal(want) {
		t.Errorf("date = %v, want %v", cand.Date, want)
	}
	if cand.DateDefaulted {
		t.Error("body carried a date, fallback should not trigger")
	}
}

// TestParseAmountMinor verifies minor-unit conversion across formats.
func TestParseAmountMinor(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"499", 49900, true},
		{"499.00", 49900, true},
		{"1,234.5", 123450, true},
		{"0.75", 75, true},
		{"12.345", 0, false},
		{"abc", 0, false},
	}

	for _, tc := range cases {
		got, ok := ParseAmountMinor(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseAmountMinor(%q) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
