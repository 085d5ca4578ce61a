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

// Package extract parses a raw notification message into a candidate
// transaction. Extraction is best-effort: an unparsable message is dropped
// from the run's candidate set, never an error.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/finflow/mailsync/internal/models"
)

// Permissive money pattern covering the variants observed in bank/UPI/card
// alerts: optional currency marker, thousands separators, optional paise.
var (
	amountRe = regexp.MustCompile(`(?i)(?:₹|Rs\.?|INR)\s*([\d,]+(?:\.\d{1,2})?)`)

	// Reference ids: "UPI Ref No 123...", "UTR: AXIS123", "Ref# 998"
	referenceRe = regexp.MustCompile(`(?i)(?:UPI\s+Ref(?:erence)?(?:\s+No\.?)?|UTR(?:\s+No\.?)?|Ref(?:erence)?(?:\s+(?:No\.?|ID))?|Txn\s+ID)\s*[:#.\-]?\s*([A-Za-z0-9]{5,22})`)

	// Account or card masks: "A/c XX1234", "card ending 4242", "a/c *8821"
	maskRe = regexp.MustCompile(`(?i)(?:a/c|acct|account|card)(?:\s+(?:no\.?|number|ending(?:\s+in)?))?\s*[:#]?\s*(?:[Xx*]+)?(\d{4})\b`)

	// Body dates: "10-01-2025", "10/01/25", "10-Jan-25", "10 Jan 2025"
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})[-/](\d{1,2})[-/](\d{2,4})\b`)
	namedDateRe   = regexp.MustCompile(`(?i)\b(\d{1,2})[-/ ]([A-Za-z]{3})[-/ ](\d{2,4})\b`)

	// Merchant: "to Merchant Name on", "at Merchant Name.", "to VPA x@bank"
	merchantToRe  = regexp.MustCompile(`(?i)\b(?:to|at)\s+(?:VPA\s+)?([A-Za-z0-9][A-Za-z0-9 .&'@_-]{1,48}?)(?:\s+(?:on|via|using|ref|from)\b|[.,\n]|$)`)
	merchantVPARe = regexp.MustCompile(`(?i)\bVPA\s+([a-z0-9._-]+)@[a-z]+\b`)
)

var debitKeywords = []string{"debited", "spent", "paid", "sent", "purchase", "withdrawn", "payment of"}

var creditKeywords = []string{"credited", "received", "refund", "deposited", "cashback"}

// platformDomains maps sender address fragments to (platform, channel).
var platformDomains = []struct {
	fragment string
	platform string
	channel  string
}{
	{"hdfcbank", "hdfc", "bank"},
	{"icicibank", "icici", "bank"},
	{"axisbank", "axis", "bank"},
	{"sbi", "sbi", "bank"},
	{"kotak", "kotak", "bank"},
	{"paytm", "paytm", "app"},
	{"phonepe", "phonepe", "app"},
	{"gpay", "gpay", "app"},
	{"google", "gpay", "app"},
	{"amazonpay", "amazonpay", "app"},
	{"visa", "visa", "card"},
	{"mastercard", "mastercard", "card"},
	{"amex", "amex", "card"},
	{"americanexpress", "amex", "card"},
}

var upiKeywords = []string{"upi", "vpa"}

var cardKeywords = []string{"credit card", "debit card", "card ending", "card no", "pos ", "card xx"}

var bankKeywords = []string{"neft", "imps", "rtgs", "a/c", "acct", "account", "bank transfer"}

var monthAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Extract parses a raw message into a candidate transaction. The second
// return value is false when the message is not a recognisable money alert
// (no amount, no direction); such messages count as scanned but not found.
func Extract(msg models.RawMessage) (models.Candidate, bool) {
	text := msg.Subject + "\n" + msg.Body
	lower := strings.ToLower(text)

	amountMinor, ok := extractAmount(text)
	if !ok {
		return models.Candidate{}, false
	}

	direction, ok := extractDirection(lower)
	if !ok {
		return models.Candidate{}, false
	}

	platform, channel := guessPlatform(msg.Sender, lower)

	cand := models.Candidate{
		MessageID:   msg.ID,
		Subject:     msg.Subject,
		Platform:    platform,
		Channel:     channel,
		AmountMinor: amountMinor,
		Direction:   direction,
		Mode:        inferMode(channel, lower),
		Merchant:    extractMerchant(text),
		ReferenceID: extractReference(text),
		AccountMask: extractMask(text),
	}

	if date, ok := extractDate(msg.Body); ok {
		cand.Date = date
	} else {
		// Best-guess fallback: the alert usually arrives within minutes of
		// the transaction.
		cand.Date = msg.ReceivedAt
		cand.DateDefaulted = true
	}

	return cand, true
}

// extractAmount finds the first currency amount and converts it to integer
// minor units.
func extractAmount(text string) (int64, bool) {
	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return ParseAmountMinor(m[1])
}

// ParseAmountMinor converts a decimal money string ("1,234.5") to integer
// minor units (123450).
func ParseAmountMinor(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		return 0, false
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, false
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, false
	}
	return units*100 + minor, true
}

func extractDirection(lower string) (models.Direction, bool) {
	for _, kw := range debitKeywords {
		if strings.Contains(lower, kw) {
			return models.Debit, true
		}
	}
	for _, kw := range creditKeywords {
		if strings.Contains(lower, kw) {
			return models.Credit, true
		}
	}
	return "", false
}

// guessPlatform identifies the source platform and channel hint from the
// sender address first, then from body keywords.
func guessPlatform(sender, lower string) (platform, channel string) {
	senderLower := strings.ToLower(sender)
	for _, p := range platformDomains {
		if strings.Contains(senderLower, p.fragment) {
			return p.platform, p.channel
		}
	}
	for _, p := range platformDomains {
		if strings.Contains(lower, p.fragment) {
			return p.platform, p.channel
		}
	}
	return "unknown", "bank"
}

// inferMode derives the payment mode from channel and body keywords.
func inferMode(channel, lower string) models.PaymentMode {
	for _, kw := range upiKeywords {
		if strings.Contains(lower, kw) {
			return models.ModeUPI
		}
	}
	for _, kw := range cardKeywords {
		if strings.Contains(lower, kw) {
			return models.ModeCard
		}
	}
	if channel == "card" {
		return models.ModeCard
	}
	for _, kw := range bankKeywords {
		if strings.Contains(lower, kw) {
			return models.ModeBankTransfer
		}
	}
	if channel == "bank" {
		return models.ModeBankTransfer
	}
	return models.ModeOther
}

func extractReference(text string) string {
	m := referenceRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func extractMask(text string) string {
	m := maskRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return "XX" + m[1]
}

func extractMerchant(text string) string {
	if m := merchantVPARe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := merchantToRe.FindStringSubmatch(text); m != nil {
		merchant := strings.TrimSpace(m[1])
		// Normalize double spaces
		return strings.Join(strings.Fields(merchant), " ")
	}
	return ""
}

// extractDate finds a transaction date in the body. Supports dd-mm-yyyy and
// dd-Mon-yy shapes; returns false when no usable date is present.
func extractDate(body string) (time.Time, bool) {
	if m := namedDateRe.FindStringSubmatch(body); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := monthAbbrev[strings.ToLower(m[2])]
		year := expandYear(m[3])
		if ok && day >= 1 && day <= 31 {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
		}
	}
	if m := numericDateRe.FindStringSubmatch(body); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := expandYear(m[3])
		if day >= 1 && day <= 31 && month >= 1 && month <= 12 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func expandYear(s string) int {
	y, _ := strconv.Atoi(s)
	if y < 100 {
		y += 2000
	}
	return y
}
