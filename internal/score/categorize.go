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
	"strings"

	"github.com/finflow/mailsync/internal/models"
)

// CategoryOther is the fallback for unknown merchants. An unknown merchant
// does not by itself force review.
const CategoryOther = "Other"

// categoryRules is a best-effort keyword lookup over merchant name and
// subject. First match wins.
var categoryRules = []struct {
	keyword  string
	category string
}{
	{"swiggy", "Food & Dining"},
	{"zomato", "Food & Dining"},
	{"dominos", "Food & Dining"},
	{"mcdonald", "Food & Dining"},
	{"starbucks", "Food & Dining"},
	{"uber", "Transport"},
	{"ola", "Transport"},
	{"rapido", "Transport"},
	{"irctc", "Transport"},
	{"redbus", "Transport"},
	{"amazon", "Shopping"},
	{"flipkart", "Shopping"},
	{"myntra", "Shopping"},
	{"ajio", "Shopping"},
	{"netflix", "Entertainment"},
	{"spotify", "Entertainment"},
	{"hotstar", "Entertainment"},
	{"bookmyshow", "Entertainment"},
	{"electricity", "Utilities"},
	{"broadband", "Utilities"},
	{"recharge", "Utilities"},
	{"jio", "Utilities"},
	{"airtel", "Utilities"},
	{"bescom", "Utilities"},
	{"pharmacy", "Health"},
	{"apollo", "Health"},
	{"practo", "Health"},
	{"rent", "Housing"},
	{"grocery", "Groceries"},
	{"bigbasket", "Groceries"},
	{"blinkit", "Groceries"},
	{"zepto", "Groceries"},
	{"dmart", "Groceries"},
}

// Categorize assigns a spend category from merchant/subject keywords.
func Categorize(c models.Candidate) string {
	haystack := strings.ToLower(c.Merchant + " " + c.Subject)
	for _, rule := range categoryRules {
		if strings.Contains(haystack, rule.keyword) {
			return rule.category
		}
	}
	return CategoryOther
}
