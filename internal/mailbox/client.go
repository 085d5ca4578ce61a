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

// Package mailbox retrieves candidate notification messages from the
// external mail provider API. The core treats the provider as a black box:
// it may return zero, partial, or all matching messages, and any transport
// or auth failure is surfaced as a FetchError that fails the run.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/finflow/mailsync/internal/models"
)

// ErrFetch marks provider failures (unreachable, auth expired, bad status).
// Runs that hit it terminate with status failed.
var ErrFetch = errors.New("mail provider fetch failed")

// Query scopes a message listing to one owner's mailbox.
type Query struct {
	AccountID string
	Folders   []models.Folder
	Since     time.Time
}

// Client lists messages from the mail provider within a folder/date window.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageDelay  time.Duration
}

// NewClient creates a mail provider client. httpClient should carry the
// provider OAuth2 token source.
func NewClient(httpClient *http.Client, baseURL string, pageDelay time.Duration) *Client {
	if pageDelay == 0 {
		pageDelay = 500 * time.Millisecond
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		pageDelay:  pageDelay,
	}
}

// messagesResponse represents a page of the folder messages listing.
type messagesResponse struct {
	Value    []providerMessage `json:"value"`
	NextLink string            `json:"next_link"`
}

// providerMessage mirrors the provider's message representation.
type providerMessage struct {
	ID         string `json:"id"`
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	ReceivedAt string `json:"received_at"`
}

// ListMessages returns all messages received since the query's cutoff across
// the enabled folders, in the provider's listing order. The order is
// arbitrary but stable between identical calls.
func (c *Client) ListMessages(ctx context.Context, q Query) ([]models.RawMessage, error) {
	var out []models.RawMessage

	for _, folder := range q.Folders {
		msgs, err := c.listFolder(ctx, q.AccountID, folder, q.Since)
		if err != nil {
			return nil, fmt.Errorf("%w: folder %s: %v", ErrFetch, folder, err)
		}
		out = append(out, msgs...)
	}

	return out, nil
}

// listFolder pages through a single folder's messages.
func (c *Client) listFolder(ctx context.Context, accountID string, folder models.Folder, since time.Time) ([]models.RawMessage, error) {
	params := url.Values{}
	params.Set("received_after", since.UTC().Format(time.RFC3339))
	params.Set("body_format", "text")
	params.Set("page_size", "50")

	listURL := fmt.Sprintf("%s/accounts/%s/folders/%s/messages?%s",
		c.baseURL, url.PathEscape(accountID), folder, params.Encode())

	var out []models.RawMessage
	pageCount := 0

	for nextURL := listURL; nextURL != ""; {
		// Rate limit between pages
		if pageCount > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}

		page, err := c.fetchPage(ctx, nextURL)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", pageCount, err)
		}
		pageCount++

		for _, m := range page.Value {
			received, err := time.Parse(time.RFC3339, m.ReceivedAt)
			if err != nil {
				slog.Warn("message has unparsable received timestamp, skipping",
					"message_id", m.ID,
					"received_at", m.ReceivedAt,
				)
				continue
			}
			out = append(out, models.RawMessage{
				ID:         m.ID,
				Folder:     folder,
				Sender:     m.Sender,
				Subject:    m.Subject,
				Body:       m.Body,
				ReceivedAt: received,
			})
		}

		nextURL = page.NextLink
	}

	slog.Debug("folder listed",
		"account", accountID,
		"folder", folder,
		"messages", len(out),
		"pages", pageCount,
	)

	return out, nil
}

// fetchPage retrieves a single page of messages from the list endpoint.
func (c *Client) fetchPage(ctx context.Context, pageURL string) (*messagesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("messages list error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("messages list returned HTTP %d", resp.StatusCode)
	}

	var page messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}

	return &page, nil
}
