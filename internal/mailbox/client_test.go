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

package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/finflow/mailsync/internal/models"
)

// TestClient_ListMessages_Paging verifies that the client follows next_link
// across pages and collects every message.
func TestClient_ListMessages_Paging(t *testing.T) {
	page := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch page {
		case 0:
			if got := r.URL.Query().Get("received_after"); got == "" {
				t.Error("first page request missing received_after")
			}
			data, _ := json.Marshal(map[string]interface{}{
				"value": []map[string]string{
					{"id": "msg-1", "sender": "a@bank.com", "subject": "s1", "body": "b1", "received_at": "2025-01-10T09:00:00Z"},
					{"id": "msg-2", "sender": "a@bank.com", "subject": "s2", "body": "b2", "received_at": "2025-01-10T10:00:00Z"},
				},
				"next_link": "http://" + r.Host + "/page2",
			})
			w.Write(data)
			page++
		case 1:
			data, _ := json.Marshal(map[string]interface{}{
				"value": []map[string]string{
					{"id": "msg-3", "sender": "a@bank.com", "subject": "s3", "body": "b3", "received_at": "2025-01-10T11:00:00Z"},
				},
			})
			w.Write(data)
			page++
		}
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, time.Millisecond)

	msgs, err := c.ListMessages(context.Background(), Query{
		AccountID: "acct-1",
		Folders:   []models.Folder{models.FolderInbox},
		Since:     time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	if msgs[0].ID != "msg-1" || msgs[2].ID != "msg-3" {
		t.Errorf("unexpected message order: %v, %v", msgs[0].ID, msgs[2].ID)
	}
	if msgs[0].Folder != models.FolderInbox {
		t.Errorf("folder = %q, want inbox", msgs[0].Folder)
	}
	if want := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC); !msgs[0].ReceivedAt.Equal(want) {
		t.Errorf("received = %v, want %v", msgs[0].ReceivedAt, want)
	}
}

// TestClient_ListMessages_MultiFolder verifies that every enabled folder is
// listed.
func TestClient_ListMessages_MultiFolder(t *testing.T) {
	var folders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		folders = append(folders, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value": []}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, time.Millisecond)

	_, err := c.ListMessages(context.Background(), Query{
		AccountID: "acct-1",
		Folders:   []models.Folder{models.FolderInbox, models.FolderUpdates},
		Since:     time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(folders) != 2 {
		t.Fatalf("requests = %d, want 2", len(folders))
	}
}

// TestClient_ListMessages_ProviderError verifies that a non-200 response
// surfaces as a fetch failure.
func TestClient_ListMessages_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, time.Millisecond)

	_, err := c.ListMessages(context.Background(), Query{
		AccountID: "acct-1",
		Folders:   []models.Folder{models.FolderInbox},
		Since:     time.Now(),
	})
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("error = %v, want ErrFetch", err)
	}
}

// TestClient_SkipsUnparsableTimestamps verifies that a message with a broken
// timestamp is skipped, not fatal.
func TestClient_SkipsUnparsableTimestamps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		data, _ := json.Marshal(map[string]interface{}{
			"value": []map[string]string{
				{"id": "bad", "received_at": "not-a-time"},
				{"id": "good", "received_at": "2025-01-10T09:00:00Z"},
			},
		})
		w.Write(data)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, time.Millisecond)

	msgs, err := c.ListMessages(context.Background(), Query{
		AccountID: "acct-1",
		Folders:   []models.Folder{models.FolderInbox},
		Since:     time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "good" {
		t.Errorf("messages = %+v, want only the parsable one", msgs)
	}
}
