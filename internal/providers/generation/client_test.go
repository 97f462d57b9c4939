package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"server/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client, srv
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base url")
	}
}

func TestStartJob(t *testing.T) {
	var gotAuth string
	var gotBody StartRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(JobState{ID: "prov-1", Status: StatusQueued})
	}))

	id, err := client.StartJob(context.Background(), StartRequest{
		Kind:  "briefing_audio",
		Input: map[string]any{"topic": "markets"},
	})
	if err != nil {
		t.Fatalf("StartJob error: %v", err)
	}
	if id != "prov-1" {
		t.Fatalf("id = %q, want prov-1", id)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody.Kind != "briefing_audio" {
		t.Fatalf("kind = %q", gotBody.Kind)
	}
}

func TestStartJobMissingIDIsPermanent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(JobState{Status: StatusQueued})
	}))

	_, err := client.StartJob(context.Background(), StartRequest{Kind: "briefing_audio"})
	if !domain.IsPermanent(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
}

func TestJobState(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/prov-1" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(JobState{ID: "prov-1", Status: StatusCompleted, ResultRef: "results/prov-1.mp3"})
	}))

	state, err := client.JobState(context.Background(), "prov-1")
	if err != nil {
		t.Fatalf("JobState error: %v", err)
	}
	if state.Status != StatusCompleted || state.ResultRef != "results/prov-1.mp3" {
		t.Fatalf("state = %+v", state)
	}
}

func TestFetchResultRelativeRef(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/results/prov-1.mp3" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3 bytes"))
	}))

	data, contentType, err := client.FetchResult(context.Background(), "results/prov-1.mp3")
	if err != nil {
		t.Fatalf("FetchResult error: %v", err)
	}
	if string(data) != "mp3 bytes" {
		t.Fatalf("data = %q", data)
	}
	if contentType != "audio/mpeg" {
		t.Fatalf("content type = %q", contentType)
	}
}

func TestIndexItems(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		var body struct {
			Source string      `json:"source"`
			Items  []IndexItem `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"indexed": len(body.Items)})
	}))

	indexed, err := client.IndexItems(context.Background(), "feed", []IndexItem{
		{ID: "s-1", Title: "a"},
		{ID: "s-2", Title: "b"},
	})
	if err != nil {
		t.Fatalf("IndexItems error: %v", err)
	}
	if indexed != 2 {
		t.Fatalf("indexed = %d, want 2", indexed)
	}
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		permanent bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"unauthorized", http.StatusUnauthorized, true},
		{"not found", http.StatusNotFound, true},
		{"server error", http.StatusInternalServerError, false},
		{"unavailable", http.StatusServiceUnavailable, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": tc.code, "message": "nope"}})
			}))

			_, err := client.JobState(context.Background(), "prov-1")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := domain.IsPermanent(err); got != tc.permanent {
				t.Fatalf("IsPermanent = %v, want %v", got, tc.permanent)
			}
		})
	}
}
