package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBucketStorePut(t *testing.T) {
	var gotPath, gotAuth, gotCT string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("method = %s, want PUT", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store, err := NewBucketStore(BucketOptions{
		BaseURL: srv.URL,
		Bucket:  "artifacts",
		Token:   "tok-9",
	})
	if err != nil {
		t.Fatalf("NewBucketStore error: %v", err)
	}

	url, err := store.Put(context.Background(), "artifacts/job-1/payload.pdf", []byte("pdf bytes"), "application/pdf")
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if gotPath != "/artifacts/artifacts/job-1/payload.pdf" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-9" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotCT != "application/pdf" {
		t.Fatalf("content type = %q", gotCT)
	}
	if string(gotBody) != "pdf bytes" {
		t.Fatalf("body = %q", gotBody)
	}
	if url != srv.URL+"/artifacts/artifacts/job-1/payload.pdf" {
		t.Fatalf("url = %q", url)
	}
}

func TestBucketStorePutFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	store, err := NewBucketStore(BucketOptions{BaseURL: srv.URL, Bucket: "artifacts"})
	if err != nil {
		t.Fatalf("NewBucketStore error: %v", err)
	}
	if _, err := store.Put(context.Background(), "k.bin", []byte("x"), ""); err == nil {
		t.Fatal("expected error for non-2xx upload")
	}
}

func TestNewBucketStoreValidation(t *testing.T) {
	if _, err := NewBucketStore(BucketOptions{Bucket: "artifacts"}); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := NewBucketStore(BucketOptions{BaseURL: "https://s.example.com"}); err == nil {
		t.Fatal("expected error for missing bucket name")
	}
}
