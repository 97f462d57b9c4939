package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/status"
)

type stubQueue struct {
	kind    domain.JobKind
	payload json.RawMessage
	err     error
}

func (s *stubQueue) Enqueue(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (string, error) {
	s.kind = kind
	s.payload = payload
	if s.err != nil {
		return "", s.err
	}
	return "job-1", nil
}

type stubProjector struct {
	proj *status.Projection
	err  error
}

func (s *stubProjector) Status(ctx context.Context, jobID, locale string) (*status.Projection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.proj, nil
}

type stubArtifacts struct {
	data []byte
	art  *domain.Artifact
	err  error
}

func (s *stubArtifacts) Retrieve(ctx context.Context, ownerJobID string) ([]byte, *domain.Artifact, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.data, s.art, nil
}

func newTestApp(q *stubQueue, p *stubProjector, a *stubArtifacts) *App {
	return &App{
		Logger:        zerolog.New(io.Discard),
		Queue:         q,
		Projector:     p,
		Artifacts:     a,
		DefaultLocale: "en",
	}
}

func testRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/briefings", app.BriefingsGenerate)
	r.Post("/v1/exports", app.ExportsGenerate)
	r.Post("/v1/index/sync", app.IndexSync)
	r.Get("/v1/jobs/{job_id}/status", app.JobStatus)
	r.Get("/v1/jobs/{job_id}/artifact", app.JobArtifact)
	return r
}

func TestBriefingsGenerateAccepted(t *testing.T) {
	q := &stubQueue{}
	router := testRouter(newTestApp(q, &stubProjector{}, &stubArtifacts{}))

	body := strings.NewReader(`{"owner_id":"u-1","topic":"markets"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/briefings", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if q.kind != domain.JobKindBriefingAudio {
		t.Fatalf("kind = %s, want briefing_audio", q.kind)
	}

	var p domain.BriefingAudioPayload
	if err := json.Unmarshal(q.payload, &p); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if p.WindowDays != 7 {
		t.Fatalf("window_days = %d, want default 7", p.WindowDays)
	}
	if p.Locale != "en" {
		t.Fatalf("locale = %q, want default en", p.Locale)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if resp["job_id"] != "job-1" || resp["status"] != "queued" {
		t.Fatalf("response = %v", resp)
	}
}

func TestBriefingsGenerateInvalidPayload(t *testing.T) {
	q := &stubQueue{err: domain.ErrInvalidPayload}
	router := testRouter(newTestApp(q, &stubProjector{}, &stubArtifacts{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/briefings", strings.NewReader(`{"owner_id":"u-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExportsGenerateDefaultsFormat(t *testing.T) {
	q := &stubQueue{}
	router := testRouter(newTestApp(q, &stubProjector{}, &stubArtifacts{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/exports", strings.NewReader(`{"owner_id":"u-1","briefing_id":"b-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var p domain.DocumentExportPayload
	if err := json.Unmarshal(q.payload, &p); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if p.Format != "pdf" {
		t.Fatalf("format = %q, want default pdf", p.Format)
	}
}

func TestIndexSyncAccepted(t *testing.T) {
	q := &stubQueue{}
	router := testRouter(newTestApp(q, &stubProjector{}, &stubArtifacts{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/index/sync", strings.NewReader(`{"source":"feed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if q.kind != domain.JobKindSyncWindow {
		t.Fatalf("kind = %s, want sync_window", q.kind)
	}
	var p domain.SyncWindowPayload
	if err := json.Unmarshal(q.payload, &p); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if p.WindowDays != 1 {
		t.Fatalf("window_days = %d, want default 1", p.WindowDays)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	p := &stubProjector{err: domain.ErrNotFound}
	router := testRouter(newTestApp(&stubQueue{}, p, &stubArtifacts{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/missing/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestJobStatusBody(t *testing.T) {
	p := &stubProjector{proj: &status.Projection{
		JobID:       "job-1",
		Kind:        domain.JobKindBriefingAudio,
		Stage:       status.StageCompleted,
		Label:       "Completed",
		IsTerminal:  true,
		ArtifactURL: "/v1/jobs/job-1/artifact",
		UpdatedAt:   time.Now(),
	}}
	router := testRouter(newTestApp(&stubQueue{}, p, &stubArtifacts{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if body["stage"] != "completed" {
		t.Fatalf("stage = %v", body["stage"])
	}
	if body["is_terminal"] != true {
		t.Fatalf("is_terminal = %v", body["is_terminal"])
	}
	if body["artifact_url"] != "/v1/jobs/job-1/artifact" {
		t.Fatalf("artifact_url = %v", body["artifact_url"])
	}
	if _, present := body["reason"]; present {
		t.Fatal("reason must be omitted for successful jobs")
	}
}

func TestJobArtifactStreamsInline(t *testing.T) {
	a := &stubArtifacts{
		data: []byte("inline payload"),
		art:  &domain.Artifact{OwnerJobID: "job-1", StorageTier: domain.TierInline, ContentType: "audio/mpeg"},
	}
	router := testRouter(newTestApp(&stubQueue{}, &stubProjector{}, a))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1/artifact", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Body.String() != "inline payload" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestJobArtifactBucketRedirects(t *testing.T) {
	a := &stubArtifacts{
		art: &domain.Artifact{
			OwnerJobID:  "job-1",
			StorageTier: domain.TierBucket,
			Location:    "https://bucket.example.com/artifacts/job-1/payload.pdf",
		},
	}
	router := testRouter(newTestApp(&stubQueue{}, &stubProjector{}, a))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1/artifact", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != a.art.Location {
		t.Fatalf("location = %q", loc)
	}
}

func TestJobArtifactIncompleteConflict(t *testing.T) {
	a := &stubArtifacts{err: domain.ErrIncompleteArtifact}
	router := testRouter(newTestApp(&stubQueue{}, &stubProjector{}, a))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1/artifact", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestJobArtifactZipBundle(t *testing.T) {
	a := &stubArtifacts{
		data: []byte("%PDF-1.7 fake"),
		art: &domain.Artifact{
			OwnerJobID:  "job-1",
			StorageTier: domain.TierInline,
			ContentType: "application/pdf",
			SizeBytes:   13,
		},
	}
	router := testRouter(newTestApp(&stubQueue{}, &stubProjector{}, a))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1/artifact?format=zip", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q", ct)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("zip open: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["payload.pdf"] || !names["metadata.json"] {
		t.Fatalf("zip entries = %v, want payload.pdf and metadata.json", names)
	}
}

func TestEnqueueInternalError(t *testing.T) {
	q := &stubQueue{err: errors.New("db down")}
	router := testRouter(newTestApp(q, &stubProjector{}, &stubArtifacts{}))

	req := httptest.NewRequest(http.MethodPost, "/v1/index/sync", strings.NewReader(`{"source":"feed"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
