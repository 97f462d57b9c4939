package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/domain/jsoncfg"
	"server/internal/middleware"
	"server/pkg/zip"
)

type enqueueResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type briefingRequest struct {
	OwnerID    string `json:"owner_id"`
	Topic      string `json:"topic"`
	WindowDays int    `json:"window_days"`
	Voice      string `json:"voice"`
	Locale     string `json:"locale"`
}

// BriefingsGenerate enqueues a spoken-audio briefing job.
func (a *App) BriefingsGenerate(w http.ResponseWriter, r *http.Request) {
	var req briefingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.WindowDays <= 0 {
		req.WindowDays = 7
	}
	if req.Locale == "" {
		req.Locale = middleware.LocaleFromContext(r.Context(), a.DefaultLocale)
	}
	if req.OwnerID == "" {
		req.OwnerID = middleware.UserIDFromContext(r.Context())
	}
	a.enqueue(w, r, domain.JobKindBriefingAudio, jsoncfg.MustMarshal(domain.BriefingAudioPayload{
		OwnerID:    req.OwnerID,
		Topic:      req.Topic,
		WindowDays: req.WindowDays,
		Voice:      req.Voice,
		Locale:     req.Locale,
	}))
}

type exportRequest struct {
	OwnerID    string `json:"owner_id"`
	BriefingID string `json:"briefing_id"`
	Format     string `json:"format"`
}

// ExportsGenerate enqueues a multi-slide document export job.
func (a *App) ExportsGenerate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Format == "" {
		req.Format = "pdf"
	}
	if req.OwnerID == "" {
		req.OwnerID = middleware.UserIDFromContext(r.Context())
	}
	a.enqueue(w, r, domain.JobKindDocumentExport, jsoncfg.MustMarshal(domain.DocumentExportPayload{
		OwnerID:    req.OwnerID,
		BriefingID: req.BriefingID,
		Format:     req.Format,
	}))
}

type indexSyncRequest struct {
	Source     string `json:"source"`
	WindowDays int    `json:"window_days"`
}

// IndexSync enqueues a sync_window job; the worker fans the window out into
// index batches.
func (a *App) IndexSync(w http.ResponseWriter, r *http.Request) {
	var req indexSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.WindowDays <= 0 {
		req.WindowDays = 1
	}
	a.enqueue(w, r, domain.JobKindSyncWindow, jsoncfg.MustMarshal(domain.SyncWindowPayload{
		Source:     req.Source,
		WindowDays: req.WindowDays,
	}))
}

func (a *App) enqueue(w http.ResponseWriter, r *http.Request, kind domain.JobKind, payload json.RawMessage) {
	jobID, err := a.Queue.Enqueue(r.Context(), kind, payload)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) || errors.Is(err, domain.ErrUnknownJobKind) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.Logger.Error().Err(err).Str("kind", string(kind)).Msg("handlers: enqueue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}
	a.json(w, http.StatusAccepted, enqueueResponse{JobID: jobID, Status: string(domain.JobStatusQueued)})
}

// JobStatus projects a job's coarse stage for polling callers.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	locale := middleware.LocaleFromContext(r.Context(), a.DefaultLocale)
	proj, err := a.Projector.Status(r.Context(), jobID, locale)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: status projection failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job status")
		return
	}

	body := map[string]any{
		"job_id":      proj.JobID,
		"kind":        proj.Kind,
		"stage":       proj.Stage,
		"label":       proj.Label,
		"is_terminal": proj.IsTerminal,
		"updated_at":  proj.UpdatedAt,
	}
	if proj.ArtifactURL != "" {
		body["artifact_url"] = proj.ArtifactURL
	}
	if proj.Reason != "" {
		body["reason"] = proj.Reason
	}
	a.json(w, http.StatusOK, body)
}

// JobArtifact serves the stored payload for a completed job. Bucket-tier
// artifacts redirect to their object URL; the other tiers stream directly.
func (a *App) JobArtifact(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	data, art, err := a.Artifacts.Retrieve(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "artifact not found")
			return
		}
		if errors.Is(err, domain.ErrIncompleteArtifact) {
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: artifact reassembly failed")
			a.error(w, http.StatusConflict, "incomplete", "artifact is not fully stored")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: artifact retrieval failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load artifact")
		return
	}

	if art.StorageTier == domain.TierBucket {
		http.Redirect(w, r, art.Location, http.StatusFound)
		return
	}

	if r.URL.Query().Get("format") == "zip" {
		meta := jsoncfg.MustMarshal(map[string]any{
			"job_id":       art.OwnerJobID,
			"size_bytes":   art.SizeBytes,
			"content_type": art.ContentType,
			"created_at":   art.CreatedAt,
		})
		bundle := zip.ArchiveAssets([]zip.Asset{
			{Filename: "payload" + extensionFor(art.ContentType), MIME: art.ContentType, Data: data},
			{Filename: "metadata.json", MIME: "application/json", Data: meta},
		})
		w.Header().Set("Content-Type", "application/zip")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bundle)
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "application/pdf":
		return ".pdf"
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return ".pptx"
	default:
		return ".bin"
	}
}
