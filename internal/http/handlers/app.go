package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/status"
)

// JobEnqueuer enqueues a validated job and returns its id.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (string, error)
}

// StatusProjector serves the caller-facing job view.
type StatusProjector interface {
	Status(ctx context.Context, jobID, locale string) (*status.Projection, error)
}

// ArtifactReader retrieves stored artifact bytes and metadata.
type ArtifactReader interface {
	Retrieve(ctx context.Context, ownerJobID string) ([]byte, *domain.Artifact, error)
}

// App is the handler container; the router mounts its methods.
type App struct {
	Logger    infra.Logger
	Queue     JobEnqueuer
	Projector StatusProjector
	Artifacts ArtifactReader

	DefaultLocale string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
