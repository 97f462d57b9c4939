package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// Stage is the coarse progress enumeration exposed to callers. External
// clients render these without knowing the internal transition graph.
type Stage string

const (
	StagePending    Stage = "pending"
	StagePreparing  Stage = "preparing"
	StageGenerating Stage = "generating"
	StageIndexing   Stage = "indexing"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Projection is the caller-facing view of a job.
type Projection struct {
	JobID       string
	Kind        domain.JobKind
	Stage       Stage
	Label       string
	IsTerminal  bool
	ArtifactURL string
	Reason      string
	UpdatedAt   time.Time
}

// ArtifactMeta is the slice of the artifact store the projector needs.
type ArtifactMeta interface {
	Metadata(ctx context.Context, ownerJobID string) (*domain.Artifact, error)
}

// Projector serves read-only job status. It never mutates.
type Projector struct {
	sql       infra.SQLExecutor
	artifacts ArtifactMeta
}

// NewProjector constructs a Projector.
func NewProjector(sql infra.SQLExecutor, artifacts ArtifactMeta) *Projector {
	return &Projector{sql: sql, artifacts: artifacts}
}

// Status projects the current state of jobID. The locale selects the casing
// rules for the human-readable label.
func (p *Projector) Status(ctx context.Context, jobID, locale string) (*Projection, error) {
	row := p.sql.QueryRow(ctx, sqlinline.QSelectJobStatus, jobID)
	var (
		kind, status, externalRef, lastError string
		attemptCount                         int
		createdAt, updatedAt                 time.Time
	)
	if err := row.Scan(&jobID, &kind, &status, &attemptCount, &externalRef, &lastError, &createdAt, &updatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	proj := &Projection{
		JobID:     jobID,
		Kind:      domain.JobKind(kind),
		Stage:     stageFor(domain.JobKind(kind), domain.JobStatus(status)),
		UpdatedAt: updatedAt,
	}
	proj.IsTerminal = domain.JobStatus(status).IsTerminal()
	proj.Label = labelFor(proj.Stage, locale)

	switch domain.JobStatus(status) {
	case domain.JobStatusCompleted:
		if art, err := p.artifacts.Metadata(ctx, jobID); err == nil {
			proj.ArtifactURL = artifactURL(art)
		}
	case domain.JobStatusFailed:
		proj.Reason = publicReason(lastError)
	}
	return proj, nil
}

// stageFor collapses internal status plus kind into the public enumeration.
func stageFor(kind domain.JobKind, status domain.JobStatus) Stage {
	switch status {
	case domain.JobStatusQueued:
		return StagePending
	case domain.JobStatusProcessing:
		if kind == domain.JobKindIndexBatch || kind == domain.JobKindSyncWindow {
			return StageIndexing
		}
		return StagePreparing
	case domain.JobStatusAwaitingExternal:
		return StageGenerating
	case domain.JobStatusCompleted:
		return StageCompleted
	default:
		return StageFailed
	}
}

// labelFor renders a display label for the stage using the locale's casing
// rules.
func labelFor(stage Stage, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return cases.Title(tag).String(strings.ReplaceAll(string(stage), "_", " "))
}

// publicReason maps the stored failure detail to a summary that does not echo
// provider payloads to untrusted callers.
func publicReason(lastError string) string {
	switch {
	case lastError == "":
		return "generation failed"
	case strings.Contains(lastError, domain.ErrPollTimeout.Error()):
		return "generation timed out"
	case strings.Contains(lastError, domain.ErrInvalidPayload.Error()),
		strings.Contains(lastError, domain.ErrUnknownJobKind.Error()):
		return "request was invalid"
	case strings.Contains(lastError, domain.ErrProviderFailure.Error()):
		return "generation provider reported a failure"
	case strings.Contains(lastError, domain.ErrArtifactPersistFailure.Error()):
		return "result could not be stored"
	default:
		return "generation failed"
	}
}

func artifactURL(art *domain.Artifact) string {
	if art == nil {
		return ""
	}
	if art.StorageTier == domain.TierBucket {
		return art.Location
	}
	return fmt.Sprintf("/v1/jobs/%s/artifact", art.OwnerJobID)
}
