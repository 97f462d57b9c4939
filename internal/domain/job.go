package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobKind enumerates supported job categories. The set is closed: payloads
// are decoded against the schema for their kind and an unknown kind is a
// permanent failure, never silently processed.
type JobKind string

const (
	JobKindBriefingAudio  JobKind = "briefing_audio"
	JobKindDocumentExport JobKind = "document_export"
	JobKindIndexBatch     JobKind = "index_batch"
	JobKindSyncWindow     JobKind = "sync_window"
)

// JobStatus enumerates job lifecycle states. Transitions are forward-only
// with one exception: processing -> queued on a transient retry.
type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusProcessing       JobStatus = "processing"
	JobStatusAwaitingExternal JobStatus = "awaiting_external"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job encapsulates one durable unit of asynchronous work. Rows are never
// deleted; terminal jobs are retained for auditability and duplicate-delivery
// detection.
type Job struct {
	ID           string
	Kind         JobKind
	Status       JobStatus
	Payload      json.RawMessage
	AttemptCount int
	ExternalRef  string
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	TerminalAt   *time.Time
}

// BriefingAudioPayload requests a spoken-audio briefing.
type BriefingAudioPayload struct {
	OwnerID    string `json:"owner_id"`
	Topic      string `json:"topic"`
	WindowDays int    `json:"window_days"`
	Voice      string `json:"voice,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

func (p BriefingAudioPayload) validate() error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidPayload)
	}
	if p.WindowDays <= 0 {
		return fmt.Errorf("%w: window_days must be positive", ErrInvalidPayload)
	}
	return nil
}

// DocumentExportPayload requests a multi-slide document export of a briefing.
type DocumentExportPayload struct {
	OwnerID    string `json:"owner_id"`
	BriefingID string `json:"briefing_id"`
	Format     string `json:"format"`
}

func (p DocumentExportPayload) validate() error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.BriefingID) == "" {
		return fmt.Errorf("%w: briefing_id is required", ErrInvalidPayload)
	}
	switch p.Format {
	case "pdf", "pptx":
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidPayload, p.Format)
	}
	return nil
}

// IndexBatchPayload covers one batch of source items, [Offset, Offset+Limit).
type IndexBatchPayload struct {
	Source string `json:"source"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

func (p IndexBatchPayload) validate() error {
	if strings.TrimSpace(p.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidPayload)
	}
	if p.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", ErrInvalidPayload)
	}
	if p.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidPayload)
	}
	return nil
}

// SyncWindowPayload asks the pipeline to fan out index batches covering a
// source window.
type SyncWindowPayload struct {
	Source     string `json:"source"`
	WindowDays int    `json:"window_days"`
}

func (p SyncWindowPayload) validate() error {
	if strings.TrimSpace(p.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidPayload)
	}
	if p.WindowDays <= 0 {
		return fmt.Errorf("%w: window_days must be positive", ErrInvalidPayload)
	}
	return nil
}

// DecodePayload decodes and validates raw payload bytes against the schema
// for the given kind.
func DecodePayload(kind JobKind, raw json.RawMessage) (any, error) {
	switch kind {
	case JobKindBriefingAudio:
		var p BriefingAudioPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, p.validate()
	case JobKindDocumentExport:
		var p DocumentExportPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, p.validate()
	case JobKindIndexBatch:
		var p IndexBatchPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, p.validate()
	case JobKindSyncWindow:
		var p SyncWindowPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, p.validate()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobKind, kind)
	}
}

// RetryLimit returns the per-kind bound on transient retries.
func (k JobKind) RetryLimit() int {
	switch k {
	case JobKindIndexBatch:
		return 5
	case JobKindSyncWindow:
		return 2
	default:
		return 3
	}
}

func strictUnmarshal(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
