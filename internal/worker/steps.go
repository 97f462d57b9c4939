package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"server/internal/domain"
	"server/internal/providers/generation"
	"server/internal/sqlinline"
)

// errStaleJob signals that a concurrent processor already owns the row; the
// loser stops without side effects and without touching the job's status.
var errStaleJob = errors.New("job claimed elsewhere")

// runBriefingAudio: start provider audio job -> await -> fetch bytes ->
// store artifact. Each step re-derives the same side effect on replay.
func (w *Worker) runBriefingAudio(ctx context.Context, run *jobRun, p domain.BriefingAudioPayload) error {
	providerID, err := w.provider.StartJob(ctx, generation.StartRequest{
		Kind: string(domain.JobKindBriefingAudio),
		Input: map[string]any{
			"owner_id":    p.OwnerID,
			"topic":       p.Topic,
			"window_days": p.WindowDays,
			"voice":       p.Voice,
			"locale":      p.Locale,
		},
	})
	if err != nil {
		return fmt.Errorf("start briefing generation: %w", err)
	}
	if !run.markAwaitingExternal(ctx, providerID) {
		return errStaleJob
	}
	return w.awaitAndStore(ctx, run, providerID, "audio/mpeg")
}

// runDocumentExport mirrors the audio flow; exports are the kind whose
// provider routinely reports completion before the file reference exists.
func (w *Worker) runDocumentExport(ctx context.Context, run *jobRun, p domain.DocumentExportPayload) error {
	providerID, err := w.provider.StartJob(ctx, generation.StartRequest{
		Kind: string(domain.JobKindDocumentExport),
		Input: map[string]any{
			"owner_id":    p.OwnerID,
			"briefing_id": p.BriefingID,
			"format":      p.Format,
		},
	})
	if err != nil {
		return fmt.Errorf("start document export: %w", err)
	}
	if !run.markAwaitingExternal(ctx, providerID) {
		return errStaleJob
	}
	return w.awaitAndStore(ctx, run, providerID, contentTypeForFormat(p.Format))
}

// awaitAndStore hands off to the poller, fetches the finished result, and
// routes it through the tiered artifact store.
func (w *Worker) awaitAndStore(ctx context.Context, run *jobRun, providerID, fallbackContentType string) error {
	outcome, err := w.awaiter.Await(ctx, providerID)
	if outcome != nil && outcome.LastState != nil {
		if raw, marshalErr := json.Marshal(outcome.LastState); marshalErr == nil {
			run.lastProviderPayload = raw
		}
	}
	if err != nil {
		return fmt.Errorf("await provider job %s: %w", providerID, err)
	}

	data, contentType, err := w.provider.FetchResult(ctx, outcome.ResultRef)
	if err != nil {
		return fmt.Errorf("fetch result: %w", err)
	}
	if contentType == "" {
		contentType = fallbackContentType
	}
	if _, err := w.artifacts.Save(ctx, run.job.ID, data, contentType); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	return nil
}

// runIndexBatch loads its (offset, limit) slice of source items and submits
// them to the provider index in one synchronous call.
func (w *Worker) runIndexBatch(ctx context.Context, run *jobRun, p domain.IndexBatchPayload) error {
	rows, err := w.sql.Query(ctx, sqlinline.QSelectSourceBatch, p.Source, p.Limit, p.Offset)
	if err != nil {
		return fmt.Errorf("load source batch: %w", err)
	}
	defer rows.Close()

	var items []generation.IndexItem
	for rows.Next() {
		var item generation.IndexItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Body); err != nil {
			return fmt.Errorf("scan source item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read source batch: %w", err)
	}
	if len(items) == 0 {
		// The batch range was valid at dispatch time; source rows may since
		// have been rotated out. Nothing to index is a successful no-op.
		run.logger.Info().Int("offset", p.Offset).Int("limit", p.Limit).Msg("worker: empty index batch")
		return nil
	}

	indexed, err := w.provider.IndexItems(ctx, p.Source, items)
	if err != nil {
		return fmt.Errorf("index items: %w", err)
	}
	if _, err := w.sql.Exec(ctx, sqlinline.QRecordIndexedCount, run.job.ID, indexed); err != nil {
		return fmt.Errorf("record indexed count: %w", err)
	}
	run.logger.Info().Int("indexed", indexed).Msg("worker: batch indexed")
	return nil
}

// runSyncWindow counts the workset and fans it out through the Batch
// Dispatcher; every batch becomes a first-class job with its own status and
// retry semantics rather than an unobserved fire-and-forget call.
func (w *Worker) runSyncWindow(ctx context.Context, run *jobRun, p domain.SyncWindowPayload) error {
	row := w.sql.QueryRow(ctx, sqlinline.QCountSourceItems, p.Source, p.WindowDays)
	var total int
	if err := row.Scan(&total); err != nil {
		return fmt.Errorf("count window items: %w", err)
	}
	if total == 0 {
		run.logger.Info().Str("source", p.Source).Msg("worker: sync window empty, nothing to dispatch")
		return nil
	}

	result, err := w.dispatcher.Dispatch(ctx, p.Source, total, w.indexBatchSize)
	if err != nil {
		return fmt.Errorf("dispatch window: %w", err)
	}
	run.logger.Info().
		Int("total", total).
		Int("batches", result.Batches).
		Float64("cost_estimate", result.CostEstimate).
		Msg("worker: sync window dispatched")
	return nil
}

func contentTypeForFormat(format string) string {
	switch format {
	case "pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return "application/pdf"
	}
}
