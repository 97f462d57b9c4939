package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/poller"
	"server/internal/providers/generation"
	"server/internal/queue"
	"server/internal/sqlinline"
)

var errNoJobAvailable = errors.New("no job available")

// GenerationService is the slice of the provider client the worker needs.
type GenerationService interface {
	StartJob(ctx context.Context, req generation.StartRequest) (string, error)
	FetchResult(ctx context.Context, resultRef string) ([]byte, string, error)
	IndexItems(ctx context.Context, source string, items []generation.IndexItem) (int, error)
}

// Awaiter resolves an externally-owned generation job to a result reference.
type Awaiter interface {
	Await(ctx context.Context, providerID string) (*poller.Outcome, error)
}

// ArtifactStore persists job output.
type ArtifactStore interface {
	Save(ctx context.Context, ownerJobID string, data []byte, contentType string) (*domain.Artifact, error)
}

// BatchDispatcher fans a workset out into index batches.
type BatchDispatcher interface {
	Dispatch(ctx context.Context, source string, total, batchSize int) (*queue.DispatchResult, error)
}

// Worker consumes jobs from the durable queue and executes each kind's fixed
// step sequence. Every status transition is a conditional update on the
// expected prior status, so redelivered or concurrently claimed jobs are
// no-ops past the first winner.
type Worker struct {
	sql        infra.SQLExecutor
	logger     infra.Logger
	provider   GenerationService
	awaiter    Awaiter
	artifacts  ArtifactStore
	dispatcher BatchDispatcher

	concurrency    int
	claimInterval  time.Duration
	indexBatchSize int
	staleAfter     time.Duration
	sweepInterval  time.Duration
}

// Options wires a Worker.
type Options struct {
	SQL            infra.SQLExecutor
	Logger         infra.Logger
	Provider       GenerationService
	Awaiter        Awaiter
	Artifacts      ArtifactStore
	Dispatcher     BatchDispatcher
	Concurrency    int
	ClaimInterval  time.Duration
	IndexBatchSize int

	// StaleAfter must exceed the poll budget so a job legitimately waiting on
	// the provider is never reclaimed mid-poll.
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

// New constructs a Worker.
func New(opts Options) *Worker {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	claimInterval := opts.ClaimInterval
	if claimInterval <= 0 {
		claimInterval = 2 * time.Second
	}
	indexBatchSize := opts.IndexBatchSize
	if indexBatchSize <= 0 {
		indexBatchSize = 50
	}
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	sweepInterval := opts.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Worker{
		sql:            opts.SQL,
		logger:         opts.Logger,
		provider:       opts.Provider,
		awaiter:        opts.Awaiter,
		artifacts:      opts.Artifacts,
		dispatcher:     opts.Dispatcher,
		concurrency:    concurrency,
		claimInterval:  claimInterval,
		indexBatchSize: indexBatchSize,
		staleAfter:     staleAfter,
		sweepInterval:  sweepInterval,
	}
}

// claimedJob is the row handed to a claim loop.
type claimedJob struct {
	ID           string
	Kind         domain.JobKind
	Status       domain.JobStatus
	Payload      json.RawMessage
	AttemptCount int
	ExternalRef  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Run starts the claim loops and the stale-job sweep and blocks until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("worker: started")
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(loopID int) {
			defer wg.Done()
			w.runLoop(ctx, loopID)
		}(i + 1)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runSweep(ctx)
	}()
	wg.Wait()
	w.logger.Info().Msg("worker: stopped")
}

func (w *Worker) runLoop(ctx context.Context, loopID int) {
	ticker := time.NewTicker(w.claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Int("loop_id", loopID).Msg("worker: claim loop stopped")
			return
		case <-ticker.C:
		}

		// Drain everything claimable before going back to sleep.
		for {
			job, err := w.claim(ctx)
			if err != nil {
				if !errors.Is(err, errNoJobAvailable) {
					w.logger.Error().Err(err).Int("loop_id", loopID).Msg("worker: claim failed")
				}
				break
			}
			w.handle(ctx, job)
			if ctx.Err() != nil {
				break
			}
		}
	}
}

func (w *Worker) claim(ctx context.Context) (claimedJob, error) {
	row := w.sql.QueryRow(ctx, sqlinline.QClaimNextJob)
	var j claimedJob
	var kind, status string
	if err := row.Scan(&j.ID, &kind, &status, &j.Payload, &j.AttemptCount, &j.ExternalRef, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return claimedJob{}, errNoJobAvailable
		}
		return claimedJob{}, err
	}
	j.Kind = domain.JobKind(kind)
	j.Status = domain.JobStatus(status)
	j.Payload = append(json.RawMessage(nil), j.Payload...)
	return j, nil
}

const sweepBatchLimit = 100

func (w *Worker) runSweep(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker: sweep loop stopped")
			return
		case <-ticker.C:
			w.sweepStale(ctx)
		}
	}
}

// sweepStale reclaims non-terminal jobs whose row has not moved within the
// staleness bound: a claimant crashed after the claim, or its terminal
// transition errored. Rows under the kind's retry bound go back to the queue;
// the rest are failed. Every update is conditional on the observed status, so
// a job that progressed between the select and the update is left alone.
func (w *Worker) sweepStale(ctx context.Context) {
	rows, err := w.sql.Query(ctx, sqlinline.QSelectStaleJobs, int(w.staleAfter.Seconds()), sweepBatchLimit)
	if err != nil {
		w.logger.Error().Err(err).Msg("worker: stale sweep query failed")
		return
	}
	defer rows.Close()

	type staleJob struct {
		id           string
		kind         domain.JobKind
		status       domain.JobStatus
		attemptCount int
	}
	var stale []staleJob
	for rows.Next() {
		var s staleJob
		var kind, status string
		if err := rows.Scan(&s.id, &kind, &status, &s.attemptCount); err != nil {
			w.logger.Error().Err(err).Msg("worker: stale sweep scan failed")
			return
		}
		s.kind = domain.JobKind(kind)
		s.status = domain.JobStatus(status)
		stale = append(stale, s)
	}
	if err := rows.Err(); err != nil {
		w.logger.Error().Err(err).Msg("worker: stale sweep rows failed")
		return
	}

	for _, s := range stale {
		log := w.logger.With().Str("job_id", s.id).Str("kind", string(s.kind)).Str("stuck_in", string(s.status)).Logger()
		if s.attemptCount+1 >= s.kind.RetryLimit() {
			if _, err := w.sql.Exec(ctx, sqlinline.QFailJob, s.id, string(s.status),
				"reclaimed after stall: retries exhausted", nil); err != nil {
				log.Error().Err(err).Msg("worker: stale fail transition failed")
				continue
			}
			log.Warn().Msg("worker: stale job failed, retries exhausted")
			continue
		}
		if _, err := w.sql.Exec(ctx, sqlinline.QRequeueTransient, s.id, string(s.status), "reclaimed after stall"); err != nil {
			log.Error().Err(err).Msg("worker: stale requeue failed")
			continue
		}
		log.Warn().Int("attempt", s.attemptCount+1).Msg("worker: stale job requeued")
	}
}

// handle runs one claimed job to a transition: completed, failed, or back to
// queued for a transient retry.
func (w *Worker) handle(ctx context.Context, job claimedJob) {
	log := w.logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()
	log.Info().Int("attempt", job.AttemptCount+1).Msg("worker: picked job")

	run := &jobRun{worker: w, job: job, status: domain.JobStatusProcessing, logger: log}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("worker: job handler panic")
			run.fail(ctx, fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	if err := w.dispatch(ctx, run); err != nil {
		if errors.Is(err, errStaleJob) {
			return
		}
		run.resolve(ctx, err)
		return
	}
	run.complete(ctx)
}

func (w *Worker) dispatch(ctx context.Context, run *jobRun) error {
	payload, err := domain.DecodePayload(run.job.Kind, run.job.Payload)
	if err != nil {
		return err
	}
	switch p := payload.(type) {
	case domain.BriefingAudioPayload:
		return w.runBriefingAudio(ctx, run, p)
	case domain.DocumentExportPayload:
		return w.runDocumentExport(ctx, run, p)
	case domain.IndexBatchPayload:
		return w.runIndexBatch(ctx, run, p)
	case domain.SyncWindowPayload:
		return w.runSyncWindow(ctx, run, p)
	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownJobKind, payload)
	}
}

// jobRun tracks the durable status a job row is expected to hold so every
// transition can be conditional on it.
type jobRun struct {
	worker *Worker
	job    claimedJob
	status domain.JobStatus
	logger infra.Logger

	// lastProviderPayload is retained for diagnostics when a poll times out.
	lastProviderPayload json.RawMessage
}

// markAwaitingExternal records the provider handoff. Returns false when a
// concurrent processor already moved the row on, in which case the caller
// must stop without side effects.
func (r *jobRun) markAwaitingExternal(ctx context.Context, providerID string) bool {
	tag, err := r.worker.sql.Exec(ctx, sqlinline.QMarkAwaitingExternal, r.job.ID, providerID)
	if err != nil {
		r.logger.Error().Err(err).Msg("worker: mark awaiting_external failed")
		return false
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug().Msg("worker: job no longer processing, dropping duplicate delivery")
		return false
	}
	r.status = domain.JobStatusAwaitingExternal
	return true
}

func (r *jobRun) complete(ctx context.Context) {
	tag, err := r.worker.sql.Exec(ctx, sqlinline.QCompleteJob, r.job.ID, string(r.status))
	if err != nil {
		r.logger.Error().Err(err).Msg("worker: complete transition failed")
		return
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug().Msg("worker: complete transition matched no row, job already terminal")
		return
	}
	r.logger.Info().Msg("worker: job completed")
}

// resolve classifies a step failure: permanent errors and poll timeouts fail
// the job; everything else is retried until the kind's bound is reached.
func (r *jobRun) resolve(ctx context.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrPollTimeout):
		// Degraded outcome: terminal, with the last provider observation
		// retained for diagnostics and manual recovery.
		r.fail(ctx, err.Error(), r.lastProviderPayload)
	case domain.IsPermanent(err):
		r.fail(ctx, err.Error(), nil)
	default:
		r.retry(ctx, err)
	}
}

func (r *jobRun) retry(ctx context.Context, cause error) {
	if r.job.AttemptCount+1 >= r.job.Kind.RetryLimit() {
		r.fail(ctx, fmt.Sprintf("retries exhausted: %v", cause), nil)
		return
	}
	tag, err := r.worker.sql.Exec(ctx, sqlinline.QRequeueTransient, r.job.ID, string(r.status), cause.Error())
	if err != nil {
		r.logger.Error().Err(err).Msg("worker: requeue failed")
		return
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug().Msg("worker: requeue matched no row, job already moved on")
		return
	}
	r.logger.Warn().Err(cause).Int("attempt", r.job.AttemptCount+1).Msg("worker: transient failure, requeued")
}

func (r *jobRun) fail(ctx context.Context, reason string, providerPayload json.RawMessage) {
	var payload any
	if len(providerPayload) > 0 {
		payload = string(providerPayload)
	}
	tag, err := r.worker.sql.Exec(ctx, sqlinline.QFailJob, r.job.ID, string(r.status), reason, payload)
	if err != nil {
		r.logger.Error().Err(err).Msg("worker: fail transition failed")
		return
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug().Msg("worker: fail transition matched no row, job already terminal")
		return
	}
	r.logger.Error().Str("reason", reason).Msg("worker: job failed")
}
