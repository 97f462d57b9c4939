package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"server/internal/domain"
	"server/internal/domain/jsoncfg"
	"server/internal/infra"
)

// enqueueAttempts is one initial try plus three immediate retries.
const enqueueAttempts = 4

// defaultCostPerItem approximates downstream spend per indexed item, used
// only for observability before dispatch.
const defaultCostPerItem = 0.0004

// Enqueuer is the slice of Queue the dispatcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (string, error)
}

// Dispatcher splits a large workset into fixed-size batches and enqueues one
// index_batch job per batch, keeping each request under the provider's
// per-call item ceiling. Batches are independently keyed; no ordering is
// guaranteed or needed across them.
type Dispatcher struct {
	queue       Enqueuer
	logger      infra.Logger
	costPerItem float64
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(queue Enqueuer, logger infra.Logger) *Dispatcher {
	return &Dispatcher{queue: queue, logger: logger, costPerItem: defaultCostPerItem}
}

// DispatchResult reports what a dispatch call did.
type DispatchResult struct {
	Batches      int
	JobIDs       []string
	CostEstimate float64
}

// Dispatch fans out ceil(total/batchSize) index_batch jobs whose
// (offset, limit) ranges exactly cover [0, total). An empty workset is
// refused. Each enqueue is retried immediately up to a small bound; if one
// still fails the call reports how many batches made it out.
func (d *Dispatcher) Dispatch(ctx context.Context, source string, total, batchSize int) (*DispatchResult, error) {
	if total == 0 {
		return nil, domain.ErrEmptyWorkset
	}
	if total < 0 || batchSize <= 0 {
		return nil, fmt.Errorf("%w: total=%d batchSize=%d", domain.ErrInvalidPayload, total, batchSize)
	}

	batches := (total + batchSize - 1) / batchSize
	result := &DispatchResult{
		Batches:      batches,
		CostEstimate: float64(total) * d.costPerItem,
	}
	d.logger.Info().
		Str("source", source).
		Int("total", total).
		Int("batches", batches).
		Float64("cost_estimate", result.CostEstimate).
		Msg("dispatch: fanning out index batches")

	for i := 0; i < batches; i++ {
		offset := i * batchSize
		limit := batchSize
		if offset+limit > total {
			limit = total - offset
		}
		payload := jsoncfg.MustMarshal(domain.IndexBatchPayload{
			Source: source,
			Offset: offset,
			Limit:  limit,
		})

		var jobID string
		var err error
		for attempt := 0; attempt < enqueueAttempts; attempt++ {
			if jobID, err = d.queue.Enqueue(ctx, domain.JobKindIndexBatch, payload); err == nil {
				break
			}
		}
		if err != nil {
			d.logger.Error().
				Err(err).
				Str("source", source).
				Int("batch", i).
				Int("enqueued", len(result.JobIDs)).
				Msg("dispatch: batch enqueue failed after retries")
			return result, fmt.Errorf("%w: %d of %d batches enqueued: %v",
				domain.ErrDispatchPartialFailure, len(result.JobIDs), batches, err)
		}
		result.JobIDs = append(result.JobIDs, jobID)
	}
	return result, nil
}
