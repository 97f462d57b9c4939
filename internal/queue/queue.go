package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// Queue enqueues jobs onto the durable Postgres-backed queue. A queued row is
// the message: workers claim it with FOR UPDATE SKIP LOCKED, which gives
// at-least-once delivery with no broker.
type Queue struct {
	sql infra.SQLExecutor
}

// New constructs a Queue over the given executor.
func New(sql infra.SQLExecutor) *Queue {
	return &Queue{sql: sql}
}

// Enqueue validates the payload against the kind's schema and inserts a
// queued job row, returning the new job id.
func (q *Queue) Enqueue(ctx context.Context, kind domain.JobKind, payload json.RawMessage) (string, error) {
	if _, err := domain.DecodePayload(kind, payload); err != nil {
		return "", err
	}
	id := uuid.NewString()
	row := q.sql.QueryRow(ctx, sqlinline.QEnqueueJob, id, string(kind), payload)
	var returned string
	if err := row.Scan(&returned); err != nil {
		return "", fmt.Errorf("queue: enqueue %s: %w", kind, err)
	}
	return returned, nil
}
