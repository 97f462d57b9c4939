package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
	"server/internal/storage"
)

const chunkWriteAttempts = 3

// Store routes artifact payloads to one of three tiers based on size: inline
// in the owning job row, chunked across ordered rows, or an external object
// bucket. The tier is decided once at write time.
type Store struct {
	sql     infra.SQLExecutor
	objects storage.ObjectStorage
	logger  infra.Logger

	inlineThreshold int
	chunkThreshold  int
	chunkSize       int
}

// Thresholds carries the configured size boundaries.
type Thresholds struct {
	Inline    int
	Chunk     int
	ChunkSize int
}

// NewStore constructs a tiered artifact store. objects may be nil when no
// bucket backend is configured; oversized payloads then go straight to
// chunked storage.
func NewStore(sql infra.SQLExecutor, objects storage.ObjectStorage, logger infra.Logger, t Thresholds) *Store {
	return &Store{
		sql:             sql,
		objects:         objects,
		logger:          logger,
		inlineThreshold: t.Inline,
		chunkThreshold:  t.Chunk,
		chunkSize:       t.ChunkSize,
	}
}

// Save persists the payload for the owning job and records the artifact row.
// Re-running for the same job id overwrites the previous write, keeping the
// operation idempotent under redelivery.
func (s *Store) Save(ctx context.Context, ownerJobID string, data []byte, contentType string) (*domain.Artifact, error) {
	tier := domain.TierFor(len(data), s.inlineThreshold, s.chunkThreshold, s.objects != nil)

	var location string
	switch tier {
	case domain.TierInline:
		if len(data) >= s.inlineThreshold {
			s.logger.Warn().
				Str("job_id", ownerJobID).
				Int("size_bytes", len(data)).
				Int("inline_threshold", s.inlineThreshold).
				Msg("artifact: inline payload above comfort threshold")
		}
		if _, err := s.sql.Exec(ctx, sqlinline.QWriteInlineResult, ownerJobID, data); err != nil {
			return nil, fmt.Errorf("%w: inline write: %v", domain.ErrArtifactPersistFailure, err)
		}
		location = "jobs.result"

	case domain.TierBucket:
		url, err := s.objects.Put(ctx, bucketKey(ownerJobID, contentType), data, contentType)
		if err == nil {
			location = url
			break
		}
		// Tier fallback is not an error surface: a failed upload degrades
		// to chunked storage and is only logged.
		s.logger.Warn().
			Err(err).
			Str("job_id", ownerJobID).
			Int("size_bytes", len(data)).
			Msg("artifact: bucket upload failed, falling back to chunked storage")
		tier = domain.TierChunked
		fallthrough

	case domain.TierChunked:
		total, err := s.writeChunks(ctx, ownerJobID, data)
		if err != nil {
			return nil, err
		}
		location = fmt.Sprintf("chunks/%d", total)
	}

	art := &domain.Artifact{
		ID:          uuid.NewString(),
		OwnerJobID:  ownerJobID,
		SizeBytes:   int64(len(data)),
		StorageTier: tier,
		Location:    location,
		ContentType: contentType,
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertArtifact,
		art.ID, art.OwnerJobID, art.SizeBytes, string(art.StorageTier), art.Location, art.ContentType,
	); err != nil {
		return nil, fmt.Errorf("%w: artifact row: %v", domain.ErrArtifactPersistFailure, err)
	}
	return art, nil
}

// writeChunks splits the payload into fixed-size chunks and writes them
// sequentially so replay order stays deterministic. Chunks from any previous
// write for the same owner are cleared first so a rewrite cannot interleave
// with stale rows. Each write is retried a bounded number of times; on
// exhaustion the whole artifact write aborts and any partially written chunks
// are removed.
func (s *Store) writeChunks(ctx context.Context, ownerJobID string, data []byte) (int, error) {
	if _, err := s.sql.Exec(ctx, sqlinline.QDeleteArtifactChunks, ownerJobID); err != nil {
		return 0, fmt.Errorf("%w: clear previous chunks: %v", domain.ErrArtifactPersistFailure, err)
	}

	total := (len(data) + s.chunkSize - 1) / s.chunkSize
	for index := 0; index < total; index++ {
		start := index * s.chunkSize
		end := start + s.chunkSize
		if end > len(data) {
			end = len(data)
		}

		var writeErr error
		for attempt := 0; attempt < chunkWriteAttempts; attempt++ {
			if _, writeErr = s.sql.Exec(ctx, sqlinline.QInsertArtifactChunk,
				ownerJobID, index, data[start:end], total,
			); writeErr == nil {
				break
			}
		}
		if writeErr != nil {
			if _, cleanupErr := s.sql.Exec(ctx, sqlinline.QDeleteArtifactChunks, ownerJobID); cleanupErr != nil {
				s.logger.Error().
					Err(cleanupErr).
					Str("job_id", ownerJobID).
					Msg("artifact: failed to clean up partial chunks")
			}
			return 0, fmt.Errorf("%w: chunk %d of %d: %v", domain.ErrArtifactPersistFailure, index, total, writeErr)
		}
	}
	return total, nil
}

// Metadata returns the artifact record for the owning job.
func (s *Store) Metadata(ctx context.Context, ownerJobID string) (*domain.Artifact, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectArtifactByOwner, ownerJobID)
	var art domain.Artifact
	var tier string
	if err := row.Scan(&art.ID, &art.OwnerJobID, &art.SizeBytes, &tier, &art.Location, &art.ContentType, &art.CreatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	art.StorageTier = domain.StorageTier(tier)
	return &art, nil
}

// Retrieve returns the artifact record and, for the inline and chunked tiers,
// the reassembled byte stream. Bucket artifacts return nil bytes; callers
// follow the location URL instead.
func (s *Store) Retrieve(ctx context.Context, ownerJobID string) ([]byte, *domain.Artifact, error) {
	art, err := s.Metadata(ctx, ownerJobID)
	if err != nil {
		return nil, nil, err
	}

	switch art.StorageTier {
	case domain.TierInline:
		row := s.sql.QueryRow(ctx, sqlinline.QReadInlineResult, ownerJobID)
		var data []byte
		if err := row.Scan(&data); err != nil {
			if infra.IsNoRows(err) {
				return nil, nil, domain.ErrNotFound
			}
			return nil, nil, err
		}
		return data, art, nil

	case domain.TierChunked:
		data, err := s.readChunks(ctx, ownerJobID)
		if err != nil {
			return nil, nil, err
		}
		return data, art, nil

	case domain.TierBucket:
		return nil, art, nil

	default:
		return nil, nil, fmt.Errorf("artifact: unknown storage tier %q", art.StorageTier)
	}
}

// readChunks reassembles the payload from chunk rows in ascending index
// order. A count mismatch against total_chunks means a torn write.
func (s *Store) readChunks(ctx context.Context, ownerJobID string) ([]byte, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QSelectArtifactChunks, ownerJobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buf []byte
	var read, expected int
	for rows.Next() {
		var index, total int
		var chunk []byte
		if err := rows.Scan(&index, &chunk, &total); err != nil {
			return nil, err
		}
		if index != read {
			return nil, fmt.Errorf("%w: expected chunk %d, got %d", domain.ErrIncompleteArtifact, read, index)
		}
		if read > 0 && total != expected {
			return nil, fmt.Errorf("%w: chunk %d reports %d total chunks, want %d", domain.ErrIncompleteArtifact, index, total, expected)
		}
		buf = append(buf, chunk...)
		read++
		expected = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if read == 0 || read != expected {
		return nil, fmt.Errorf("%w: have %d of %d chunks", domain.ErrIncompleteArtifact, read, expected)
	}
	return buf, nil
}

func bucketKey(ownerJobID, contentType string) string {
	return "artifacts/" + ownerJobID + "/payload" + extensionForContentType(contentType)
}

func extensionForContentType(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "application/pdf":
		return ".pdf"
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return ".pptx"
	case "application/json":
		return ".json"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
