package domain

import "time"

// StorageTier enumerates where artifact bytes live.
type StorageTier string

const (
	TierInline  StorageTier = "inline"
	TierChunked StorageTier = "chunked"
	TierBucket  StorageTier = "bucket"
)

// Artifact represents the stored output of a completed job. The tier is
// chosen once at write time and never changes.
type Artifact struct {
	ID          string
	OwnerJobID  string
	SizeBytes   int64
	StorageTier StorageTier
	Location    string
	ContentType string
	CreatedAt   time.Time
}

// TierFor selects the storage tier for a payload of the given size. It is a
// pure function of the size and the configured thresholds; bucket is only a
// candidate when a bucket backend is configured, and a failed bucket upload
// falls back to chunked at write time without changing this decision rule.
func TierFor(size, inlineThreshold, chunkThreshold int, bucketAvailable bool) StorageTier {
	if size < chunkThreshold {
		return TierInline
	}
	if bucketAvailable {
		return TierBucket
	}
	return TierChunked
}
