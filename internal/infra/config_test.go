package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("ARTIFACT_INLINE_THRESHOLD", "")
	t.Setenv("ARTIFACT_CHUNK_THRESHOLD", "")
	t.Setenv("ARTIFACT_CHUNK_SIZE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ArtifactInlineThreshold != 16*1024 {
		t.Fatalf("ArtifactInlineThreshold mismatch: got %d want %d", cfg.ArtifactInlineThreshold, 16*1024)
	}
	if cfg.ArtifactChunkThreshold != 100*1024 {
		t.Fatalf("ArtifactChunkThreshold mismatch: got %d want %d", cfg.ArtifactChunkThreshold, 100*1024)
	}
	if cfg.ArtifactChunkSize != 30*1024 {
		t.Fatalf("ArtifactChunkSize mismatch: got %d want %d", cfg.ArtifactChunkSize, 30*1024)
	}
	if cfg.PollInitialDelay != 500*time.Millisecond {
		t.Fatalf("PollInitialDelay mismatch: got %v", cfg.PollInitialDelay)
	}
	if cfg.PollMaxDelay != 15*time.Second {
		t.Fatalf("PollMaxDelay mismatch: got %v", cfg.PollMaxDelay)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig should fail without DATABASE_URL")
	}
}

func TestLoadConfigRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("ARTIFACT_INLINE_THRESHOLD", "200000")
	t.Setenv("ARTIFACT_CHUNK_THRESHOLD", "100000")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig should reject chunk threshold below inline threshold")
	}
}

func TestLoadConfigRejectsOversizedChunkSize(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("ARTIFACT_CHUNK_SIZE", "200000")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig should reject chunk size above chunk threshold")
	}
}

func TestLoadConfigRejectsStaleBoundInsidePollBudget(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("POLL_BUDGET_SECONDS", "600")
	t.Setenv("JOB_STALE_AFTER_SECONDS", "300")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig should reject a staleness bound inside the poll budget")
	}
}

func TestLoadConfigRejectsInvertedPollDelays(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("POLL_INITIAL_DELAY_MS", "5000")
	t.Setenv("POLL_MAX_DELAY_MS", "1000")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig should reject max poll delay below initial delay")
	}
}
