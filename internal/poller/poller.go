package poller

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/generation"
)

// growthFactor is the multiplicative backoff applied after every
// non-terminal poll.
const growthFactor = 1.2

// Provider is the slice of the generation client the poller needs.
type Provider interface {
	JobState(ctx context.Context, providerID string) (*generation.JobState, error)
}

// Policy bounds a poll loop.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Budget       time.Duration
}

// Next returns the delay to use after a non-terminal poll given the current
// delay. The schedule is non-decreasing and capped at MaxDelay.
func (p Policy) Next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * growthFactor)
	if next < current {
		next = current
	}
	if p.MaxDelay > 0 && next > p.MaxDelay {
		next = p.MaxDelay
	}
	return next
}

// Outcome reports how a poll loop ended. LastState is populated on timeout so
// callers can decide whether to surface a partial or degraded result.
type Outcome struct {
	ResultRef string
	Attempts  int
	LastState *generation.JobState
}

// Poller drives an externally-owned generation job to a terminal observation
// by polling with capped exponential backoff.
type Poller struct {
	provider Provider
	logger   infra.Logger
	policy   Policy
}

// New constructs a Poller.
func New(provider Provider, logger infra.Logger, policy Policy) *Poller {
	return &Poller{provider: provider, logger: logger, policy: policy}
}

// Await polls the provider job until it yields a retrievable result, reports
// failure, or the attempt/wall-clock budget runs out. A provider that reports
// "completed" while its result reference is still empty is mid export
// materialization and is treated as non-terminal. Cancellation between
// sleeps returns ErrPollCancelled, never ErrPollTimeout.
func (p *Poller) Await(ctx context.Context, providerID string) (*Outcome, error) {
	deadline := time.Now().Add(p.policy.Budget)
	delay := p.policy.InitialDelay
	outcome := &Outcome{}

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, delay); err != nil {
				return outcome, fmt.Errorf("%w: %v", domain.ErrPollCancelled, err)
			}
			delay = p.policy.Next(delay)
		}
		if err := ctx.Err(); err != nil {
			return outcome, fmt.Errorf("%w: %v", domain.ErrPollCancelled, err)
		}

		state, err := p.provider.JobState(ctx, providerID)
		outcome.Attempts = attempt
		if err != nil {
			if domain.IsPermanent(err) {
				return outcome, err
			}
			// Transient poll errors consume an attempt but keep the loop alive.
			p.logger.Warn().
				Err(err).
				Str("provider_job_id", providerID).
				Int("attempt", attempt).
				Msg("poller: poll attempt failed")
		} else {
			outcome.LastState = state
			switch state.Status {
			case generation.StatusFailed:
				return outcome, domain.AsPermanent(fmt.Errorf("%w: %s", domain.ErrProviderFailure, summarize(state.Error)))
			case generation.StatusCompleted:
				if state.ResultRef != "" {
					outcome.ResultRef = state.ResultRef
					return outcome, nil
				}
				p.logger.Debug().
					Str("provider_job_id", providerID).
					Int("attempt", attempt).
					Msg("poller: completed without result reference, still materializing")
			}
		}

		if p.policy.Budget > 0 && time.Now().After(deadline) {
			return outcome, fmt.Errorf("%w: wall-clock budget exhausted after %d attempts", domain.ErrPollTimeout, attempt)
		}
	}
	return outcome, fmt.Errorf("%w: %d attempts exhausted", domain.ErrPollTimeout, p.policy.MaxAttempts)
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// summarize trims provider error text so raw payloads are never echoed to
// callers verbatim. Truncation lands on a rune boundary so multi-byte text is
// never cut mid-character.
func summarize(providerError string) string {
	const maxLen = 140
	if providerError == "" {
		return "provider reported failure"
	}
	if len(providerError) <= maxLen {
		return providerError
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(providerError[cut]) {
		cut--
	}
	return providerError[:cut] + "…"
}
