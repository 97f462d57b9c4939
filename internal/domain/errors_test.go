package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsPermanent(t *testing.T) {
	if IsPermanent(nil) {
		t.Fatal("nil should not be permanent")
	}
	if IsPermanent(errors.New("connection reset")) {
		t.Fatal("plain errors should default to transient")
	}
	if !IsPermanent(AsPermanent(errors.New("bad request"))) {
		t.Fatal("AsPermanent marker should be permanent")
	}
	if !IsPermanent(fmt.Errorf("wrapped: %w", AsPermanent(errors.New("x")))) {
		t.Fatal("wrapped marker should be permanent")
	}
	for _, err := range []error{ErrInvalidPayload, ErrUnknownJobKind, ErrProviderFailure, ErrArtifactPersistFailure} {
		if !IsPermanent(fmt.Errorf("step: %w", err)) {
			t.Fatalf("%v should be permanent", err)
		}
	}
	if IsPermanent(ErrPollTimeout) {
		t.Fatal("poll timeout is degraded, not permanent; callers handle it separately")
	}
}

func TestAsPermanentNil(t *testing.T) {
	if AsPermanent(nil) != nil {
		t.Fatal("AsPermanent(nil) should be nil")
	}
}

func TestAsPermanentPreservesMessage(t *testing.T) {
	base := errors.New("provider rejected input")
	wrapped := AsPermanent(base)
	if wrapped.Error() != base.Error() {
		t.Fatalf("message = %q, want %q", wrapped.Error(), base.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("wrapped error should unwrap to base")
	}
}
