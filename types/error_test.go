package types

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrGenerationFailure, "generation failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithThread("th-1")

	if GetErrorCode(err) != ErrGenerationFailure {
		t.Fatalf("expected code %s, got %s", ErrGenerationFailure, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	nf := NewNotFoundError("th-missing")
	if !IsNotFound(nf) || nf.HTTPStatus != http.StatusNotFound {
		t.Fatalf("not-found constructor mismatch: %+v", nf)
	}
	if nf.Thread != "th-missing" {
		t.Fatalf("expected thread tag, got %q", nf.Thread)
	}

	conflict := NewConflictError("th-1", "version mismatch")
	if !IsConflict(conflict) || !conflict.Retryable {
		t.Fatalf("conflict must be retryable: %+v", conflict)
	}

	invalid := NewInvalidStateError("th-1", "thread already completed")
	if !IsInvalidState(invalid) || invalid.Retryable {
		t.Fatalf("invalid-state must not be retryable: %+v", invalid)
	}

	val := NewValidationError("edited_context is required when approved is false")
	if !IsValidation(val) || val.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("validation constructor mismatch: %+v", val)
	}

	rf := NewRetrievalFailure(errors.New("boom"))
	if GetErrorCode(rf) != ErrRetrievalFailure || rf.Cause == nil {
		t.Fatalf("retrieval failure must wrap cause: %+v", rf)
	}
}

func TestGetErrorCode_WrappedError(t *testing.T) {
	t.Parallel()

	inner := NewGenerationFailure("th-2", errors.New("upstream 503"))
	wrapped := errors.Join(errors.New("outer"), inner)

	if GetErrorCode(wrapped) != ErrGenerationFailure {
		t.Fatalf("expected code to surface through wrapping, got %q", GetErrorCode(wrapped))
	}
	if !IsErrorCode(wrapped, ErrGenerationFailure) {
		t.Fatalf("IsErrorCode should match through wrapping")
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}
