package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesByKind(t *testing.T) {
	err := NotFound("instance %d not found", 7)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound to match ErrNotFound")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("NotFound should not match ErrConflict")
	}
	if got := err.Error(); got != "instance 7 not found" {
		t.Fatalf("got %q", got)
	}
}

func TestTransactionFailureWrapsCause(t *testing.T) {
	cause := fmt.Errorf("disk I/O error")
	err := TransactionFailure(cause)
	if !errors.Is(err, ErrTransactionFailure) {
		t.Fatalf("expected transaction failure kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if KindOf(err) != KindTransactionFailure {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
}

func TestTransactionFailureKeepsDomainErrors(t *testing.T) {
	inner := InvalidArgument("section 3 does not belong to instance 1")
	wrapped := fmt.Errorf("update instance: %w", inner)
	if got := TransactionFailure(wrapped); !errors.Is(got, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument to pass through, got %v", got)
	}
	if TransactionFailure(nil) != nil {
		t.Fatalf("nil cause should stay nil")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no kind")
	}
}
