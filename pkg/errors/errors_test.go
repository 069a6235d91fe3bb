package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := New(CodePathInvalid, "path is invalid")
		if err == nil {
			t.Fatal("New returned nil")
		}
		if err.Code != CodePathInvalid {
			t.Errorf("Code = %v, want %v", err.Code, CodePathInvalid)
		}
		if err.Message != "path is invalid" {
			t.Errorf("Message = %q, want %q", err.Message, "path is invalid")
		}
		if err.Kind != InvalidInput {
			t.Errorf("Kind = %v, want %v", err.Kind, InvalidInput)
		}
		if err.Details == nil {
			t.Error("Details map is nil")
		}
		if err.Context == nil {
			t.Error("Context map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets correct retryable defaults", func(t *testing.T) {
		retryableErr := New(CodeSourceUnreachable, "backing root unreachable")
		if !retryableErr.Retryable {
			t.Error("SourceUnreachable should be retryable by default")
		}

		nonRetryableErr := New(CodePathInvalid, "path invalid")
		if nonRetryableErr.Retryable {
			t.Error("PathInvalid should not be retryable by default")
		}
	})

	t.Run("maps every code to a kind", func(t *testing.T) {
		tests := []struct {
			code Code
			kind Kind
		}{
			{CodePathInvalid, InvalidInput},
			{CodePathEscapesRoot, InvalidInput},
			{CodePathTooLong, InvalidInput},
			{CodeRuleNotFound, NotFound},
			{CodeEntryNotFound, NotFound},
			{CodeLayerNotFound, NotFound},
			{CodeBackingDenied, PermissionDenied},
			{CodeHandleConflict, Conflict},
			{CodeLayerNameConflict, Conflict},
			{CodeSourceUnreachable, DependencyError},
			{CodeTransformMissing, DependencyError},
			{CodeOperationTimeout, Timeout},
			{CodeMemoryBudget, RateLimited},
			{CodeCacheFull, RateLimited},
			{CodeTransformDegraded, Degraded},
			{CodeTransformFailed, InternalError},
			{CodeCacheInternal, InternalError},
			{CodeInternal, InternalError},
		}

		for _, tt := range tests {
			err := New(tt.code, "test")
			if err.Kind != tt.kind {
				t.Errorf("%v: Kind = %v, want %v", tt.code, err.Kind, tt.kind)
			}
		}
	})
}

func TestKernelErrno(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code  Code
		errno int
	}{
		{CodePathInvalid, 22},
		{CodeEntryNotFound, 2},
		{CodeBackingDenied, 13},
		{CodeHandleConflict, 17},
		{CodeSourceUnreachable, 5},
		{CodeOperationTimeout, 110},
		{CodeCacheFull, 11},
		{CodeTransformDegraded, 0},
	}

	for _, tt := range tests {
		err := New(tt.code, "test")
		if got := err.KernelErrno(); got != tt.errno {
			t.Errorf("%v: KernelErrno() = %d, want %d", tt.code, got, tt.errno)
		}
	}
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := New(CodeEntryNotFound, "no such entry").WithComponent("resolver").WithOperation("getattr")
	msg := err.Error()
	if !strings.Contains(msg, "resolver") || !strings.Contains(msg, "getattr") || !strings.Contains(msg, "ENTRY_NOT_FOUND") {
		t.Errorf("Error() = %q, missing expected components", msg)
	}
}

func TestUnwrapAndIs(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk read failed")
	err := New(CodeSourceUnreachable, "could not stat backing root").WithCause(cause)

	if !errors.Is(err, err) {
		t.Error("errors.Is should match identical ShadowFSError")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the wrapped cause")
	}

	other := New(CodeSourceUnreachable, "different message")
	if !err.Is(other) {
		t.Error("Is should match on Code regardless of message")
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()

	err := New(CodePathTooLong, "path exceeds limit").WithDetail("length", 5000)
	data := err.JSON()

	var decoded map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(data), &decoded); jsonErr != nil {
		t.Fatalf("JSON() produced invalid JSON: %v", jsonErr)
	}
	if decoded["code"] != string(CodePathTooLong) {
		t.Errorf("decoded code = %v, want %v", decoded["code"], CodePathTooLong)
	}
}

func TestAsShadowFSError(t *testing.T) {
	t.Parallel()

	plain := errors.New("boring error")
	wrapped := AsShadowFSError(plain)
	if wrapped.Kind != InternalError {
		t.Errorf("Kind = %v, want %v", wrapped.Kind, InternalError)
	}

	sfe := New(CodeLayerNotFound, "layer missing")
	if AsShadowFSError(sfe) != sfe {
		t.Error("AsShadowFSError should return the same error when already a ShadowFSError")
	}
}
