package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		code          ErrorCode
		wantCategory  ErrorCategory
		wantRetryable bool
	}{
		{"transient", ErrCodeTransient, CategoryStorage, true},
		{"throttled", ErrCodeThrottled, CategoryStorage, true},
		{"permanent", ErrCodePermanent, CategoryStorage, false},
		{"not found", ErrCodeObjectNotFound, CategoryStorage, false},
		{"invalid config", ErrCodeInvalidConfig, CategoryConfiguration, false},
		{"lock held", ErrCodeLockHeld, CategoryState, false},
		{"retry exhausted", ErrCodeRetryExhausted, CategoryOperation, false},
		{"panic", ErrCodePanicRecovered, CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewError(tt.code, "msg")
			if err.Category != tt.wantCategory {
				t.Errorf("Category = %v, want %v", err.Category, tt.wantCategory)
			}
			if err.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.wantRetryable)
			}
			if err.Timestamp.IsZero() {
				t.Error("Timestamp should be set")
			}
		})
	}
}

func TestTierError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *TierError
		want string
	}{
		{
			name: "with component and operation",
			err:  &TierError{Code: ErrCodeObjectNotFound, Component: "s3", Operation: "stat", Message: "missing"},
			want: "[s3:stat] OBJECT_NOT_FOUND: missing",
		},
		{
			name: "with component only",
			err:  &TierError{Code: ErrCodeInvalidConfig, Component: "config", Message: "bad value"},
			want: "[config] INVALID_CONFIG: bad value",
		},
		{
			name: "with cause",
			err:  &TierError{Code: ErrCodeTransient, Message: "copy failed", Cause: fmt.Errorf("connection reset")},
			want: "TRANSIENT: copy failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTierError_IsAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("socket closed")
	err := Transient("put failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !stderrors.Is(err, NewError(ErrCodeTransient, "other message")) {
		t.Error("errors with the same code should match")
	}
	if stderrors.Is(err, NewError(ErrCodePermanent, "x")) {
		t.Error("errors with different codes should not match")
	}
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	nf := NotFound("backup", "a.txt")
	wrapped := fmt.Errorf("stat: %w", nf)

	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsRetryable(wrapped) {
		t.Error("not found must not be retryable")
	}
	if nf.Context["container"] != "backup" || nf.Context["key"] != "a.txt" {
		t.Errorf("unexpected context %v", nf.Context)
	}

	if !IsRetryable(fmt.Errorf("op: %w", Transient("x", nil))) {
		t.Error("transient should be retryable")
	}
	if IsRetryable(Permanent("x", nil)) {
		t.Error("permanent should not be retryable")
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Error("plain errors carry no retry hint")
	}
	if CodeOf(stderrors.New("plain")) != "" {
		t.Error("CodeOf plain error should be empty")
	}
}

func TestTierError_String(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeTransient, "throttled by store").
		WithComponent("azure").
		WithOperation("copy").
		WithContext("key", "a.txt").
		WithCause(stderrors.New("503"))

	s := err.String()
	for _, part := range []string{
		"Code=TRANSIENT",
		"Category=storage",
		"Component=azure",
		"Operation=copy",
		"Retryable=true",
		`Context={"key":"a.txt"}`,
		`Cause="503"`,
	} {
		if !strings.Contains(s, part) {
			t.Errorf("String() missing %q\nGot: %s", part, s)
		}
	}
}

func TestGetRecommendation(t *testing.T) {
	t.Parallel()

	for _, code := range []ErrorCode{ErrCodeObjectNotFound, ErrCodeTransient, ErrCodeLockHeld, ErrCodeInvalidConfig} {
		if rec := NewError(code, "x").GetRecommendation(); rec == "" || strings.HasPrefix(rec, "Check the error message") {
			t.Errorf("expected a specific recommendation for %s, got %q", code, rec)
		}
	}
	if rec := NewError(ErrCodeInternalError, "x").GetRecommendation(); !strings.HasPrefix(rec, "Check the error message") {
		t.Errorf("unexpected generic recommendation %q", rec)
	}
}
