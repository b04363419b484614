package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"
)

func TestPathError(t *testing.T) {
	err := &PathError{Op: "read", Path: "/test/file.txt", Err: ErrNotFound}

	if got := err.Error(); got != "read /test/file.txt: not found" {
		t.Errorf("Error() = %q, want 'read /test/file.txt: not found'", got)
	}

	if err.Unwrap() != ErrNotFound {
		t.Error("Unwrap() should return underlying error")
	}

	if !stderrors.Is(err, ErrNotFound) {
		t.Error("errors.Is should see through PathError")
	}
}

func TestPathError_NoPath(t *testing.T) {
	err := &PathError{Op: "analyze", Err: ErrInvalidInput}
	if got := err.Error(); got != "analyze: invalid input" {
		t.Errorf("Error() = %q", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"already classified", ErrOutOfRange, ErrOutOfRange},
		{"not exist", fs.ErrNotExist, ErrNotFound},
		{"permission", fs.ErrPermission, ErrPermission},
		{"invalid", fs.ErrInvalid, ErrInvalidInput},
		{"no space", syscall.ENOSPC, ErrInsufficientSpace},
		{"context canceled", context.Canceled, ErrCancelled},
		{"opaque", stderrors.New("boom"), ErrIOFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("Classify(nil) = %v", got)
				}
				return
			}
			if !stderrors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassify_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("open /x: %w", fs.ErrNotExist)
	got := Classify(cause)
	if !stderrors.Is(got, fs.ErrNotExist) {
		t.Error("classified error should still match the original cause")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want bool
	}{
		{"nil", nil, false},
		{"invalid input", ErrInvalidInput, false},
		{"not found", ErrNotFound, false},
		{"permission", ErrPermission, false},
		{"out of range", ErrOutOfRange, false},
		{"memory", ErrMemoryExhausted, false},
		{"cancelled", ErrCancelled, false},
		{"context", context.Canceled, false},
		{"io failure", ErrIOFailure, true},
		{"wrapped io failure", fmt.Errorf("read: %w", ErrIOFailure), true},
		{"eagain", syscall.EAGAIN, true},
		{"ebusy", syscall.EBUSY, true},
		{"etimedout", syscall.ETIMEDOUT, true},
		{"file in use hint", stderrors.New("the file is being used by another process"), true},
		{"network hint", stderrors.New("network path not found"), true},
		{"opaque", stderrors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.in); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrNotFound) {
		t.Error("IsNotFound(ErrNotFound) should be true")
	}
	if !IsNotFound(NewPathError("open", "/x", fs.ErrNotExist)) {
		t.Error("IsNotFound should work through wrappers")
	}
	if IsNotFound(ErrPermission) {
		t.Error("IsNotFound(ErrPermission) should be false")
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(ErrCancelled) {
		t.Error("IsCancelled(ErrCancelled) should be true")
	}
	if !IsCancelled(context.Canceled) {
		t.Error("IsCancelled(context.Canceled) should be true")
	}
	if IsCancelled(ErrIOFailure) {
		t.Error("IsCancelled(ErrIOFailure) should be false")
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{
		ErrInvalidInput, ErrNotFound, ErrPermission, ErrOutOfRange,
		ErrIOFailure, ErrInsufficientSpace, ErrMemoryExhausted,
		ErrCancelled, ErrTruncated, ErrIsDirectory,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j && stderrors.Is(a, b) {
				t.Errorf("errors %v and %v should be distinct", a, b)
			}
		}
	}
}
