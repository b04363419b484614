// Package errors defines the error taxonomy for the streaming file engine.
//
// Errors fall into two classes: fatal errors that are surfaced to the
// caller immediately (bad input, missing files, permission problems) and
// transient errors that the recovery layer may retry.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// Engine errors.
var (
	// ErrInvalidInput indicates a malformed argument (empty path,
	// non-positive length, negative offset).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a missing file or directory.
	ErrNotFound = errors.New("not found")

	// ErrPermission indicates the caller lacks access rights.
	ErrPermission = errors.New("permission denied")

	// ErrOutOfRange indicates a position at or beyond the file length.
	ErrOutOfRange = errors.New("position out of range")

	// ErrIOFailure indicates a transient or persistent I/O error.
	ErrIOFailure = errors.New("io failure")

	// ErrInsufficientSpace indicates the destination volume is too full.
	ErrInsufficientSpace = errors.New("insufficient disk space")

	// ErrMemoryExhausted indicates an out-of-memory condition during
	// text processing.
	ErrMemoryExhausted = errors.New("memory exhausted")

	// ErrCancelled indicates the operation was cancelled by the caller.
	ErrCancelled = errors.New("operation cancelled")

	// ErrTruncated indicates content was returned incomplete to bound
	// memory use. It marks degraded success, not failure.
	ErrTruncated = errors.New("content truncated")

	// ErrIsDirectory indicates the path refers to a directory.
	ErrIsDirectory = errors.New("is a directory")
)

// PathError wraps an error with the operation and path that produced it.
type PathError struct {
	Op   string // Operation (e.g., "analyze", "read", "save")
	Path string // File path involved
	Err  error  // Underlying error
}

// NewPathError creates a new PathError.
func NewPathError(op, path string, err error) *PathError {
	return &PathError{Op: op, Path: path, Err: err}
}

func (e *PathError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PathError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Classify maps an arbitrary error onto the engine taxonomy.
// Already-classified errors pass through unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPermission), errors.Is(err, ErrOutOfRange),
		errors.Is(err, ErrIOFailure), errors.Is(err, ErrInsufficientSpace),
		errors.Is(err, ErrMemoryExhausted), errors.Is(err, ErrCancelled):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermission, err)
	case errors.Is(err, fs.ErrInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case errors.Is(err, syscall.ENOSPC):
		return fmt.Errorf("%w: %w", ErrInsufficientSpace, err)
	default:
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
}

// IsRetryable reports whether the recovery layer may retry err.
//
// Programming and environment errors (bad input, missing file,
// permission, out of range) are never retryable, nor are memory
// exhaustion and cancellation. Lock contention and transient network
// conditions are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Fatal classes first.
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPermission),
		errors.Is(err, ErrOutOfRange),
		errors.Is(err, ErrMemoryExhausted),
		errors.Is(err, ErrInsufficientSpace),
		errors.Is(err, ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, fs.ErrInvalid):
		return false
	}

	// Structured transient conditions from the platform I/O layer.
	for _, errno := range []syscall.Errno{
		syscall.EAGAIN,
		syscall.EBUSY,
		syscall.EINTR,
		syscall.ETIMEDOUT,
		syscall.ECONNRESET,
		syscall.ECONNABORTED,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	if errors.Is(err, ErrIOFailure) {
		return true
	}

	// Last-resort hint for opaque errors from foreign layers.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "being used") ||
		strings.Contains(msg, "resource temporarily unavailable") ||
		strings.Contains(msg, "network")
}

// IsNotFound reports whether err represents a missing file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// IsCancelled reports whether err represents caller cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
