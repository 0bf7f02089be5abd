package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a scheme has no stored status
	ErrNotFound = errors.New("not found")

	// ErrStaleWrite is returned when the status changed between read and write.
	// The computed diff is discarded.
	ErrStaleWrite = errors.New("stale write: status changed concurrently")

	// ErrPersistence wraps driver and I/O failures. Callers may retry.
	ErrPersistence = errors.New("persistence failure")

	// ErrLockTimeout is returned when the per-scheme lock could not be acquired in time
	ErrLockTimeout = errors.New("scheme lock timeout")
)

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrStaleWrite) || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
