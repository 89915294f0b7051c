// Package retry bounds transient store failures at the collaborator
// boundary. A call that keeps failing is surfaced to the caller; it is
// never retried indefinitely and never reinterpreted as a domain failure.
package retry

import (
	"context"
	"time"
)

// Do invokes fn up to attempts times, sleeping delay between tries.
// It stops early when fn succeeds, when shouldRetry reports the error as
// permanent, or when ctx is done.
func Do(ctx context.Context, attempts int, delay time.Duration, shouldRetry func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
