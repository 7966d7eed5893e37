// Package retry provides bounded retry for transient platform errors.
// Retries are fixed-count with no backoff: gear runs are batch jobs and the
// host orchestrator owns pacing and timeouts.
package retry

import (
	"context"
	"log"

	"github.com/formflow/formflow/pkg/errors"
)

// DefaultAttempts is the number of tries before the last error is fatal.
const DefaultAttempts = 3

// Policy controls retry behavior for one class of operations.
type Policy struct {
	// Attempts is the total number of tries (first try included).
	Attempts int

	// RetryIf decides whether an error is worth retrying. Defaults to
	// errors.IsTransient.
	RetryIf func(error) bool
}

// DefaultPolicy returns the standard fixed-count policy.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts}
}

// Do runs op up to p.Attempts times, logging a warning per failed attempt.
// Non-retryable errors and context cancellation fail immediately; after the
// attempts are exhausted the last error is returned as-is.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = errors.IsTransient
	}

	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return errors.ContextCanceled(name)
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if !retryIf(last) {
			return last
		}

		log.Printf("retry: %s attempt %d/%d failed: %v", name, i, attempts, last)
	}

	return last
}
