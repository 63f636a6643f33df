package platform

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/aws/smithy-go"
)

// PublishState tracks one unit's progress through the retrying publisher.
type PublishState int

const (
	StatePending PublishState = iota
	StateRetrying
	StatePublished
	StateFailed
)

func (s PublishState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StatePublished:
		return "published"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PublishError wraps a platform failure with how many attempts were spent.
type PublishError struct {
	Unit     string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish of %s failed after %d attempts: %v", e.Unit, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Retrier wraps an API with bounded retries on transient platform errors.
// Each call walks pending -> retrying(n) -> published or failed; permanent
// errors fail immediately without burning attempts.
type Retrier struct {
	API         API
	MaxAttempts int
	BaseDelay   time.Duration

	// OnTransition is called on every state change, mainly for log hooks.
	OnTransition func(unit string, state PublishState, attempt int)

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(api API) *Retrier {
	return &Retrier{
		API:         api,
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		sleep:       sleepCtx,
	}
}

func (r *Retrier) PublishLayer(ctx context.Context, in PublishLayerInput) (PublishLayerOutput, error) {
	var out PublishLayerOutput
	err := r.run(ctx, in.Name, func(ctx context.Context) error {
		var err error
		out, err = r.API.PublishLayer(ctx, in)
		return err
	})
	return out, err
}

func (r *Retrier) UpdateFunction(ctx context.Context, in UpdateFunctionInput) error {
	return r.run(ctx, in.FunctionName, func(ctx context.Context) error {
		return r.API.UpdateFunction(ctx, in)
	})
}

func (r *Retrier) run(ctx context.Context, unit string, op func(context.Context) error) error {
	r.transition(unit, StatePending, 0)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		attempts = attempt
		lastErr = op(ctx)
		if lastErr == nil {
			r.transition(unit, StatePublished, attempt)
			return nil
		}
		if !Retryable(lastErr) || attempt == r.MaxAttempts {
			break
		}

		r.transition(unit, StateRetrying, attempt)
		if err := r.sleep(ctx, backoff(r.BaseDelay, attempt)); err != nil {
			lastErr = err
			break
		}
	}

	r.transition(unit, StateFailed, attempts)
	return &PublishError{Unit: unit, Attempts: attempts, Err: lastErr}
}

func (r *Retrier) transition(unit string, state PublishState, attempt int) {
	if r.OnTransition != nil {
		r.OnTransition(unit, state, attempt)
	}
}

// Retryable reports whether the platform error is transient. Throttles and
// server-side faults retry; validation and auth errors do not.
func Retryable(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.ErrorCode() {
	case "TooManyRequestsException", "ThrottlingException", "Throttling",
		"ServiceException", "ServiceUnavailableException",
		"RequestTimeout", "InternalFailure":
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultServer
}

// backoff doubles per attempt with full jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
