package chaindata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// StatusError is a non-2xx reply from the chain-data API. Server-side codes
// are retriable; everything else is a semantic result for the caller.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("chain api status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("chain api status %d", e.Code)
}

// Retriable classifies transient upstream failures: 5xx replies, timeouts and
// reset connections. Not-found and other client errors propagate immediately.
func Retriable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET)
}

// RetryPolicy is the one backoff policy shared by every outbound chain call:
// bounded attempts with exponential delay, retrying only transient classes.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !Retriable(err) || attempt == attempts {
			return err
		}

		delay := p.BaseDelay << (attempt - 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
