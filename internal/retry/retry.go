// Package retry wraps cenkalti/backoff for connection establishment.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

type Policy struct {
	Attempts uint64
	Initial  time.Duration
	Max      time.Duration
}

// Default retries a handful of times over roughly ten seconds.
var Default = Policy{Attempts: 5, Initial: 200 * time.Millisecond, Max: 3 * time.Second}

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

// Do runs fn until it succeeds, returns a permanent error, the attempts
// run out or ctx is done.
func Do(ctx context.Context, p Policy, log hclog.Logger, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if p.Attempts > 0 {
		b = backoff.WithMaxRetries(b, p.Attempts)
	}
	return backoff.RetryNotify(fn, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		if log != nil {
			log.Warn("retrying", "op", op, "wait", wait, "error", err)
		}
	})
}
