// Package retry wraps github.com/cenkalti/backoff/v4 with the fixed-delay
// policy the CRM adapters retry HTTP calls under: three retries, a
// flat 5-second delay, only on transient network failures and 5xx — 4xx
// responses are classified Permanent and never retried.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
)

const maxRetries = 3

// Interval is the flat delay between retries; 5 seconds in production, overridden
// by tests so they don't spend 15 real seconds exhausting retries.
var Interval = 5 * time.Second

// Do runs op, retrying up to maxRetries times with a flat delay (Interval)
// when op returns a *domain.Error whose Kind is retryable. Any
// other error — including KindPermanent for 4xx responses — is returned
// immediately without retrying.
func Do(ctx context.Context, op func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(Interval), maxRetries)
	withCtx := backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}

		var domainErr *domain.Error
		if errors.As(err, &domainErr) && domainErr.Kind.IsRetryable() {
			return err
		}

		return backoff.Permanent(err)
	}, withCtx)
}
