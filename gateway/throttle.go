package gateway

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/helicase/mdq/errors"
	"github.com/helicase/mdq/job"
)

// throttled rate-limits every scheduler command behind a shared token
// bucket. Sync passes, submissions and cancels all draw from the same
// budget so a busy reconciler can never starve the login node.
type throttled struct {
	inner   Gateway
	limiter *rate.Limiter
}

type throttledDiscoverer struct {
	throttled
	inner Discoverer
}

// NewThrottled wraps a gateway with a calls-per-minute budget. The wrapper
// preserves the inner gateway's discovery capability. callsPerMinute <= 0
// disables throttling.
func NewThrottled(inner Gateway, callsPerMinute int) Gateway {
	if callsPerMinute <= 0 {
		return inner
	}
	t := throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), callsPerMinute),
	}
	if d, ok := inner.(Discoverer); ok {
		return &throttledDiscoverer{throttled: t, inner: d}
	}
	return &t
}

func (t *throttled) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.ErrTimeout, "rate limit wait aborted")
	}
	return nil
}

func (t *throttled) Submit(ctx context.Context, j *job.Job) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.inner.Submit(ctx, j)
}

func (t *throttled) QueryStatus(ctx context.Context, remoteID string) (*StatusReport, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.QueryStatus(ctx, remoteID)
}

func (t *throttled) Cancel(ctx context.Context, remoteID string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.inner.Cancel(ctx, remoteID)
}

func (t *throttledDiscoverer) ListOwnedJobs(ctx context.Context) ([]RemoteJob, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.ListOwnedJobs(ctx)
}
