package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles every call to the wrapped provider with a token bucket.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

var _ Provider = (*RateLimited)(nil)

// NewRateLimited wraps p with a limiter of rps requests per second and the
// given burst.
func NewRateLimited(p Provider, rps float64, burst int) *RateLimited {
	return &RateLimited{next: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) CreateContainer(ctx context.Context, spec ContainerSpec) (Container, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Container{}, err
	}
	return r.next.CreateContainer(ctx, spec)
}

func (r *RateLimited) GetContainer(ctx context.Context, name string) (Container, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Container{}, err
	}
	return r.next.GetContainer(ctx, name)
}

func (r *RateLimited) DeleteContainer(ctx context.Context, name string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.DeleteContainer(ctx, name)
}

func (r *RateLimited) ValidateTemplate(ctx context.Context, sub Submission) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.ValidateTemplate(ctx, sub)
}

func (r *RateLimited) Submit(ctx context.Context, sub Submission) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.Submit(ctx, sub)
}

func (r *RateLimited) GetStatus(ctx context.Context, container, deploymentName string) (Status, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Status{}, err
	}
	return r.next.GetStatus(ctx, container, deploymentName)
}
