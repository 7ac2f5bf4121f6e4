package resolver

import (
	"context"
	"errors"
	"fmt"
)

// Backend answers a single DNS question.
type Backend interface {
	Name() string
	Lookup(ctx context.Context, host string, qtype uint16) ([]Answer, error)
}

// Chain tries backends in order until one answers with records.
type Chain struct {
	backends []Backend
}

// NewChain returns a chain over backends.
func NewChain(backends ...Backend) *Chain {
	return &Chain{backends: backends}
}

// Lookup returns the first non-empty successful answer. When every backend
// answered empty the result is empty; when every backend failed the joined
// error is returned.
func (c *Chain) Lookup(ctx context.Context, host string, qtype uint16) ([]Answer, error) {
	if len(c.backends) == 0 {
		return nil, errors.New("resolver: no backends configured")
	}
	var (
		errs     []error
		answered bool
	)
	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		answers, err := b.Lookup(ctx, host, qtype)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		answered = true
		if len(answers) > 0 {
			return answers, nil
		}
	}
	if answered {
		return nil, nil
	}
	return nil, errors.Join(errs...)
}
