/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package exports

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/redhatinsights/deid-export-go/config"
)

// RetryPolicy bounds the attempts around a file transfer. Backoff grows by
// Multiplier from InitialBackoff up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Multiplier:     cfg.Multiplier,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff is the policy as a wait.Backoff. Each Step is one attempt. Once the
// delay reaches MaxBackoff the sequence ends, so the cap also bounds the
// number of retries.
func (p RetryPolicy) Backoff() wait.Backoff {
	return wait.Backoff{
		Duration: p.InitialBackoff,
		Factor:   p.Multiplier,
		Cap:      p.MaxBackoff,
		Steps:    p.attempts(),
	}
}

// Do runs op until it succeeds or the attempts are used up and returns the
// last error. onRetry is called before every wait. A cancelled ctx stops the
// retries and is returned as the error.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, onRetry func(attempt int, err error)) error {
	attempt := 0
	err := retry.OnError(p.Backoff(), func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		if attempt < p.attempts() && onRetry != nil {
			onRetry(attempt, err)
		}
		return true
	}, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		return op(ctx)
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
