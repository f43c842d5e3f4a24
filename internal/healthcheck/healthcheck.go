// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package healthcheck runs bounded verify cycles against the sync
// service: an optional corrective action followed by repeated probes
// until one succeeds or the attempt budget is spent. The cycles are
// what the recurring schedules fire, so they must terminate within
// their budget without supervision.
package healthcheck

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("deckhand.healthcheck")

// CheckArgs describes a single verify cycle.
type CheckArgs struct {
	// Action optionally mutates the system before probing begins,
	// such as restarting the service. It runs exactly once.
	Action func(ctx context.Context) error

	// Probe reports whether the service is healthy. Required.
	Probe func(ctx context.Context) error

	// Attempts bounds how many times Probe runs. Required.
	Attempts int

	// Delay separates consecutive probe attempts.
	Delay time.Duration

	// Settle is waited between the action and the first probe,
	// giving the service time to come back up. Ignored when there
	// is no Action.
	Settle time.Duration

	// ActionTimeout bounds the action's execution when non-zero.
	ActionTimeout time.Duration

	// Clock times the waits. Required.
	Clock clock.Clock
}

// Validate implements Config validation on the args.
func (args CheckArgs) Validate() error {
	if args.Probe == nil {
		return errors.NotValidf("nil Probe")
	}
	if args.Attempts < 1 {
		return errors.NotValidf("Attempts %d", args.Attempts)
	}
	if args.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Run executes args.Action once, waits for the settle delay, then
// probes until the first success or the attempt budget is spent.
// Failure of the action aborts the cycle; probe failures are retried
// and the last one is returned once attempts are exhausted. The whole
// cycle stops early when ctx is cancelled.
func Run(ctx context.Context, args CheckArgs) error {
	if err := args.Validate(); err != nil {
		return errors.Trace(err)
	}
	if args.Action != nil {
		if err := runAction(ctx, args); err != nil {
			return errors.Trace(err)
		}
		if args.Settle > 0 {
			logger.Debugf("waiting %s for the service to settle", args.Settle)
			select {
			case <-args.Clock.After(args.Settle):
			case <-ctx.Done():
				return errors.Trace(ctx.Err())
			}
		}
	}
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return args.Probe(ctx)
		},
		NotifyFunc: func(lastError error, attempt int) {
			logger.Warningf("health probe attempt %d of %d failed: %v", attempt, args.Attempts, lastError)
		},
		Attempts: args.Attempts,
		Delay:    args.Delay,
		Clock:    args.Clock,
		Stop:     ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) {
		return errors.Annotatef(retry.LastError(err), "service still unhealthy after %d attempts", args.Attempts)
	}
	return errors.Trace(err)
}

func runAction(ctx context.Context, args CheckArgs) error {
	if args.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, args.ActionTimeout)
		defer cancel()
	}
	return errors.Trace(args.Action(ctx))
}
