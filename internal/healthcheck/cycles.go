// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package healthcheck

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

// Budgets for the two recurring cycles. A cycle never runs longer
// than its attempts times its delay, plus the settle wait and one
// action timeout.
const (
	RestartAttempts      = 10
	RestartDelay         = 6 * time.Second
	RestartSettle        = 15 * time.Second
	RestartActionTimeout = 2 * time.Minute

	SyncAttempts = 3
	SyncDelay    = 20 * time.Second
)

// VersionProber asks the sync service for its protocol version.
type VersionProber interface {
	Version(ctx context.Context) (int, error)
}

// Syncer triggers a collection sync on the service.
type Syncer interface {
	Sync(ctx context.Context) error
}

// RestartCycle restarts the sync container and probes the service
// version until it answers again. An error free version response is
// proof of liveness; the result value itself does not matter.
func RestartCycle(ctx context.Context, restart func(ctx context.Context) error, prober VersionProber, clk clock.Clock) error {
	err := Run(ctx, CheckArgs{
		Action: restart,
		Probe: func(ctx context.Context) error {
			version, err := prober.Version(ctx)
			if err != nil {
				return errors.Trace(err)
			}
			logger.Debugf("service answered with protocol version %d", version)
			return nil
		},
		Attempts:      RestartAttempts,
		Delay:         RestartDelay,
		Settle:        RestartSettle,
		ActionTimeout: RestartActionTimeout,
		Clock:         clk,
	})
	return errors.Trace(err)
}

// SyncCycle triggers a collection sync and verifies it succeeded,
// retrying a failed sync within the cycle budget. The service
// reports sync failures in the response's error field, so a
// completed request is not by itself a success.
func SyncCycle(ctx context.Context, syncer Syncer, clk clock.Clock) error {
	err := Run(ctx, CheckArgs{
		Probe:    syncer.Sync,
		Attempts: SyncAttempts,
		Delay:    SyncDelay,
		Clock:    clk,
	})
	return errors.Trace(err)
}
