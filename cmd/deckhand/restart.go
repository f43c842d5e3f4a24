// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/cmd/v3"
	"github.com/juju/errors"

	"github.com/canonical/deckhand/internal/ankiconnect"
	"github.com/canonical/deckhand/internal/compose"
	"github.com/canonical/deckhand/internal/healthcheck"
)

func newRestartCommand() cmd.Command {
	return &restartCommand{}
}

const restartDoc = `
restart restarts the sync service container and verifies it answers
its version endpoint again, retrying the probe on a fixed budget.
This is the entry point the daily restart timer invokes; a non-zero
exit means the service did not come back healthy.
`

// restartCommand restarts the service and verifies it recovers.
type restartCommand struct {
	deploymentCommand
}

// Info implements cmd.Command.
func (c *restartCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "restart",
		Purpose: "restart the sync service and verify it recovers",
		Doc:     strings.TrimSpace(restartDoc),
	}
}

// Run implements cmd.Command.
func (c *restartCommand) Run(ctx *cmd.Context) error {
	runCtx, cancel := interruptibleContext()
	defer cancel()
	services := compose.New(c.deployment().ComposeFile())
	restart := func(ctx context.Context) error {
		return services.Restart(ctx, compose.ServiceName)
	}
	if err := restartCycle(runCtx, restart, ankiconnect.NewClient("", nil), clock.WallClock); err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("service restarted and healthy")
	return nil
}

var restartCycle = healthcheck.RestartCycle
