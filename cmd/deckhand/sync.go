// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"strings"

	"github.com/juju/clock"
	"github.com/juju/cmd/v3"
	"github.com/juju/errors"

	"github.com/canonical/deckhand/internal/ankiconnect"
	"github.com/canonical/deckhand/internal/healthcheck"
)

func newSyncCommand() cmd.Command {
	return &syncCommand{}
}

const syncDoc = `
sync asks the running service to sync the Anki collection with its
configured remote and verifies the request succeeds, retrying on a
fixed budget. This is the entry point the recurring sync timer
invokes; a non-zero exit means every attempt failed.
`

// syncCommand triggers a collection sync and verifies it.
type syncCommand struct {
	cmd.CommandBase
}

// Info implements cmd.Command.
func (c *syncCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "sync",
		Purpose: "sync the Anki collection and verify it succeeds",
		Doc:     strings.TrimSpace(syncDoc),
	}
}

// Run implements cmd.Command.
func (c *syncCommand) Run(ctx *cmd.Context) error {
	runCtx, cancel := interruptibleContext()
	defer cancel()
	if err := syncCycle(runCtx, ankiconnect.NewClient("", nil), clock.WallClock); err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("collection synced")
	return nil
}

var syncCycle = healthcheck.SyncCycle
