// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// deckhand deploys and operates a self-hosted Anki sync service:
// a one-shot bootstrap to a healthy TLS-terminated deployment, plus
// the recurring sync and restart operations its timers invoke.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/juju/cmd/v3"
)

func main() {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		cmd.WriteError(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(cmd.Main(NewDeckhandCommand(), ctx, os.Args[1:]))
}

const deckhandDoc = `
deckhand brings a containerized Anki sync server to a healthy,
securely reachable state and keeps it that way. bootstrap runs the
whole sequence: install host packages, record deployment inputs,
render the reverse proxy configuration matching certificate state,
start the service, acquire a TLS certificate, and install the
recurring sync and restart schedules. The remaining subcommands are
the individual operations bootstrap composes, for reruns and for the
installed timers to invoke.
`

// NewDeckhandCommand returns the deckhand supercommand with every
// subcommand registered.
func NewDeckhandCommand() *cmd.SuperCommand {
	deckhand := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:    "deckhand",
		Purpose: "deploy and operate a self-hosted Anki sync service",
		Doc:     strings.TrimSpace(deckhandDoc),
		Log: &cmd.Log{
			DefaultConfig: os.Getenv("DECKHAND_LOGGING_CONFIG"),
		},
	})
	deckhand.Register(newBootstrapCommand())
	deckhand.Register(newRenderCommand())
	deckhand.Register(newAcquireCertCommand())
	deckhand.Register(newRestartCommand())
	deckhand.Register(newSyncCommand())
	deckhand.Register(newEnvCommand())
	return deckhand
}

// interruptibleContext returns a context cancelled by SIGINT or
// SIGTERM, so an operator interrupt stops retry loops at the next
// delay instead of killing the process mid-write.
func interruptibleContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
