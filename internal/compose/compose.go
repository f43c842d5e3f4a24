// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package compose drives the container deployment through the docker
// compose plugin.
package compose

import (
	"context"
	"os/exec"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("deckhand.compose")

// ServiceName is the compose service running the sync container.
const ServiceName = "anki"

// Compose drives one compose project file.
type Compose struct {
	file string
	run  func(ctx context.Context, command string, args ...string) (string, error)
}

// New returns a Compose over the given project file, shelling out to
// the real docker compose plugin.
func New(file string) *Compose {
	return NewWithRunner(file, runCommandContext)
}

// NewWithRunner is New with an explicit command runner, for tests.
func NewWithRunner(file string, run func(ctx context.Context, command string, args ...string) (string, error)) *Compose {
	return &Compose{file: file, run: run}
}

func runCommandContext(ctx context.Context, command string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, command, args...).CombinedOutput()
	return string(out), err
}

func (c *Compose) compose(ctx context.Context, args ...string) (string, error) {
	return c.run(ctx, "docker", append([]string{"compose", "-f", c.file}, args...)...)
}

// Pull fetches the current image for service. Failure leaves any
// locally cached image in place, so callers may treat it as
// best-effort before Up.
func (c *Compose) Pull(ctx context.Context, service string) error {
	out, err := c.compose(ctx, "pull", service)
	if err != nil {
		return errors.Annotatef(err, "pulling %q: %s", service, strings.TrimSpace(out))
	}
	return nil
}

// Up brings the project up detached. Compose converges services that
// are already running, so Up is safe to repeat.
func (c *Compose) Up(ctx context.Context) error {
	out, err := c.compose(ctx, "up", "-d")
	if err != nil {
		return errors.Annotatef(err, "starting project: %s", strings.TrimSpace(out))
	}
	logger.Infof("compose project %s is up", c.file)
	return nil
}

// Restart restarts service in place.
func (c *Compose) Restart(ctx context.Context, service string) error {
	out, err := c.compose(ctx, "restart", service)
	if err != nil {
		return errors.Annotatef(err, "restarting %q: %s", service, strings.TrimSpace(out))
	}
	logger.Infof("restarted service %q", service)
	return nil
}
