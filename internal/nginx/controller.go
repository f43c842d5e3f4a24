// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package nginx

import (
	"strings"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// Controller verifies and reloads the proxy daemon.
type Controller struct {
	run func(command string, args ...string) (string, error)
}

// NewController returns a Controller shelling out to the real daemon
// tools.
func NewController() *Controller {
	return NewControllerWithRunner(utils.RunCommand)
}

// NewControllerWithRunner is NewController with an explicit command
// runner, for tests.
func NewControllerWithRunner(run func(command string, args ...string) (string, error)) *Controller {
	return &Controller{run: run}
}

// Verify asks the daemon to parse the active configuration without
// applying it.
func (c *Controller) Verify() error {
	out, err := c.run("nginx", "-t")
	if err != nil {
		return errors.Annotatef(err, "proxy configuration check failed: %s", strings.TrimSpace(out))
	}
	return nil
}

// Reload verifies the active configuration and then asks the running
// daemon to re-read it. A configuration that fails verification is
// never applied.
func (c *Controller) Reload() error {
	if err := c.Verify(); err != nil {
		return errors.Trace(err)
	}
	out, err := c.run("systemctl", "reload", "nginx")
	if err != nil {
		return errors.Annotatef(err, "proxy reload failed: %s", strings.TrimSpace(out))
	}
	logger.Infof("proxy configuration reloaded")
	return nil
}
