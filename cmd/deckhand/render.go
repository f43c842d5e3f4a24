// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"strings"

	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/canonical/deckhand/internal/certstate"
	"github.com/canonical/deckhand/internal/envfile"
	"github.com/canonical/deckhand/internal/nginx"
)

func newRenderCommand() cmd.Command {
	return &renderCommand{}
}

const renderDoc = `
render writes the reverse proxy configuration for the deployment's
domain, selecting the TLS variant when the domain's certificate pair
exists and the plain HTTP variant otherwise. With --reload the proxy
configuration is checked and the proxy reloaded afterwards.

The domain is read from the deployment's .env file.
`

// renderCommand renders the proxy configuration once.
type renderCommand struct {
	deploymentCommand
	reload bool
}

// Info implements cmd.Command.
func (c *renderCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "render",
		Purpose: "render the reverse proxy configuration",
		Doc:     strings.TrimSpace(renderDoc),
	}
}

// SetFlags implements cmd.Command.
func (c *renderCommand) SetFlags(f *gnuflag.FlagSet) {
	c.deploymentCommand.SetFlags(f)
	f.BoolVar(&c.reload, "reload", false, "verify and reload the proxy after rendering")
}

// Run implements cmd.Command.
func (c *renderCommand) Run(ctx *cmd.Context) error {
	domain, err := requiredValue(c.store(), envfile.KeyDomain)
	if err != nil {
		return errors.Trace(err)
	}
	dep := c.deployment()
	renderer := nginx.NewRenderer(dep.TemplateDir(), nginxConfPath, certstate.NewProber(certDir))
	presence, err := renderer.Render(domain)
	if err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("rendered %s configuration for %s", presence, domain)
	if !c.reload {
		return nil
	}
	return errors.Trace(newProxy().Reload())
}

// proxyReloader is what render needs from nginx.Controller.
type proxyReloader interface {
	Reload() error
}

var newProxy = func() proxyReloader {
	return nginx.NewController()
}
