// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"strings"
	"time"

	"github.com/juju/cmd/v3"
	"github.com/juju/errors"

	"github.com/canonical/deckhand/internal/certissuer"
	"github.com/canonical/deckhand/internal/certstate"
	"github.com/canonical/deckhand/internal/envfile"
)

func newAcquireCertCommand() cmd.Command {
	return &acquireCertCommand{}
}

// acquireTimeout bounds the certificate authority exchange, including
// the authority's validation polling.
const acquireTimeout = 5 * time.Minute

const acquireCertDoc = `
acquire-cert obtains a TLS certificate for the deployment's domain,
proving control of it with an HTTP-01 challenge served from the
deployment's webroot. When the domain's certificate pair already
exists the command does nothing.

The domain and the contact email must already be recorded in the
deployment's .env file.
`

// acquireCertCommand runs certificate acquisition on its own.
type acquireCertCommand struct {
	deploymentCommand
}

// Info implements cmd.Command.
func (c *acquireCertCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "acquire-cert",
		Purpose: "acquire a TLS certificate for the deployment's domain",
		Doc:     strings.TrimSpace(acquireCertDoc),
	}
}

// Run implements cmd.Command.
func (c *acquireCertCommand) Run(ctx *cmd.Context) error {
	store := c.store()
	domain, err := requiredValue(store, envfile.KeyDomain)
	if err != nil {
		return errors.Trace(err)
	}
	email, err := requiredValue(store, envfile.KeyEmail)
	if err != nil {
		return errors.Trace(err)
	}
	dep := c.deployment()
	issuer, err := newIssuer(certissuer.Config{
		Prober:         certstate.NewProber(certDir),
		AccountKeyPath: dep.AccountKeyFile(),
		WebRoot:        dep.WebRoot(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	runCtx, cancel := interruptibleContext()
	defer cancel()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, acquireTimeout)
	defer cancelTimeout()
	if err := issuer.Ensure(runCtx, domain, email); err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("certificate for %s in place", domain)
	return nil
}

// certIssuer is what acquire-cert needs from certissuer.Issuer.
type certIssuer interface {
	Ensure(ctx context.Context, domain, email string) error
}

var newIssuer = func(cfg certissuer.Config) (certIssuer, error) {
	return certissuer.New(cfg)
}
