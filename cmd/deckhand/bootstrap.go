// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"os"
	"strings"

	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/canonical/deckhand/internal/bootstrap"
	"github.com/canonical/deckhand/internal/certissuer"
	"github.com/canonical/deckhand/internal/certstate"
	"github.com/canonical/deckhand/internal/compose"
	"github.com/canonical/deckhand/internal/envfile"
	"github.com/canonical/deckhand/internal/nginx"
	"github.com/canonical/deckhand/internal/packaging"
	"github.com/canonical/deckhand/internal/schedule"
)

func newBootstrapCommand() cmd.Command {
	return &bootstrapCommand{}
}

const bootstrapDoc = `
bootstrap runs the full deployment sequence: install host packages,
record the provided inputs in the deployment's .env file, render the
reverse proxy configuration matching current certificate state, start
the sync service, acquire a TLS certificate when the domain has none,
re-render and reload the proxy, and install the recurring sync and
restart timers.

Every stage is idempotent, so rerunning bootstrap converges an
existing deployment rather than damaging it. Inputs omitted here keep
whatever the deployment already has recorded.
`

// bootstrapCommand runs the full deployment sequence.
type bootstrapCommand struct {
	deploymentCommand

	domain    string
	email     string
	syncUser  string
	syncKey   string
	image     string
	syncMedia string
}

// Info implements cmd.Command.
func (c *bootstrapCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "bootstrap",
		Purpose: "deploy the sync service end to end",
		Doc:     strings.TrimSpace(bootstrapDoc),
	}
}

// SetFlags implements cmd.Command.
func (c *bootstrapCommand) SetFlags(f *gnuflag.FlagSet) {
	c.deploymentCommand.SetFlags(f)
	f.StringVar(&c.domain, "domain", os.Getenv(envfile.KeyDomain), "public host name to deploy (required)")
	f.StringVar(&c.email, "email", os.Getenv(envfile.KeyEmail), "certificate authority contact address")
	f.StringVar(&c.syncUser, "sync-user", os.Getenv(envfile.KeySyncUser), "account the recurring collection sync authenticates as")
	f.StringVar(&c.syncKey, "sync-key", os.Getenv(envfile.KeySyncKey), "credential for the sync account")
	f.StringVar(&c.image, "image", os.Getenv(envfile.KeyImage), "container image override")
	f.StringVar(&c.syncMedia, "sync-media", "", "whether the recurring sync includes media (true/false)")
}

// Init implements cmd.Command.
func (c *bootstrapCommand) Init(args []string) error {
	if c.domain == "" {
		return errors.NotValidf("empty domain")
	}
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *bootstrapCommand) Run(ctx *cmd.Context) error {
	execPath, err := osExecutable()
	if err != nil {
		return errors.Annotate(err, "locating own binary")
	}
	dep := c.deployment()
	prober := certstate.NewProber(certDir)
	issuer, err := certissuer.New(certissuer.Config{
		Prober:         prober,
		AccountKeyPath: dep.AccountKeyFile(),
		WebRoot:        dep.WebRoot(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	cfg := bootstrap.Config{
		Store:           c.store(),
		Renderer:        nginx.NewRenderer(dep.TemplateDir(), nginxConfPath, prober),
		Issuer:          issuer,
		Services:        compose.New(dep.ComposeFile()),
		Proxy:           nginx.NewController(),
		Schedules:       schedule.NewInstallerWithDefaults(),
		InstallPackages: packaging.EnsureInstalled,
		EnvTemplate:     dep.EnvTemplate(),
		ExecPath:        execPath,
		Domain:          c.domain,
		Email:           c.email,
		SyncUser:        c.syncUser,
		SyncKey:         c.syncKey,
		Image:           c.image,
		SyncMedia:       c.syncMedia,
	}
	runCtx, cancel := interruptibleContext()
	defer cancel()
	if err := runBootstrap(runCtx, cfg); err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("deployment of %s complete", c.domain)
	return nil
}

// Overloading points so tests can observe the assembled configuration
// without executing a real deployment.
var (
	osExecutable = os.Executable

	runBootstrap = func(ctx context.Context, cfg bootstrap.Config) error {
		orch, err := bootstrap.New(cfg)
		if err != nil {
			return errors.Trace(err)
		}
		return orch.Run(ctx)
	}
)
