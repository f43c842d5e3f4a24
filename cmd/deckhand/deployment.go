// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os"

	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/canonical/deckhand/internal/envfile"
	"github.com/canonical/deckhand/internal/paths"
)

// Certificate material and the rendered proxy configuration live at
// fixed system locations outside the deployment root. Vars so tests
// can redirect them.
var (
	certDir       = paths.DefaultCertDir
	nginxConfPath = paths.DefaultNginxConfPath
)

// deploymentCommand is the base of subcommands operating on a
// deployment on disk. The root comes from --root, the DECKHAND_ROOT
// environment variable, or the packaged default, in that order.
type deploymentCommand struct {
	cmd.CommandBase
	root string
}

func (c *deploymentCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.root, "root", os.Getenv("DECKHAND_ROOT"), "deployment root directory")
}

// deployment resolves the deployment's paths for the selected root.
func (c *deploymentCommand) deployment() paths.Deployment {
	return paths.NewDeployment(c.root)
}

// store opens the deployment's configuration record.
func (c *deploymentCommand) store() *envfile.Store {
	return envfile.NewStore(c.deployment().EnvFile())
}

// requiredValue reads key from the store, failing plainly when the
// deployment has no value recorded for it yet.
func requiredValue(store *envfile.Store, key string) (string, error) {
	value, ok, err := store.Lookup(key)
	if err != nil {
		return "", errors.Trace(err)
	}
	if !ok || value == "" {
		return "", errors.NotValidf("%s missing from %s", key, store.Path())
	}
	return value, nil
}
