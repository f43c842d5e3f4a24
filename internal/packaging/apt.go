// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package packaging installs the host packages the deployment needs.
package packaging

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("deckhand.packaging")

// DefaultPackages is everything bootstrap expects on the host: the
// container runtime, the compose plugin and the reverse proxy.
var DefaultPackages = []string{"docker.io", "docker-compose-v2", "nginx"}

// osRunCommand calls cmd.Run, this is used as an overloading point so
// we can test what *would* be run without actually executing another
// program.
func osRunCommand(cmd *exec.Cmd) error {
	return cmd.Run()
}

var runCommand = osRunCommand

// osCommandOutput calls cmd.CombinedOutput, this is used as an
// overloading point so we can test what *would* be run without
// actually executing another program.
func osCommandOutput(cmd *exec.Cmd) ([]byte, error) {
	return cmd.CombinedOutput()
}

var commandOutput = osCommandOutput

// The apt-get command used by cloud-init; the various settings mean
// that apt won't block waiting for a prompt from the user.
var aptGetCommand = []string{
	"apt-get", "--option=Dpkg::Options::=--force-confold",
	"--option=Dpkg::options::=--force-unsafe-io", "--assume-yes", "--quiet",
}

var aptGetEnvOptions = []string{"DEBIAN_FRONTEND=noninteractive"}

// IsInstalled reports whether the named package is installed.
func IsInstalled(pkg string) bool {
	cmd := exec.Command("dpkg-query", "-s", pkg)
	return runCommand(cmd) == nil
}

// EnsureInstalled installs the named packages, skipping any that are
// already installed so that repeated bootstraps converge without
// touching apt.
func EnsureInstalled(ctx context.Context, packages ...string) error {
	missing := set.NewStrings()
	for _, pkg := range packages {
		if IsInstalled(pkg) {
			logger.Debugf("package %q already installed", pkg)
			continue
		}
		missing.Add(pkg)
	}
	if missing.IsEmpty() {
		logger.Infof("all requested packages already installed")
		return nil
	}

	args := append([]string(nil), aptGetCommand...)
	args = append(args, "install")
	args = append(args, missing.SortedValues()...)
	logger.Infof("installing packages: %s", strings.Join(missing.SortedValues(), " "))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = append(os.Environ(), aptGetEnvOptions...)
	if out, err := commandOutput(cmd); err != nil {
		return errors.Annotatef(err, "installing %s: %s",
			strings.Join(missing.SortedValues(), " "), strings.TrimSpace(string(out)))
	}
	return nil
}
