// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"strings"

	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
)

const envDoc = `
env reads and writes the deployment's .env file, the record of every
deployment input. Values written here are picked up by the next
render, acquire-cert or bootstrap run, and by the service container
the next time it starts.
`

// newEnvCommand creates the "env" supercommand and registers the
// subcommands it supports.
func newEnvCommand() cmd.Command {
	env := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:        "env",
		Purpose:     "read and write deployment configuration",
		Doc:         strings.TrimSpace(envDoc),
		UsagePrefix: "deckhand",
	})
	env.Register(&envGetCommand{})
	env.Register(&envSetCommand{})
	return env
}

// envGetCommand prints one recorded deployment value.
type envGetCommand struct {
	deploymentCommand
	key string
}

// Info implements cmd.Command.
func (c *envGetCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "get",
		Args:    "<key>",
		Purpose: "print one recorded deployment value",
	}
}

// Init implements cmd.Command.
func (c *envGetCommand) Init(args []string) error {
	if len(args) == 0 {
		return errors.New("no key specified")
	}
	c.key = args[0]
	return cmd.CheckEmpty(args[1:])
}

// Run implements cmd.Command.
func (c *envGetCommand) Run(ctx *cmd.Context) error {
	value, ok, err := c.store().Lookup(c.key)
	if err != nil {
		return errors.Trace(err)
	}
	if !ok {
		return errors.NotFoundf("key %q", c.key)
	}
	fmt.Fprintln(ctx.Stdout, value)
	return nil
}

// envSetCommand records one deployment value.
type envSetCommand struct {
	deploymentCommand
	key   string
	value string
}

// Info implements cmd.Command.
func (c *envSetCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "set",
		Args:    "<key> <value>",
		Purpose: "record one deployment value",
	}
}

// Init implements cmd.Command.
func (c *envSetCommand) Init(args []string) error {
	if len(args) < 2 {
		return errors.New("a key and a value are required")
	}
	c.key, c.value = args[0], args[1]
	return cmd.CheckEmpty(args[2:])
}

// Run implements cmd.Command.
func (c *envSetCommand) Run(ctx *cmd.Context) error {
	return errors.Trace(c.store().Set(c.key, c.value))
}
