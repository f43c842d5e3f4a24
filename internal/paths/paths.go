// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package paths resolves the well-known file locations of a
// deployment from its root directory.
package paths

import (
	"path/filepath"
)

const (
	// DefaultRoot is where a deployment lives unless overridden.
	DefaultRoot = "/opt/deckhand"

	// DefaultNginxConfPath is the active reverse proxy configuration
	// written by the renderer.
	DefaultNginxConfPath = "/etc/nginx/conf.d/deckhand.conf"

	// DefaultCertDir holds issued certificate material, one directory
	// per domain.
	DefaultCertDir = "/etc/letsencrypt/live"
)

// Deployment derives every path used by the tool from a single root,
// so components never assemble paths themselves and tests can point
// the whole deployment at a temporary directory.
type Deployment struct {
	root string
}

// NewDeployment returns a Deployment rooted at root. An empty root
// selects DefaultRoot.
func NewDeployment(root string) Deployment {
	if root == "" {
		root = DefaultRoot
	}
	return Deployment{root: root}
}

// Root returns the deployment root directory.
func (d Deployment) Root() string {
	return d.root
}

// EnvFile is the persisted secret store.
func (d Deployment) EnvFile() string {
	return filepath.Join(d.root, ".env")
}

// EnvTemplate seeds the secret store on first bootstrap.
func (d Deployment) EnvTemplate() string {
	return filepath.Join(d.root, "env.template")
}

// TemplateDir holds the reverse proxy configuration templates.
func (d Deployment) TemplateDir() string {
	return filepath.Join(d.root, "templates")
}

// ComposeFile is the compose stack definition for the managed
// service.
func (d Deployment) ComposeFile() string {
	return filepath.Join(d.root, "docker-compose.yml")
}

// WebRoot is the document root that serves ACME HTTP-01 challenge
// responses.
func (d Deployment) WebRoot() string {
	return filepath.Join(d.root, "webroot")
}

// AccountKeyFile is the ACME account key.
func (d Deployment) AccountKeyFile() string {
	return filepath.Join(d.root, "acme", "account.key")
}
