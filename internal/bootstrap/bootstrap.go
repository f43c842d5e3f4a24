// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package bootstrap drives the staged sequence that takes a fresh
// host to a healthy, securely reachable sync service. Every stage
// re-derives its preconditions from current machine state, so an
// interrupted run is retried by running the whole sequence again
// rather than by rolling anything back.
package bootstrap

import (
	"context"
	"regexp"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/canonical/deckhand/internal/certstate"
	"github.com/canonical/deckhand/internal/compose"
	"github.com/canonical/deckhand/internal/envfile"
	"github.com/canonical/deckhand/internal/packaging"
	"github.com/canonical/deckhand/internal/schedule"
)

var logger = loggo.GetLogger("deckhand.bootstrap")

// acquireTimeout bounds the whole certificate authority exchange,
// including the authority's validation polling.
const acquireTimeout = 5 * time.Minute

// domainPattern accepts fully qualified host names: dot-separated
// labels of letters, digits and inner hyphens, ending in an
// alphabetic top-level label.
var domainPattern = regexp.MustCompile(`^(?i:[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+(?i:[a-z]{2,})$`)

// SecretStore persists deployment inputs between runs and for the
// recurring cycles.
type SecretStore interface {
	SeedFrom(templatePath string) error
	Set(key, value string) error
	Lookup(key string) (string, bool, error)
}

// ConfigRenderer writes the reverse proxy configuration variant
// matching the current certificate state.
type ConfigRenderer interface {
	Render(domain string) (certstate.Presence, error)
}

// CertIssuer ensures the domain holds a complete certificate pair.
type CertIssuer interface {
	Ensure(ctx context.Context, domain, email string) error
}

// ServiceRunner drives the container deployment.
type ServiceRunner interface {
	Pull(ctx context.Context, service string) error
	Up(ctx context.Context) error
}

// ProxyController applies rendered configuration to the running
// reverse proxy.
type ProxyController interface {
	Reload() error
}

// TriggerInstaller installs recurring triggers on the host scheduler.
type TriggerInstaller interface {
	Install(schedule.Trigger) error
}

// Config holds the collaborators and inputs of a bootstrap run.
type Config struct {
	// Store persists deployment inputs.
	Store SecretStore

	// Renderer writes the proxy configuration for Domain.
	Renderer ConfigRenderer

	// Issuer acquires the certificate pair when the domain has none.
	Issuer CertIssuer

	// Services runs the container deployment.
	Services ServiceRunner

	// Proxy reloads the reverse proxy after rendering.
	Proxy ProxyController

	// Schedules installs the recurring sync and restart triggers.
	Schedules TriggerInstaller

	// InstallPackages installs host packages. Packages lists the
	// ones the deployment needs; empty selects the default set.
	InstallPackages func(ctx context.Context, packages ...string) error
	Packages        []string

	// EnvTemplate is the file seeding the secret store on first run.
	EnvTemplate string

	// ExecPath is the absolute path of this binary, recorded as the
	// command of the recurring trigger units.
	ExecPath string

	// Domain is the public host name being deployed.
	Domain string

	// Email, SyncUser, SyncKey, Image and SyncMedia are optional
	// inputs recorded in the secret store when non-empty. Email is
	// required indirectly: certificate acquisition fails unless the
	// store holds a contact address by the time that stage runs.
	Email     string
	SyncUser  string
	SyncKey   string
	Image     string
	SyncMedia string
}

// Validate returns an error when the configuration cannot drive a
// bootstrap run.
func (cfg Config) Validate() error {
	if cfg.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if cfg.Renderer == nil {
		return errors.NotValidf("nil Renderer")
	}
	if cfg.Issuer == nil {
		return errors.NotValidf("nil Issuer")
	}
	if cfg.Services == nil {
		return errors.NotValidf("nil Services")
	}
	if cfg.Proxy == nil {
		return errors.NotValidf("nil Proxy")
	}
	if cfg.Schedules == nil {
		return errors.NotValidf("nil Schedules")
	}
	if cfg.InstallPackages == nil {
		return errors.NotValidf("nil InstallPackages")
	}
	if cfg.EnvTemplate == "" {
		return errors.NotValidf("empty EnvTemplate")
	}
	if cfg.ExecPath == "" {
		return errors.NotValidf("empty ExecPath")
	}
	if cfg.Domain == "" {
		return errors.NotValidf("empty domain")
	}
	if !domainPattern.MatchString(cfg.Domain) {
		return errors.NotValidf("domain %q", cfg.Domain)
	}
	return nil
}

// Orchestrator runs the bootstrap stages in order.
type Orchestrator struct {
	cfg Config
}

// New returns an Orchestrator for the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if len(cfg.Packages) == 0 {
		cfg.Packages = packaging.DefaultPackages
	}
	return &Orchestrator{cfg: cfg}, nil
}

// stage is one step of the bootstrap sequence. Stages are idempotent:
// each inspects current state and converges it rather than assuming a
// fresh host.
type stage struct {
	description string
	run         func(context.Context) error
}

// Run executes the stage sequence, stopping at the first failure.
// The returned error carries the failing stage's description.
func (o *Orchestrator) Run(ctx context.Context) error {
	stages := []stage{
		{"install host packages", o.installPackages},
		{"materialize secret store", o.materializeSecrets},
		{"render pre-certificate proxy configuration", o.renderPreCert},
		{"start services", o.startServices},
		{"acquire certificate", o.acquireCertificate},
		{"render post-certificate proxy configuration", o.renderPostCert},
		{"reload proxy", o.reloadProxy},
		{"install recurring triggers", o.installTriggers},
	}
	for _, s := range stages {
		logger.Infof("running bootstrap stage %q", s.description)
		if err := s.run(ctx); err != nil {
			logger.Errorf("bootstrap stage %q failed: %v", s.description, err)
			return errors.Annotate(err, s.description)
		}
	}
	logger.Infof("all bootstrap stages completed successfully")
	return nil
}

func (o *Orchestrator) installPackages(ctx context.Context) error {
	return errors.Trace(o.cfg.InstallPackages(ctx, o.cfg.Packages...))
}

// materializeSecrets seeds the store from the template on first run,
// then records every input provided on this run. Inputs left empty
// keep whatever the store already holds.
func (o *Orchestrator) materializeSecrets(ctx context.Context) error {
	if err := o.cfg.Store.SeedFrom(o.cfg.EnvTemplate); err != nil {
		return errors.Trace(err)
	}
	for _, entry := range []struct{ key, value string }{
		{envfile.KeyDomain, o.cfg.Domain},
		{envfile.KeyEmail, o.cfg.Email},
		{envfile.KeySyncUser, o.cfg.SyncUser},
		{envfile.KeySyncKey, o.cfg.SyncKey},
		{envfile.KeyImage, o.cfg.Image},
		{envfile.KeySyncMedia, o.cfg.SyncMedia},
	} {
		if entry.value == "" {
			continue
		}
		if err := o.cfg.Store.Set(entry.key, entry.value); err != nil {
			return errors.Annotatef(err, "recording %s", entry.key)
		}
	}
	return nil
}

func (o *Orchestrator) renderPreCert(ctx context.Context) error {
	presence, err := o.cfg.Renderer.Render(o.cfg.Domain)
	if err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("pre-certificate proxy configuration rendered (%s)", presence)
	return nil
}

// startServices pulls the service image on a best effort basis and
// brings the deployment up. A pull failure only logs a warning so an
// already present image keeps a disconnected host bootstrappable.
func (o *Orchestrator) startServices(ctx context.Context) error {
	if err := o.cfg.Services.Pull(ctx, compose.ServiceName); err != nil {
		logger.Warningf("image pull failed, continuing with any local image: %v", err)
	}
	return errors.Trace(o.cfg.Services.Up(ctx))
}

// acquireCertificate reads the contact address back from the store
// rather than from this run's inputs, so a rerun after the address
// was recorded once does not need it repeated.
func (o *Orchestrator) acquireCertificate(ctx context.Context) error {
	email, ok, err := o.cfg.Store.Lookup(envfile.KeyEmail)
	if err != nil {
		return errors.Trace(err)
	}
	if !ok || email == "" {
		return errors.NotValidf("certificate acquisition without %s in the secret store", envfile.KeyEmail)
	}
	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	return errors.Trace(o.cfg.Issuer.Ensure(ctx, o.cfg.Domain, email))
}

func (o *Orchestrator) renderPostCert(ctx context.Context) error {
	presence, err := o.cfg.Renderer.Render(o.cfg.Domain)
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("proxy configuration rendered (%s)", presence)
	return nil
}

func (o *Orchestrator) reloadProxy(ctx context.Context) error {
	return errors.Trace(o.cfg.Proxy.Reload())
}

func (o *Orchestrator) installTriggers(ctx context.Context) error {
	for _, t := range []schedule.Trigger{
		schedule.SyncTrigger(o.cfg.ExecPath + " sync"),
		schedule.RestartTrigger(o.cfg.ExecPath + " restart"),
	} {
		if err := o.cfg.Schedules.Install(t); err != nil {
			return errors.Annotatef(err, "installing %q", t.Name)
		}
	}
	return nil
}
