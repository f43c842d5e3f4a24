// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package certstate answers the one question the renderer and the
// certificate issuer branch on: does issued certificate material
// exist for the deployment domain right now. Certificate directories
// are typically readable only by root, so the probe tolerates a
// privilege boundary by retrying denied checks through an elevated
// accessor.
package certstate

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"
)

var logger = loggo.GetLogger("deckhand.certstate")

// Presence is the two-variant certificate state a probe reports. It
// selects which reverse proxy configuration variant is rendered.
type Presence int

const (
	// CertificateAbsent means the domain has no complete certificate
	// pair and only the plain HTTP variant can be served.
	CertificateAbsent Presence = iota

	// CertificatePresent means both the chain and the private key
	// exist and the TLS variant can be served.
	CertificatePresent
)

// String is part of fmt.Stringer.
func (p Presence) String() string {
	if p == CertificatePresent {
		return "certificate-present"
	}
	return "certificate-absent"
}

// Accessor answers existence checks for paths that may sit behind a
// privilege boundary.
type Accessor interface {
	// Exists reports whether path exists. An error is returned only
	// when existence could not be determined, permission denial
	// included.
	Exists(path string) (bool, error)
}

// PlainAccessor checks existence under the invoking identity.
type PlainAccessor struct{}

// Exists is part of Accessor.
func (PlainAccessor) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Trace(err)
}

var runCommand = utils.RunCommand

// ElevatedAccessor checks existence through sudo for paths the
// invoking identity cannot read. sudo runs non-interactively; when
// elevation is unavailable the check reports absence rather than
// blocking on a password prompt.
type ElevatedAccessor struct{}

// Exists is part of Accessor.
func (ElevatedAccessor) Exists(path string) (bool, error) {
	// test -e exits non-zero for a missing path and sudo exits
	// non-zero when elevation is refused; neither case is
	// distinguishable nor needs to be, both resolve to absent.
	if _, err := runCommand("sudo", "-n", "test", "-e", path); err != nil {
		return false, nil
	}
	return true, nil
}

// Prober reports certificate presence for a domain. Every call
// inspects the filesystem afresh; results are never cached, since a
// certificate can appear between two probes of the same run.
type Prober struct {
	certDir  string
	plain    Accessor
	elevated Accessor
}

// NewProber returns a Prober over certDir using the plain and
// elevated filesystem accessors.
func NewProber(certDir string) *Prober {
	return NewProberWithAccessors(certDir, PlainAccessor{}, ElevatedAccessor{})
}

// NewProberWithAccessors is NewProber with explicit accessors, for
// tests and callers with their own privilege arrangements.
func NewProberWithAccessors(certDir string, plain, elevated Accessor) *Prober {
	return &Prober{certDir: certDir, plain: plain, elevated: elevated}
}

// ChainPath returns where the certificate chain for domain lives.
func (p *Prober) ChainPath(domain string) string {
	return filepath.Join(p.certDir, domain, "fullchain.pem")
}

// KeyPath returns where the private key for domain lives.
func (p *Prober) KeyPath(domain string) string {
	return filepath.Join(p.certDir, domain, "privkey.pem")
}

// Probe re-evaluates certificate presence for domain. Both the chain
// and the key must exist for CertificatePresent. Probe never fails:
// unreadable and missing paths both report CertificateAbsent.
func (p *Prober) Probe(domain string) Presence {
	if p.pathExists(p.ChainPath(domain)) && p.pathExists(p.KeyPath(domain)) {
		return CertificatePresent
	}
	return CertificateAbsent
}

// Exists reports Probe as a boolean.
func (p *Prober) Exists(domain string) bool {
	return p.Probe(domain) == CertificatePresent
}

func (p *Prober) pathExists(path string) bool {
	ok, err := p.plain.Exists(path)
	if err == nil {
		return ok
	}
	if !os.IsPermission(errors.Cause(err)) {
		logger.Debugf("existence check for %q failed: %v", path, err)
		return false
	}
	ok, err = p.elevated.Exists(path)
	if err != nil {
		logger.Debugf("elevated existence check for %q failed: %v", path, err)
		return false
	}
	return ok
}
