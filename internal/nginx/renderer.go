// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package nginx renders the reverse proxy configuration for the sync
// service and drives the proxy daemon through its command line tools.
package nginx

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"

	"github.com/canonical/deckhand/internal/certstate"
)

var logger = loggo.GetLogger("deckhand.nginx")

// Placeholder is the token substituted with the deployment domain in
// both configuration templates.
const Placeholder = "{{DOMAIN}}"

// Template file names under the renderer's template directory. The
// http variant serves the ACME challenge path over plain HTTP; the
// https variant terminates TLS with the acquired certificate pair.
const (
	HTTPTemplate  = "nginx-http.conf.tmpl"
	HTTPSTemplate = "nginx-https.conf.tmpl"
)

var tokenPattern = regexp.MustCompile(`\{\{[A-Z_]+\}\}`)

// CertProber reports whether the certificate pair for a domain is on
// disk. The result decides which template variant applies.
type CertProber interface {
	Probe(domain string) certstate.Presence
}

// Renderer writes the proxy configuration for a domain, selecting the
// TLS variant when the certificate pair is already present.
type Renderer struct {
	templateDir string
	outputPath  string
	prober      CertProber
}

// NewRenderer returns a Renderer reading templates from templateDir
// and writing the selected, substituted variant to outputPath.
func NewRenderer(templateDir, outputPath string, prober CertProber) *Renderer {
	return &Renderer{
		templateDir: templateDir,
		outputPath:  outputPath,
		prober:      prober,
	}
}

// Render probes the certificate state for domain, substitutes the
// domain into the matching template variant and replaces the output
// file with the result. The presence that drove the selection is
// returned so callers can report which variant is active.
//
// Rendering is deterministic: the same template set, domain and
// certificate state always produce byte-identical output.
func (r *Renderer) Render(domain string) (certstate.Presence, error) {
	presence := r.prober.Probe(domain)
	name := HTTPTemplate
	if presence == certstate.CertificatePresent {
		name = HTTPSTemplate
	}
	path := filepath.Join(r.templateDir, name)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return presence, errors.NotFoundf("configuration template %q", path)
	} else if err != nil {
		return presence, errors.Trace(err)
	}

	rendered := strings.ReplaceAll(string(raw), Placeholder, domain)
	if leftover := tokenPattern.FindString(rendered); leftover != "" {
		return presence, errors.NotValidf("template %q with unsubstituted token %q", name, leftover)
	}

	if err := utils.AtomicWriteFile(r.outputPath, []byte(rendered), 0o644); err != nil {
		return presence, errors.Annotatef(err, "writing %q", r.outputPath)
	}
	logger.Infof("rendered %s proxy configuration for %q to %s", presence, domain, r.outputPath)
	return presence, nil
}
