// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package certissuer acquires the TLS certificate for the deployment
// domain from an ACME certificate authority, proving control of the
// domain with http-01 challenges served out of the proxy's webroot.
package certissuer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"
	"golang.org/x/crypto/acme"
)

var logger = loggo.GetLogger("deckhand.certissuer")

// CertState answers whether a certificate pair already exists and
// where its parts belong on disk.
type CertState interface {
	Exists(domain string) bool
	ChainPath(domain string) string
	KeyPath(domain string) string
}

// Config holds an Issuer's dependencies.
type Config struct {
	// Prober decides whether acquisition is needed at all and
	// where the acquired pair is written.
	Prober CertState

	// AccountKeyPath locates the CA account key. The key is
	// created on first use and reused for every later exchange.
	AccountKeyPath string

	// WebRoot is the directory the certificate-absent proxy
	// configuration serves; challenge responses are placed under
	// its .well-known/acme-challenge path.
	WebRoot string

	// DirectoryURL overrides the CA directory endpoint. Empty
	// selects the Let's Encrypt production directory.
	DirectoryURL string

	// HTTPClient overrides the client used for CA exchanges.
	HTTPClient *http.Client
}

// Validate implements Config validation.
func (cfg Config) Validate() error {
	if cfg.Prober == nil {
		return errors.NotValidf("nil Prober")
	}
	if cfg.AccountKeyPath == "" {
		return errors.NotValidf("empty AccountKeyPath")
	}
	if cfg.WebRoot == "" {
		return errors.NotValidf("empty WebRoot")
	}
	return nil
}

// Issuer acquires certificates, once per domain.
type Issuer struct {
	cfg Config
}

// New returns an Issuer using cfg.
func New(cfg Config) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = acme.LetsEncryptURL
	}
	return &Issuer{cfg: cfg}, nil
}

// Ensure acquires a certificate pair for domain bound to the given
// contact email. When the prober already sees the pair on disk,
// Ensure returns immediately without touching the network, so reruns
// on a secured domain are free. Any failure before the pair is
// written leaves the existing state untouched.
func (i *Issuer) Ensure(ctx context.Context, domain, email string) error {
	if domain == "" {
		return errors.NotValidf("empty domain")
	}
	if email == "" {
		return errors.NotValidf("empty contact email")
	}
	if i.cfg.Prober.Exists(domain) {
		logger.Debugf("certificate pair for %q already present, nothing to acquire", domain)
		return nil
	}

	key, err := i.ensureAccountKey()
	if err != nil {
		return errors.Annotate(err, "preparing account key")
	}
	client := &acme.Client{
		Key:          key,
		DirectoryURL: i.cfg.DirectoryURL,
		HTTPClient:   i.cfg.HTTPClient,
		UserAgent:    "deckhand",
	}

	account := &acme.Account{Contact: []string{"mailto:" + email}}
	if _, err := client.Register(ctx, account, acme.AcceptTOS); err != nil && !errors.Is(err, acme.ErrAccountAlreadyExists) {
		return errors.Annotate(err, "registering account")
	}

	order, err := client.AuthorizeOrder(ctx, acme.DomainIDs(domain))
	if err != nil {
		return errors.Annotate(err, "creating order")
	}
	for _, authzURL := range order.AuthzURLs {
		if err := i.fulfillAuthorization(ctx, client, authzURL); err != nil {
			return errors.Trace(err)
		}
	}
	order, err = client.WaitOrder(ctx, order.URI)
	if err != nil {
		return errors.Annotate(err, "waiting for order")
	}

	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return errors.Trace(err)
	}
	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: domain},
		DNSNames: []string{domain},
	}, certKey)
	if err != nil {
		return errors.Trace(err)
	}
	chain, _, err := client.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return errors.Annotate(err, "finalizing order")
	}

	if err := i.writeCertificate(domain, certKey, chain); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("acquired certificate for %q", domain)
	return nil
}

// fulfillAuthorization answers one authorization's http-01 challenge
// and waits for the CA to validate it. The challenge response is
// removed once the authorization settles, valid or not.
func (i *Issuer) fulfillAuthorization(ctx context.Context, client *acme.Client, url string) error {
	authz, err := client.GetAuthorization(ctx, url)
	if err != nil {
		return errors.Annotate(err, "fetching authorization")
	}
	if authz.Status == acme.StatusValid {
		return nil
	}
	var challenge *acme.Challenge
	for _, c := range authz.Challenges {
		if c.Type == "http-01" {
			challenge = c
			break
		}
	}
	if challenge == nil {
		return errors.NotFoundf("http-01 challenge in authorization %q", url)
	}

	response, err := client.HTTP01ChallengeResponse(challenge.Token)
	if err != nil {
		return errors.Trace(err)
	}
	tokenPath := filepath.Join(i.cfg.WebRoot, client.HTTP01ChallengePath(challenge.Token))
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0o755); err != nil {
		return errors.Trace(err)
	}
	if err := utils.AtomicWriteFile(tokenPath, []byte(response), 0o644); err != nil {
		return errors.Annotate(err, "writing challenge response")
	}
	defer func() {
		if err := os.Remove(tokenPath); err != nil {
			logger.Warningf("cannot remove challenge response %q: %v", tokenPath, err)
		}
	}()

	if _, err := client.Accept(ctx, challenge); err != nil {
		return errors.Annotate(err, "accepting challenge")
	}
	if _, err := client.WaitAuthorization(ctx, authz.URI); err != nil {
		return errors.Annotate(err, "validating domain")
	}
	return nil
}

// ensureAccountKey loads the CA account key, creating it on first
// use.
func (i *Issuer) ensureAccountKey() (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(i.cfg.AccountKeyPath)
	if err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, errors.Errorf("account key %q is not PEM encoded", i.cfg.AccountKeyPath)
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.Annotatef(err, "parsing account key %q", i.cfg.AccountKeyPath)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Trace(err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := os.MkdirAll(filepath.Dir(i.cfg.AccountKeyPath), 0o700); err != nil {
		return nil, errors.Trace(err)
	}
	data = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := utils.AtomicWriteFile(i.cfg.AccountKeyPath, data, 0o600); err != nil {
		return nil, errors.Annotate(err, "writing account key")
	}
	logger.Infof("created account key at %s", i.cfg.AccountKeyPath)
	return key, nil
}

// writeCertificate lands the private key and then the chain, so the
// pair only ever probes as present once both parts are in place.
func (i *Issuer) writeCertificate(domain string, key *ecdsa.PrivateKey, chain [][]byte) error {
	chainPath := i.cfg.Prober.ChainPath(domain)
	keyPath := i.cfg.Prober.KeyPath(domain)
	if err := os.MkdirAll(filepath.Dir(chainPath), 0o700); err != nil {
		return errors.Trace(err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return errors.Trace(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := utils.AtomicWriteFile(keyPath, keyPEM, 0o600); err != nil {
		return errors.Annotate(err, "writing private key")
	}

	var chainPEM []byte
	for _, der := range chain {
		chainPEM = append(chainPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}
	if err := utils.AtomicWriteFile(chainPath, chainPEM, 0o644); err != nil {
		return errors.Annotate(err, "writing certificate chain")
	}
	return nil
}
