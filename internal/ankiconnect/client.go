// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package ankiconnect speaks the AnkiConnect HTTP API exposed by the
// sync container on the loopback interface.
package ankiconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/juju/errors"
	"gopkg.in/httprequest.v1"
)

// DefaultEndpoint is where the sync container publishes the
// AnkiConnect API on the host.
const DefaultEndpoint = "http://127.0.0.1:8765"

// apiVersion is the AnkiConnect protocol version this client speaks.
const apiVersion = 6

// Transport is implemented by http.Client.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client invokes AnkiConnect actions and decodes the response
// envelope. Every response carries a result and an error field; a
// populated error field means the action failed even though the
// service answered, and an empty error string still counts as a
// failure.
type Client struct {
	endpoint  string
	transport Transport
}

// NewClient returns a Client for the AnkiConnect API at endpoint. An
// empty endpoint selects DefaultEndpoint; a nil transport selects
// http.DefaultClient.
func NewClient(endpoint string, transport Transport) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if transport == nil {
		transport = http.DefaultClient
	}
	return &Client{endpoint: endpoint, transport: transport}
}

type invocation struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

func (c *Client) invoke(ctx context.Context, action string) (json.RawMessage, error) {
	body, err := json.Marshal(invocation{Action: action, Version: apiVersion})
	if err != nil {
		return nil, errors.Trace(err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.transport.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "%s request", action)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s request: unexpected response status %q", action, resp.Status)
	}
	var reply envelope
	if err := httprequest.UnmarshalJSONResponse(resp, &reply); err != nil {
		return nil, errors.Annotatef(err, "%s response", action)
	}
	if reply.Error != nil {
		if *reply.Error == "" {
			return nil, errors.Errorf("%s failed with an unspecified error", action)
		}
		return nil, errors.Errorf("%s failed: %s", action, *reply.Error)
	}
	return reply.Result, nil
}

// Version asks the service for its protocol version. Any error free
// response demonstrates the service is up, which makes this the
// liveness probe for the restart cycle.
func (c *Client) Version(ctx context.Context) (int, error) {
	result, err := c.invoke(ctx, "version")
	if err != nil {
		return 0, errors.Trace(err)
	}
	var version int
	if err := json.Unmarshal(result, &version); err != nil {
		return 0, errors.Annotate(err, "decoding version result")
	}
	return version, nil
}

// Sync asks the service to synchronise the local collection with the
// remote sync server.
func (c *Client) Sync(ctx context.Context) error {
	_, err := c.invoke(ctx, "sync")
	return errors.Trace(err)
}
