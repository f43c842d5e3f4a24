// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ankiconnect_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/deckhand/internal/ankiconnect"
)

type clientSuite struct {
	testing.IsolationSuite

	srv      *httptest.Server
	requests []string
	handler  func(w http.ResponseWriter)
}

var _ = gc.Suite(&clientSuite{})

func (s *clientSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.requests = nil
	s.handler = func(w http.ResponseWriter) {
		s.respondJSON(w, `{"result": null, "error": null}`)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		c.Check(err, jc.ErrorIsNil)
		c.Check(r.Method, gc.Equals, "POST")
		c.Check(r.Header.Get("Content-Type"), gc.Equals, "application/json")
		s.requests = append(s.requests, string(body))
		s.handler(w)
	}))
	s.AddCleanup(func(*gc.C) { s.srv.Close() })
}

func (s *clientSuite) respondJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (s *clientSuite) client() *ankiconnect.Client {
	return ankiconnect.NewClient(s.srv.URL, s.srv.Client())
}

func (s *clientSuite) TestVersion(c *gc.C) {
	s.handler = func(w http.ResponseWriter) {
		s.respondJSON(w, `{"result": 6, "error": null}`)
	}

	version, err := s.client().Version(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(version, gc.Equals, 6)
	c.Check(s.requests, gc.DeepEquals, []string{`{"action":"version","version":6}`})
}

func (s *clientSuite) TestVersionServiceError(c *gc.C) {
	s.handler = func(w http.ResponseWriter) {
		s.respondJSON(w, `{"result": null, "error": "collection is not available"}`)
	}

	_, err := s.client().Version(context.Background())
	c.Assert(err, gc.ErrorMatches, `version failed: collection is not available`)
}

func (s *clientSuite) TestSync(c *gc.C) {
	s.handler = func(w http.ResponseWriter) {
		s.respondJSON(w, `{"result": "ok", "error": null}`)
	}

	err := s.client().Sync(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.requests, gc.DeepEquals, []string{`{"action":"sync","version":6}`})
}

func (s *clientSuite) TestSyncReportsEmbeddedError(c *gc.C) {
	s.handler = func(w http.ResponseWriter) {
		s.respondJSON(w, `{"result": null, "error": "AnkiWeb ID or password was incorrect"}`)
	}

	err := s.client().Sync(context.Background())
	c.Assert(err, gc.ErrorMatches, `sync failed: AnkiWeb ID or password was incorrect`)
}

func (s *clientSuite) TestSyncEmptyErrorStillFails(c *gc.C) {
	// A present-but-empty error field signals failure; only a null
	// error field means success.
	s.handler = func(w http.ResponseWriter) {
		s.respondJSON(w, `{"result": null, "error": ""}`)
	}

	err := s.client().Sync(context.Background())
	c.Assert(err, gc.ErrorMatches, `sync failed with an unspecified error`)
}

func (s *clientSuite) TestUnexpectedStatus(c *gc.C) {
	s.handler = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadGateway)
	}

	_, err := s.client().Version(context.Background())
	c.Assert(err, gc.ErrorMatches, `version request: unexpected response status "502 Bad Gateway"`)
}

func (s *clientSuite) TestMalformedBody(c *gc.C) {
	s.handler = func(w http.ResponseWriter) {
		s.respondJSON(w, `{"result":`)
	}

	_, err := s.client().Version(context.Background())
	c.Assert(err, gc.ErrorMatches, `version response: .*`)
}

func (s *clientSuite) TestConnectionRefused(c *gc.C) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := ankiconnect.NewClient(srv.URL, http.DefaultClient)
	_, err := client.Version(context.Background())
	c.Assert(err, gc.ErrorMatches, `version request: .*connection refused.*`)
}
