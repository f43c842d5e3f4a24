// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package envfile persists the deployment's configuration record as a
// flat KEY=value file. The file doubles as the environment file read
// by docker compose, so unknown keys, comments and ordering written
// by operators are preserved across rewrites.
package envfile

import (
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"
)

var logger = loggo.GetLogger("deckhand.envfile")

const fileMode = 0o600

// Store reads and writes one KEY=value record file. Lookups treat a
// missing file as an empty record; writes rewrite the whole file so a
// reader never observes a partially written line.
type Store struct {
	path string
}

// NewStore returns a Store backed by the file at path. The file need
// not exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the record file.
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the effective value for key. A missing file or a
// missing key reports ok false without error; an empty string value
// is a present key. When the file carries duplicate entries for key,
// the last one wins.
func (s *Store) Lookup(key string) (value string, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Trace(err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, isEntry := parseLine(line); isEntry && k == key {
			value, ok = v, true
		}
	}
	return value, ok, nil
}

// Set records key=value, replacing any existing entry for key in
// place or appending a new line when absent. Duplicate entries for
// key collapse into the first one. Setting a key to its current
// effective value performs no write at all. The previous content is
// kept in a backup beside the file for the duration of the rewrite
// and pruned on success.
func (s *Store) Set(key, value string) error {
	if err := validateEntry(key, value); err != nil {
		return errors.Trace(err)
	}
	current, ok, err := s.Lookup(key)
	if err != nil {
		return errors.Trace(err)
	}
	if ok && current == value {
		logger.Debugf("%s unchanged, not rewriting %s", key, s.path)
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Trace(err)
	}
	content := rewrite(string(data), key, value)

	backup := s.path + ".bak"
	if len(data) > 0 {
		if err := utils.AtomicWriteFile(backup, data, fileMode); err != nil {
			return errors.Annotatef(err, "backing up %s", s.path)
		}
	}
	if err := utils.AtomicWriteFile(s.path, []byte(content), fileMode); err != nil {
		return errors.Annotatef(err, "writing %s", s.path)
	}
	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		return errors.Annotatef(err, "pruning %s", backup)
	}
	return nil
}

// SeedFrom creates the record file as a verbatim copy of the template
// at templatePath. It is a no-op when the record file already exists,
// and NotFound when it does not and the template is missing too.
func (s *Store) SeedFrom(templatePath string) error {
	if _, err := os.Stat(s.path); err == nil {
		logger.Debugf("%s already exists, not seeding", s.path)
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Trace(err)
	}
	data, err := os.ReadFile(templatePath)
	if os.IsNotExist(err) {
		return errors.NotFoundf("seed template %q", templatePath)
	}
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("seeding %s from %s", s.path, templatePath)
	return errors.Trace(utils.AtomicWriteFile(s.path, data, fileMode))
}

func validateEntry(key, value string) error {
	if key == "" {
		return errors.NotValidf("empty key")
	}
	if strings.ContainsAny(key, "=\n") || strings.TrimSpace(key) != key {
		return errors.NotValidf("key %q", key)
	}
	if strings.Contains(value, "\n") {
		return errors.NotValidf("multi-line value for %q", key)
	}
	return nil
}

// rewrite returns the new file content with key set to value. The
// first existing entry for key is replaced in place, later duplicates
// are dropped, and everything else is carried over untouched.
func rewrite(existing, key, value string) string {
	entry := key + "=" + value
	lines := strings.Split(existing, "\n")
	// A trailing newline produces one empty trailing element; drop it
	// so joining below does not grow blank lines on every write.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	out := make([]string, 0, len(lines)+1)
	replaced := false
	for _, line := range lines {
		if k, _, isEntry := parseLine(line); isEntry && k == key {
			if !replaced {
				out = append(out, entry)
				replaced = true
			}
			continue
		}
		out = append(out, line)
	}
	if !replaced {
		out = append(out, entry)
	}
	return strings.Join(out, "\n") + "\n"
}

// parseLine splits a KEY=value line. Blank lines and # comments are
// not entries. Values keep everything after the first '=' verbatim.
func parseLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	i := strings.Index(trimmed, "=")
	if i <= 0 {
		return "", "", false
	}
	return trimmed[:i], trimmed[i+1:], true
}
