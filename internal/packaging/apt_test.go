// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package packaging_test

import (
	"context"
	"os/exec"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/deckhand/internal/packaging"
)

type aptSuite struct {
	testing.IsolationSuite

	installed  set.Strings
	queries    []string
	installs   [][]string
	installEnv []string
	installErr error
	installOut string
}

var _ = gc.Suite(&aptSuite{})

func (s *aptSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.installed = set.NewStrings()
	s.queries = nil
	s.installs = nil
	s.installEnv = nil
	s.installErr = nil
	s.installOut = ""

	s.PatchValue(packaging.RunCommand, func(cmd *exec.Cmd) error {
		c.Check(cmd.Args[:2], gc.DeepEquals, []string{"dpkg-query", "-s"})
		pkg := cmd.Args[2]
		s.queries = append(s.queries, pkg)
		if s.installed.Contains(pkg) {
			return nil
		}
		return errors.Errorf("dpkg-query: package '%s' is not installed", pkg)
	})
	s.PatchValue(packaging.CommandOutput, func(cmd *exec.Cmd) ([]byte, error) {
		s.installs = append(s.installs, cmd.Args)
		s.installEnv = cmd.Env
		return []byte(s.installOut), s.installErr
	})
}

func (s *aptSuite) TestIsInstalled(c *gc.C) {
	s.installed.Add("nginx")
	c.Check(packaging.IsInstalled("nginx"), jc.IsTrue)
	c.Check(packaging.IsInstalled("docker.io"), jc.IsFalse)
	c.Check(s.queries, gc.DeepEquals, []string{"nginx", "docker.io"})
}

func (s *aptSuite) TestEnsureInstalledAllPresent(c *gc.C) {
	s.installed = set.NewStrings(packaging.DefaultPackages...)

	err := packaging.EnsureInstalled(context.Background(), packaging.DefaultPackages...)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.installs, gc.HasLen, 0)
}

func (s *aptSuite) TestEnsureInstalledInstallsOnlyMissing(c *gc.C) {
	s.installed.Add("nginx")

	err := packaging.EnsureInstalled(context.Background(), packaging.DefaultPackages...)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.installs, gc.HasLen, 1)
	c.Check(s.installs[0], gc.DeepEquals, []string{
		"apt-get", "--option=Dpkg::Options::=--force-confold",
		"--option=Dpkg::options::=--force-unsafe-io", "--assume-yes", "--quiet",
		"install", "docker-compose-v2", "docker.io",
	})
}

func (s *aptSuite) TestEnsureInstalledNonInteractive(c *gc.C) {
	err := packaging.EnsureInstalled(context.Background(), "nginx")
	c.Assert(err, jc.ErrorIsNil)

	var frontend string
	for _, env := range s.installEnv {
		if strings.HasPrefix(env, "DEBIAN_FRONTEND=") {
			frontend = env
		}
	}
	c.Check(frontend, gc.Equals, "DEBIAN_FRONTEND=noninteractive")
}

func (s *aptSuite) TestEnsureInstalledFailure(c *gc.C) {
	s.installErr = errors.New("exit status 100")
	s.installOut = "E: Unable to locate package docker.io\n"

	err := packaging.EnsureInstalled(context.Background(), "docker.io")
	c.Assert(err, gc.ErrorMatches,
		`installing docker.io: E: Unable to locate package docker.io: exit status 100`)
}
