// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package healthcheck_test

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/deckhand/internal/healthcheck"
)

// recordingClock wraps a clock and records the durations waited on,
// so tests can assert on settle and retry delays without real time
// passing at full scale.
type recordingClock struct {
	clock.Clock

	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingClock) After(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return r.Clock.After(d)
}

func (r *recordingClock) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

type healthcheckSuite struct {
	testing.IsolationSuite

	clock *recordingClock
}

var _ = gc.Suite(&healthcheckSuite{})

func (s *healthcheckSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = &recordingClock{Clock: testclock.NewDilatedWallClock(time.Millisecond)}
}

// probe returns a probe failing the first n calls, counting calls.
func probe(n int, calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= n {
			return errors.Errorf("probe failure %d", *calls)
		}
		return nil
	}
}

func (s *healthcheckSuite) TestValidate(c *gc.C) {
	err := healthcheck.Run(context.Background(), healthcheck.CheckArgs{
		Attempts: 3,
		Clock:    s.clock,
	})
	c.Check(err, jc.ErrorIs, errors.NotValid)
	c.Check(err, gc.ErrorMatches, `nil Probe not valid`)

	err = healthcheck.Run(context.Background(), healthcheck.CheckArgs{
		Probe: func(context.Context) error { return nil },
		Clock: s.clock,
	})
	c.Check(err, gc.ErrorMatches, `Attempts 0 not valid`)

	err = healthcheck.Run(context.Background(), healthcheck.CheckArgs{
		Probe:    func(context.Context) error { return nil },
		Attempts: 3,
	})
	c.Check(err, gc.ErrorMatches, `nil Clock not valid`)
}

func (s *healthcheckSuite) TestSucceedsOnLaterAttempt(c *gc.C) {
	var calls int
	err := healthcheck.Run(context.Background(), healthcheck.CheckArgs{
		Probe:    probe(2, &calls),
		Attempts: 3,
		Delay:    6 * time.Second,
		Clock:    s.clock,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(calls, gc.Equals, 3)
	c.Check(s.clock.recorded(), gc.DeepEquals, []time.Duration{
		6 * time.Second, 6 * time.Second,
	})
}

func (s *healthcheckSuite) TestExhaustsAttempts(c *gc.C) {
	var calls int
	err := healthcheck.Run(context.Background(), healthcheck.CheckArgs{
		Probe:    probe(99, &calls),
		Attempts: 3,
		Delay:    6 * time.Second,
		Clock:    s.clock,
	})
	c.Assert(err, gc.ErrorMatches, `service still unhealthy after 3 attempts: probe failure 3`)
	c.Check(calls, gc.Equals, 3)
}

func (s *healthcheckSuite) TestActionRunsOnce(c *gc.C) {
	var actions, calls int
	err := healthcheck.Run(context.Background(), healthcheck.CheckArgs{
		Action: func(context.Context) error {
			actions++
			return nil
		},
		Probe:    probe(2, &calls),
		Attempts: 3,
		Delay:    6 * time.Second,
		Settle:   15 * time.Second,
		Clock:    s.clock,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(actions, gc.Equals, 1)
	c.Check(s.clock.recorded(), gc.DeepEquals, []time.Duration{
		15 * time.Second, 6 * time.Second, 6 * time.Second,
	})
}

func (s *healthcheckSuite) TestActionFailureAbortsCycle(c *gc.C) {
	var calls int
	err := healthcheck.Run(context.Background(), healthcheck.CheckArgs{
		Action: func(context.Context) error {
			return errors.New("restart blew up")
		},
		Probe:    probe(0, &calls),
		Attempts: 3,
		Settle:   15 * time.Second,
		Clock:    s.clock,
	})
	c.Assert(err, gc.ErrorMatches, `restart blew up`)
	c.Check(calls, gc.Equals, 0)
	c.Check(s.clock.recorded(), gc.HasLen, 0)
}

func (s *healthcheckSuite) TestNoSettleWithoutAction(c *gc.C) {
	var calls int
	err := healthcheck.Run(context.Background(), healthcheck.CheckArgs{
		Probe:    probe(0, &calls),
		Attempts: 3,
		Delay:    6 * time.Second,
		Settle:   15 * time.Second,
		Clock:    s.clock,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(calls, gc.Equals, 1)
	c.Check(s.clock.recorded(), gc.HasLen, 0)
}

func (s *healthcheckSuite) TestActionTimeout(c *gc.C) {
	err := healthcheck.Run(context.Background(), healthcheck.CheckArgs{
		Action: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Probe:         func(context.Context) error { return nil },
		Attempts:      3,
		ActionTimeout: 10 * time.Millisecond,
		Clock:         s.clock,
	})
	c.Assert(err, jc.ErrorIs, context.DeadlineExceeded)
}

func (s *healthcheckSuite) TestStopsOnCancelledContext(c *gc.C) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := healthcheck.Run(ctx, healthcheck.CheckArgs{
		Probe: func(context.Context) error {
			calls++
			cancel()
			return errors.New("not yet")
		},
		Attempts: 10,
		Delay:    time.Minute,
		Clock:    s.clock,
	})
	c.Assert(err, gc.ErrorMatches, `retry stopped`)
	c.Check(calls, gc.Equals, 1)
}

type fakeService struct {
	versionFailures int
	versionCalls    int
	syncFailures    int
	syncCalls       int
}

func (f *fakeService) Version(context.Context) (int, error) {
	f.versionCalls++
	if f.versionCalls <= f.versionFailures {
		return 0, errors.New("connection refused")
	}
	return 6, nil
}

func (f *fakeService) Sync(context.Context) error {
	f.syncCalls++
	if f.syncCalls <= f.syncFailures {
		return errors.New("sync failed: AnkiWeb ID or password was incorrect")
	}
	return nil
}

type cyclesSuite struct {
	testing.IsolationSuite

	clock *recordingClock
}

var _ = gc.Suite(&cyclesSuite{})

func (s *cyclesSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = &recordingClock{Clock: testclock.NewDilatedWallClock(time.Millisecond)}
}

func (s *cyclesSuite) TestRestartCycleRecovers(c *gc.C) {
	service := &fakeService{versionFailures: 2}
	var restarts int
	restart := func(context.Context) error {
		restarts++
		return nil
	}

	err := healthcheck.RestartCycle(context.Background(), restart, service, s.clock)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(restarts, gc.Equals, 1)
	c.Check(service.versionCalls, gc.Equals, 3)
	// Settle first, then one delay per failed probe.
	c.Check(s.clock.recorded(), gc.DeepEquals, []time.Duration{
		15 * time.Second, 6 * time.Second, 6 * time.Second,
	})
}

func (s *cyclesSuite) TestRestartCycleExhaustsBudget(c *gc.C) {
	service := &fakeService{versionFailures: 99}
	var restarts int
	restart := func(context.Context) error {
		restarts++
		return nil
	}

	err := healthcheck.RestartCycle(context.Background(), restart, service, s.clock)
	c.Assert(err, gc.ErrorMatches, `service still unhealthy after 10 attempts: connection refused`)
	c.Check(restarts, gc.Equals, 1)
	c.Check(service.versionCalls, gc.Equals, 10)
}

func (s *cyclesSuite) TestRestartCycleAbortsOnRestartFailure(c *gc.C) {
	service := &fakeService{}
	restart := func(context.Context) error {
		return errors.New("no such service: anki")
	}

	err := healthcheck.RestartCycle(context.Background(), restart, service, s.clock)
	c.Assert(err, gc.ErrorMatches, `no such service: anki`)
	c.Check(service.versionCalls, gc.Equals, 0)
}

func (s *cyclesSuite) TestSyncCycleRetries(c *gc.C) {
	service := &fakeService{syncFailures: 1}

	err := healthcheck.SyncCycle(context.Background(), service, s.clock)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(service.syncCalls, gc.Equals, 2)
	c.Check(s.clock.recorded(), gc.DeepEquals, []time.Duration{20 * time.Second})
}

func (s *cyclesSuite) TestSyncCycleExhaustsBudget(c *gc.C) {
	service := &fakeService{syncFailures: 99}

	err := healthcheck.SyncCycle(context.Background(), service, s.clock)
	c.Assert(err, gc.ErrorMatches,
		`service still unhealthy after 3 attempts: sync failed: AnkiWeb ID or password was incorrect`)
	c.Check(service.syncCalls, gc.Equals, 3)
}
