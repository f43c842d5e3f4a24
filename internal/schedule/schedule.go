// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package schedule installs the systemd timers that fire the
// recurring sync and restart cycles.
package schedule

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/unit"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/utils/v4"
)

var logger = loggo.GetLogger("deckhand.schedule")

// EtcSystemdDir is where unit files are written.
const EtcSystemdDir = "/etc/systemd/system"

// Unit base names and firing intervals for the two recurring
// operations.
const (
	SyncUnitName    = "deckhand-sync"
	RestartUnitName = "deckhand-restart"

	// SyncInterval fires at every quarter hour.
	SyncInterval = "*:0/15"
	// RestartInterval fires once a day, early morning.
	RestartInterval = "*-*-* 04:30:00"
)

// DBusAPI is the slice of the systemd manager API the installer
// needs.
type DBusAPI interface {
	Close()
	LinkUnitFiles([]string, bool, bool) ([]dbus.LinkUnitFileChange, error)
	EnableUnitFiles([]string, bool, bool) (bool, []dbus.EnableUnitFileChange, error)
	Reload() error
	StartUnit(string, string, chan<- string) (int, error)
}

// Type alias for a DBusAPI factory method.
type DBusAPIFactory = func() (DBusAPI, error)

var NewDBusAPI = func() (DBusAPI, error) {
	return dbus.NewWithContext(context.Background())
}

var newChan = func() chan string {
	return make(chan string, 1)
}

// Trigger describes one recurring operation: a oneshot service unit
// and the timer that fires it.
type Trigger struct {
	// Name is the unit base name, without suffix.
	Name string

	// Description labels both units.
	Description string

	// ExecStart is the command line the service unit runs.
	ExecStart string

	// OnCalendar is the calendar expression the timer fires on.
	OnCalendar string
}

// SyncTrigger returns the recurring sync trigger, firing execStart
// every quarter hour.
func SyncTrigger(execStart string) Trigger {
	return Trigger{
		Name:        SyncUnitName,
		Description: "Anki collection sync",
		ExecStart:   execStart,
		OnCalendar:  SyncInterval,
	}
}

// RestartTrigger returns the recurring restart trigger, firing
// execStart daily.
func RestartTrigger(execStart string) Trigger {
	return Trigger{
		Name:        RestartUnitName,
		Description: "Anki service restart",
		ExecStart:   execStart,
		OnCalendar:  RestartInterval,
	}
}

// Validate returns an error when the trigger cannot be rendered into
// working units.
func (t Trigger) Validate() error {
	if t.Name == "" {
		return errors.NotValidf("empty Name")
	}
	if t.ExecStart == "" {
		return errors.NotValidf("empty ExecStart")
	}
	if t.OnCalendar == "" {
		return errors.NotValidf("empty OnCalendar")
	}
	return nil
}

func (t Trigger) serviceUnitName() string { return t.Name + ".service" }
func (t Trigger) timerUnitName() string   { return t.Name + ".timer" }

func (t Trigger) serviceUnit() ([]byte, error) {
	data, err := io.ReadAll(unit.Serialize([]*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", t.Description),
		unit.NewUnitOption("Service", "Type", "oneshot"),
		unit.NewUnitOption("Service", "ExecStart", t.ExecStart),
	}))
	return data, errors.Trace(err)
}

func (t Trigger) timerUnit() ([]byte, error) {
	data, err := io.ReadAll(unit.Serialize([]*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", t.Description+" timer"),
		unit.NewUnitOption("Timer", "OnCalendar", t.OnCalendar),
		unit.NewUnitOption("Timer", "Persistent", "true"),
		unit.NewUnitOption("Install", "WantedBy", "timers.target"),
	}))
	return data, errors.Trace(err)
}

// Installer writes and enables recurring triggers.
type Installer struct {
	dirName string
	newDBus DBusAPIFactory
}

// NewInstallerWithDefaults returns an Installer writing to the
// standard unit directory over a real systemd connection.
func NewInstallerWithDefaults() *Installer {
	return NewInstaller(EtcSystemdDir, NewDBusAPI)
}

// NewInstaller returns an Installer writing unit files to dirName and
// driving systemd through connections from newDBus.
func NewInstaller(dirName string, newDBus DBusAPIFactory) *Installer {
	return &Installer{dirName: dirName, newDBus: newDBus}
}

// Install writes the trigger's unit files, links and enables them,
// and starts the timer. Installing an already installed trigger with
// identical content is a no-op, so a repeated bootstrap converges
// without touching systemd.
func (in *Installer) Install(t Trigger) error {
	if err := t.Validate(); err != nil {
		return errors.Trace(err)
	}
	serviceData, err := t.serviceUnit()
	if err != nil {
		return errors.Trace(err)
	}
	timerData, err := t.timerUnit()
	if err != nil {
		return errors.Trace(err)
	}
	servicePath := path.Join(in.dirName, t.serviceUnitName())
	timerPath := path.Join(in.dirName, t.timerUnitName())

	serviceSame, err := sameContent(servicePath, serviceData)
	if err != nil {
		return errors.Trace(err)
	}
	timerSame, err := sameContent(timerPath, timerData)
	if err != nil {
		return errors.Trace(err)
	}
	if serviceSame && timerSame {
		logger.Debugf("trigger %q already installed", t.Name)
		return nil
	}

	if err := utils.AtomicWriteFile(servicePath, serviceData, 0o644); err != nil {
		return errors.Annotatef(err, "writing %q", servicePath)
	}
	if err := utils.AtomicWriteFile(timerPath, timerData, 0o644); err != nil {
		return errors.Annotatef(err, "writing %q", timerPath)
	}

	conn, err := in.newDBus()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	const runtime, force = false, true
	if _, err := conn.LinkUnitFiles([]string{servicePath, timerPath}, runtime, force); err != nil {
		return errors.Annotate(err, "dbus link request failed")
	}
	if err := conn.Reload(); err != nil {
		return errors.Annotate(err, "dbus post-link daemon reload request failed")
	}
	if _, _, err := conn.EnableUnitFiles([]string{timerPath}, runtime, force); err != nil {
		return errors.Annotate(err, "dbus enable request failed")
	}

	statusCh := newChan()
	if _, err := conn.StartUnit(t.timerUnitName(), "fail", statusCh); err != nil {
		return errors.Annotate(err, "dbus start request failed")
	}
	if err := wait("start", statusCh); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("installed trigger %q firing on %q", t.Name, t.OnCalendar)
	return nil
}

func wait(op string, statusCh chan string) error {
	status := <-statusCh
	// Other status values may mean the job was only queued; see
	// the StartUnit documentation in go-systemd.
	if status != "done" {
		return errors.Errorf("failed to %s (API status %q)", op, status)
	}
	return nil
}

func sameContent(path string, data []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	return bytes.Equal(existing, data), nil
}
