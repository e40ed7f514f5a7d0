// Package system runs the fixed OS commands behind the privileged chat
// commands. Arguments are never built from caller-supplied text.
package system

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"server_monitor_bot/internal/logging"
)

const (
	serviceCheckTimeout = 5 * time.Second
	powerCommandTimeout = 15 * time.Second
)

var (
	rebootCommand   = []string{"shutdown", "-r", "now"}
	shutdownCommand = []string{"shutdown", "-h", "now"}
)

// runCommand is overridable for tests.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// openFile is overridable for tests.
var openFile = func(path string) (*os.File, error) {
	return os.Open(path)
}

// ServiceStatus reports whether a systemd unit is active.
type ServiceStatus struct {
	Name   string
	Active bool
}

// Executor is the process execution facility.
type Executor struct {
	logger *logrus.Entry
}

// NewExecutor constructs an Executor.
func NewExecutor(logger *logrus.Entry) *Executor {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Executor{logger: logger}
}

// Reboot asks the OS to restart the host.
func (e *Executor) Reboot(ctx context.Context) error {
	return e.power(ctx, "reboot", rebootCommand)
}

// Shutdown asks the OS to power the host off.
func (e *Executor) Shutdown(ctx context.Context) error {
	return e.power(ctx, "shutdown", shutdownCommand)
}

func (e *Executor) power(ctx context.Context, action string, argv []string) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	runCtx, cancel := context.WithTimeout(ctx, powerCommandTimeout)
	defer cancel()

	out, err := runCommand(runCtx, argv[0], argv[1:]...)
	if err != nil {
		e.logger.WithFields(logging.Fields{
			"event":  "power_command_failed",
			"action": action,
			"output": strings.TrimSpace(string(out)),
		}).WithError(err).Error("power command failed")
		return fmt.Errorf("%s: %w", action, err)
	}

	e.logger.WithFields(logging.Fields{
		"event":  "power_command",
		"action": action,
	}).Warn("power command issued")
	return nil
}

// ServiceStatuses checks each unit with systemctl, in the given order. A
// failing check reports the unit as inactive.
func (e *Executor) ServiceStatuses(ctx context.Context, units []string) []ServiceStatus {
	if ctx == nil {
		ctx = context.Background()
	}

	statuses := make([]ServiceStatus, 0, len(units))
	for _, unit := range units {
		checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
		_, err := runCommand(checkCtx, "systemctl", "is-active", "--quiet", unit)
		cancel()

		if err != nil {
			e.logger.WithFields(logging.Fields{
				"event": "service_inactive",
				"unit":  unit,
			}).WithError(err).Debug("service check failed")
		}
		statuses = append(statuses, ServiceStatus{Name: unit, Active: err == nil})
	}

	return statuses
}

// TailFile returns the last n lines of the file at path.
func (e *Executor) TailFile(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, errors.New("line count must be positive")
	}

	f, err := openFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return ring, nil
}
