// Package systemd issues reboot and unit restart requests to systemd over D-Bus.
package systemd

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
)

type ClientOptions struct {
	// EscapeUnitNames applies systemd's bus label escaping to unit names
	// ("foo.service" becomes "foo_2eservice") before building the object path.
	EscapeUnitNames bool
}

type Client struct {
	connect Connector
	options ClientOptions
	logger  logging.Logger
}

func NewClient(options ClientOptions, logger logging.Logger) *Client {
	return NewClientWithConnector(ConnectSystemBus, options, logger)
}

func NewClientWithConnector(connect Connector, options ClientOptions, logger logging.Logger) *Client {
	return &Client{
		connect: connect,
		options: options,
		logger:  logger,
	}
}

// RebootHost asks the manager to reboot. A nil error means the request was
// acknowledged with a job object path; the reboot itself happens asynchronously.
func (c *Client) RebootHost(ctx context.Context) error {
	_, err := c.call(ctx, systemdObjectPath, managerRebootMethod)
	return err
}

// RestartUnit queues a restart job for the named unit in "fail" mode.
func (c *Client) RestartUnit(ctx context.Context, name string) error {
	c.logger.Debugf("Restart service: %s", name)

	if name == "" {
		return errors.NewValidationError("unit name cannot be empty", nil)
	}

	path := c.UnitObjectPath(name)
	c.logger.Debugf("Object path: %s", path)

	job, err := c.call(ctx, path, unitRestartMethod, restartModeFail)
	if err != nil {
		return err
	}

	c.logger.Debugf("Queued service job as %s", job)
	return nil
}

// UnitObjectPath builds the object path addressed by RestartUnit
func (c *Client) UnitObjectPath(name string) dbus.ObjectPath {
	if c.options.EscapeUnitNames {
		name = EscapeBusLabel(name)
	}
	return dbus.ObjectPath(UnitPathPrefix + name)
}

func (c *Client) call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) (dbus.ObjectPath, error) {
	bus, err := c.connect()
	if err != nil {
		c.logger.Errorf("Failed to connect to system bus: %v", err)
		return "", errors.NewResourceError("failed to connect to system bus", err)
	}
	defer func() {
		if closeErr := bus.Close(); closeErr != nil {
			c.logger.Debugf("Failed to close system bus connection: %v", closeErr)
		}
	}()

	body, err := bus.Call(ctx, path, method, args...)
	if err != nil {
		c.logger.Errorf("Failed to issue method call: %v", err)
		return "", errors.NewBusError("method call failed", err).
			WithContext("method", method).
			WithContext("path", string(path))
	}

	job, parseErr := parseObjectPathReply(body)
	if parseErr != nil {
		c.logger.Errorf("Failed to parse response message: %v", parseErr)
		return "", parseErr.WithContext("method", method)
	}

	return job, nil
}

func parseObjectPathReply(body []interface{}) (dbus.ObjectPath, *errors.DomainError) {
	if len(body) == 0 {
		return "", errors.NewProtocolError("empty reply", nil)
	}
	job, ok := body[0].(dbus.ObjectPath)
	if !ok {
		return "", errors.NewProtocolError(fmt.Sprintf("reply is %T, expected object path", body[0]), nil)
	}
	if !job.IsValid() {
		return "", errors.NewProtocolError("reply is not a valid object path", nil).WithContext("reply", string(job))
	}
	return job, nil
}

// EscapeBusLabel escapes s the way systemd builds unit object paths:
// every byte outside [A-Za-z0-9] becomes _xx in lowercase hex.
func EscapeBusLabel(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9' && i > 0) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "_%02x", c)
	}
	return b.String()
}
