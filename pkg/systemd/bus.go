package systemd

import (
	"context"

	"github.com/godbus/dbus/v5"
)

const (
	systemdDestination = "org.freedesktop.systemd1"
	systemdObjectPath  = dbus.ObjectPath("/org/freedesktop/systemd1")

	managerRebootMethod = "org.freedesktop.systemd1.Manager.Reboot"
	unitRestartMethod   = "org.freedesktop.systemd1.Unit.Restart"

	// UnitPathPrefix is concatenated with the unit name to address a unit object
	UnitPathPrefix = "/org/freedesktop/systemd1/unit/"

	// restartModeFail refuses to queue the job if it conflicts with a pending one
	restartModeFail = "fail"
)

// Bus is one open connection to the init system's control bus.
type Bus interface {
	// Call invokes method on the systemd object at path and returns the reply body
	Call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) ([]interface{}, error)
	Close() error
}

// Connector opens a fresh Bus for a single request
type Connector func() (Bus, error)

type systemBus struct {
	conn *dbus.Conn
}

// ConnectSystemBus opens a private connection to the system bus
func ConnectSystemBus() (Bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	return &systemBus{conn: conn}, nil
}

func (b *systemBus) Call(ctx context.Context, path dbus.ObjectPath, method string, args ...interface{}) ([]interface{}, error) {
	call := b.conn.Object(systemdDestination, path).CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		return nil, call.Err
	}
	return call.Body, nil
}

func (b *systemBus) Close() error {
	return b.conn.Close()
}
