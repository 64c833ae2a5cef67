// Package actions maps named, configured actions to the reaction primitives
// and reports the boolean outcome of each invocation.
package actions

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-reactor/pkg/auditlog"
	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/metricsink"
	"github.com/core-tools/hsu-reactor/pkg/process"
)

type Kind string

const (
	KindReboot      Kind = "reboot"
	KindRestartUnit Kind = "restart_unit"
	KindCommand     Kind = "command"
	KindLog         Kind = "log"
	KindMetric      Kind = "metric"
)

var allKinds = []Kind{KindReboot, KindRestartUnit, KindCommand, KindLog, KindMetric}

const DefaultCommandTimeout = 30 * time.Second

// Action is one configured reaction. Only the parameter block matching Kind
// is used.
type Action struct {
	Name    string
	Kind    Kind
	Timeout time.Duration

	Command *process.CommandSpec
	Unit    string
	Log     *auditlog.Target
	Metric  *metricsink.Endpoint
}

func ValidKind(kind Kind) bool {
	for _, k := range allKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ValidateAction checks that the parameter block required by the kind is present
func ValidateAction(action Action) error {
	if action.Name == "" {
		return errors.NewValidationError("action name cannot be empty", nil)
	}
	if action.Timeout < 0 {
		return errors.NewValidationError("timeout cannot be negative", nil).WithContext("action", action.Name)
	}

	switch action.Kind {
	case KindReboot:
		return nil
	case KindRestartUnit:
		if action.Unit == "" {
			return errors.NewValidationError("unit is required for restart_unit action", nil).WithContext("action", action.Name)
		}
	case KindCommand:
		if action.Command == nil {
			return errors.NewValidationError("command is required for command action", nil).WithContext("action", action.Name)
		}
		if err := process.ValidateCommandSpec(*action.Command); err != nil {
			return errors.NewValidationError("invalid command", err).WithContext("action", action.Name)
		}
	case KindLog:
		if action.Log == nil || action.Log.Path == "" {
			return errors.NewValidationError("log path is required for log action", nil).WithContext("action", action.Name)
		}
	case KindMetric:
		if action.Metric == nil {
			return errors.NewValidationError("metric endpoint is required for metric action", nil).WithContext("action", action.Name)
		}
		if action.Metric.Host == "" || action.Metric.Port == 0 {
			return errors.NewValidationError("metric endpoint needs host and port", nil).WithContext("action", action.Name)
		}
	default:
		return errors.NewValidationError(
			fmt.Sprintf("unsupported action type: %s", action.Kind),
			nil,
		).WithContext("supported_types", "reboot, restart_unit, command, log, metric")
	}
	return nil
}
