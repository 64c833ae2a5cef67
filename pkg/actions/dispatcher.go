package actions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/core-tools/hsu-reactor/pkg/auditlog"
	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
	"github.com/core-tools/hsu-reactor/pkg/metricsink"
	"github.com/core-tools/hsu-reactor/pkg/process"
	"github.com/core-tools/hsu-reactor/pkg/systemd"
)

type SystemControl interface {
	RebootHost(ctx context.Context) error
	RestartUnit(ctx context.Context, name string) error
}

type CommandRunner interface {
	Run(ctx context.Context, spec process.CommandSpec, timeout time.Duration) (*process.Result, error)
}

type LineSender interface {
	SendLine(line string) error
	Close() error
}

type SenderFactory func(endpoint metricsink.Endpoint, logger logging.Logger) LineSender

// Dependencies are the primitives behind the dispatcher. Nil members are
// replaced by the real implementations.
type Dependencies struct {
	System     SystemControl
	Runner     CommandRunner
	NewSender  SenderFactory
	Registerer prometheus.Registerer
	// OutcomeAction names a metric action that receives one line per invocation
	OutcomeAction string
}

type Dispatcher struct {
	actions map[string]Action
	senders map[string]LineSender
	system  SystemControl
	runner  CommandRunner
	metrics *outcomeMetrics
	outcome LineSender
	// outcomeName is skipped when reporting outcomes
	outcomeName string
	logger      logging.Logger
	now         func() time.Time
}

func NewDispatcher(actions []Action, deps Dependencies, logger logging.Logger) (*Dispatcher, error) {
	if deps.System == nil {
		deps.System = systemd.NewClient(systemd.ClientOptions{}, logger)
	}
	if deps.Runner == nil {
		deps.Runner = process.NewRunner(process.RunnerOptions{}, logger)
	}
	if deps.NewSender == nil {
		deps.NewSender = func(endpoint metricsink.Endpoint, logger logging.Logger) LineSender {
			return metricsink.NewSink(endpoint, logger)
		}
	}

	d := &Dispatcher{
		actions: make(map[string]Action, len(actions)),
		senders: make(map[string]LineSender),
		system:  deps.System,
		runner:  deps.Runner,
		metrics: newOutcomeMetrics(deps.Registerer),
		logger:  logger,
		now:     time.Now,
	}

	for _, action := range actions {
		if err := ValidateAction(action); err != nil {
			d.Close()
			return nil, err
		}
		if _, exists := d.actions[action.Name]; exists {
			d.Close()
			return nil, errors.NewValidationError(fmt.Sprintf("duplicate action name: %s", action.Name), nil)
		}
		d.actions[action.Name] = action

		if action.Kind == KindMetric {
			d.senders[action.Name] = deps.NewSender(*action.Metric, logging.WithPrefix(logger, fmt.Sprintf("action: %s , ", action.Name)))
		}
	}

	if deps.OutcomeAction != "" {
		sender, ok := d.senders[deps.OutcomeAction]
		if !ok {
			d.Close()
			return nil, errors.NewNotFoundError("outcome action is not a configured metric action", nil).
				WithContext("action", deps.OutcomeAction)
		}
		d.outcome = sender
		d.outcomeName = deps.OutcomeAction
	}

	return d, nil
}

// Names returns the configured action names in sorted order
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.actions))
	for name := range d.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) Lookup(name string) (Action, bool) {
	action, ok := d.actions[name]
	return action, ok
}

// Invoke runs the named action once. The boolean is the only outcome signal:
// failures are logged, never panicked on.
func (d *Dispatcher) Invoke(ctx context.Context, name string, payload string) bool {
	action, ok := d.actions[name]
	if !ok {
		d.logger.Errorf("Unknown action: %s", name)
		return false
	}

	id := ulid.Make()
	logger := logging.WithPrefix(d.logger, fmt.Sprintf("action: %s , id: %s , ", name, id))

	start := d.now()
	err := d.execute(ctx, action, payload, logger)
	elapsed := d.now().Sub(start)

	success := err == nil
	if success {
		logger.Debugf("Action succeeded in %v", elapsed)
	} else {
		logger.Errorf("Action failed (%s): %v", errors.TypeOf(err), err)
	}

	d.metrics.observe(action, success, elapsed.Seconds())
	d.reportOutcome(action, success, elapsed, logger)

	return success
}

func (d *Dispatcher) execute(ctx context.Context, action Action, payload string, logger logging.Logger) error {
	switch action.Kind {
	case KindReboot:
		ctx, cancel := withOptionalTimeout(ctx, action.Timeout)
		defer cancel()
		logger.Infof("Rebooting host")
		return d.system.RebootHost(ctx)

	case KindRestartUnit:
		ctx, cancel := withOptionalTimeout(ctx, action.Timeout)
		defer cancel()
		logger.Infof("Restarting unit %s", action.Unit)
		return d.system.RestartUnit(ctx, action.Unit)

	case KindCommand:
		spec := *action.Command
		if payload != "" {
			spec.Command = payload
		}
		timeout := action.Timeout
		if timeout <= 0 {
			timeout = DefaultCommandTimeout
		}
		logger.Infof("Running command: %s", spec.Command)
		result, err := d.runner.Run(ctx, spec, timeout)
		if err != nil {
			return err
		}
		logger.Infof("Command finished, pid: %d, exit code: %d, elapsed: %v", result.PID, result.ExitCode, result.Elapsed)
		return nil

	case KindLog:
		return auditlog.Append(*action.Log, payload, logger)

	case KindMetric:
		if payload == "" {
			return errors.NewValidationError("metric line cannot be empty", nil)
		}
		return d.senders[action.Name].SendLine(payload)

	default:
		return errors.NewInternalError(fmt.Sprintf("unsupported action type: %s", action.Kind), nil)
	}
}

func (d *Dispatcher) reportOutcome(action Action, success bool, elapsed time.Duration, logger logging.Logger) {
	if d.outcome == nil || action.Name == d.outcomeName {
		return
	}

	line := metricsink.FormatLine("reactor_action",
		map[string]string{"action": action.Name, "kind": string(action.Kind)},
		map[string]interface{}{"success": success, "duration_ms": elapsed.Milliseconds()},
		d.now())

	if err := d.outcome.SendLine(line); err != nil {
		logger.Warnf("Unable to report outcome: %v", err)
	}
}

// Close releases every metric connection
func (d *Dispatcher) Close() error {
	collection := errors.NewErrorCollection()
	for name, sender := range d.senders {
		if err := sender.Close(); err != nil {
			collection.Add(errors.NewNetworkError("failed to close metric connection", err).WithContext("action", name))
		}
	}
	return collection.ToError()
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
