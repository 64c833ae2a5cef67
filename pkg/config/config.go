// Package config loads the reactor's YAML configuration and turns it into
// dispatcher actions.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-reactor/pkg/actions"
	"github.com/core-tools/hsu-reactor/pkg/auditlog"
	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
	"github.com/core-tools/hsu-reactor/pkg/metricsink"
	"github.com/core-tools/hsu-reactor/pkg/process"
	"github.com/core-tools/hsu-reactor/pkg/processfile"
)

const (
	DefaultPort                 = 50060
	DefaultForceShutdownTimeout = 10 * time.Second
)

// ReactorConfig represents the top-level configuration file structure
type ReactorConfig struct {
	Reactor ReactorOptions `yaml:"reactor"`
	Actions []ActionConfig `yaml:"actions" validate:"dive"`
}

// ReactorOptions represents daemon-level configuration
type ReactorOptions struct {
	Port      int    `yaml:"port" validate:"gte=1,lte=65535"`
	LogLevel  string `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `yaml:"log_format,omitempty" validate:"omitempty,oneof=console json"`
	LogOutput string `yaml:"log_output,omitempty"`
	// MetricsListen enables the Prometheus listener when set
	MetricsListen string `yaml:"metrics_listen,omitempty" validate:"omitempty,hostname_port"`
	// OutcomeMetric names a metric action that receives one line per invocation
	OutcomeMetric        string                `yaml:"outcome_metric,omitempty"`
	ForceShutdownTimeout time.Duration         `yaml:"force_shutdown_timeout,omitempty" validate:"gte=0"`
	EscapeUnitNames      bool                  `yaml:"escape_unit_names,omitempty"`
	Runner               process.RunnerOptions `yaml:"runner,omitempty"`
	// RunFiles enables PID and port files for the daemon
	RunFiles *processfile.ProcessFileConfig `yaml:"run_files,omitempty"`
}

// ActionConfig represents a single configured action. Only the block
// matching Type may be set.
type ActionConfig struct {
	Name    string               `yaml:"name" validate:"required,max=64"`
	Type    actions.Kind         `yaml:"type" validate:"required,oneof=reboot restart_unit command log metric"`
	Enabled *bool                `yaml:"enabled,omitempty"` // Pointer to distinguish unset from false
	Timeout time.Duration        `yaml:"timeout,omitempty" validate:"gte=0"`
	Unit    string               `yaml:"unit,omitempty" validate:"unit_name"`
	Command *process.CommandSpec `yaml:"command,omitempty"`
	Log     *auditlog.Target     `yaml:"log,omitempty"`
	Metric  *metricsink.Endpoint `yaml:"metric,omitempty"`
}

func (a ActionConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// LoadConfigFromFile loads reactor configuration from a YAML file
func LoadConfigFromFile(filename string) (*ReactorConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := ParseConfig(data)
	if err != nil {
		if domainErr, ok := err.(*errors.DomainError); ok {
			return nil, domainErr.WithContext("filename", filename)
		}
		return nil, err
	}
	return config, nil
}

// ParseConfig parses YAML and applies defaults
func ParseConfig(data []byte) (*ReactorConfig, error) {
	var config ReactorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	setConfigDefaults(&config)

	return &config, nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *ReactorConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := validateStruct(config); err != nil {
		return err
	}

	if err := validateActionsConfig(config.Actions); err != nil {
		return errors.NewValidationError("invalid actions configuration", err)
	}

	if err := validateOutcomeMetric(config); err != nil {
		return err
	}

	return nil
}

// BuildActions converts enabled action configurations into dispatcher actions
func BuildActions(config *ReactorConfig, logger logging.Logger) ([]actions.Action, error) {
	if config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}

	var result []actions.Action

	for i, actionConfig := range config.Actions {
		if !actionConfig.IsEnabled() {
			logger.Infof("Skipping disabled action, name: %s", actionConfig.Name)
			continue
		}

		action := actions.Action{
			Name:    actionConfig.Name,
			Kind:    actionConfig.Type,
			Timeout: actionConfig.Timeout,
			Unit:    actionConfig.Unit,
			Command: actionConfig.Command,
			Log:     actionConfig.Log,
			Metric:  actionConfig.Metric,
		}

		if err := actions.ValidateAction(action); err != nil {
			return nil, errors.NewValidationError(
				fmt.Sprintf("failed to create action at index %d", i),
				err,
			).WithContext("action", actionConfig.Name)
		}

		result = append(result, action)
	}

	return result, nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *ReactorConfig) {
	if config.Reactor.Port == 0 {
		config.Reactor.Port = DefaultPort
	}
	if config.Reactor.LogLevel == "" {
		config.Reactor.LogLevel = "info"
	}
	if config.Reactor.LogFormat == "" {
		config.Reactor.LogFormat = "console"
	}
	if config.Reactor.ForceShutdownTimeout == 0 {
		config.Reactor.ForceShutdownTimeout = DefaultForceShutdownTimeout
	}

	for i := range config.Actions {
		action := &config.Actions[i]

		if action.Enabled == nil {
			enabled := true
			action.Enabled = &enabled
		}

		switch action.Type {
		case actions.KindCommand:
			if action.Timeout == 0 {
				action.Timeout = actions.DefaultCommandTimeout
			}
		case actions.KindMetric:
			if action.Metric != nil && action.Metric.ConnectTimeout == 0 {
				action.Metric.ConnectTimeout = metricsink.DefaultConnectTimeout
			}
		}
	}
}

func validateActionsConfig(actionConfigs []ActionConfig) error {
	seenNames := make(map[string]int)
	for i, action := range actionConfigs {
		if prevIndex, exists := seenNames[action.Name]; exists {
			return errors.NewValidationError(
				fmt.Sprintf("duplicate action name '%s' found at indices %d and %d", action.Name, prevIndex, i),
				nil,
			)
		}
		seenNames[action.Name] = i

		if err := validateActionParams(action); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("invalid parameters for action at index %d", i),
				err,
			).WithContext("action", action.Name).WithContext("type", string(action.Type))
		}
	}

	return nil
}

// validateActionParams checks that exactly the block matching the type is set
func validateActionParams(action ActionConfig) error {
	present := map[actions.Kind]bool{
		actions.KindRestartUnit: action.Unit != "",
		actions.KindCommand:     action.Command != nil,
		actions.KindLog:         action.Log != nil,
		actions.KindMetric:      action.Metric != nil,
	}

	for kind, set := range present {
		if set && kind != action.Type {
			return errors.NewValidationError(
				fmt.Sprintf("%s parameters are not allowed for %s action", kind, action.Type),
				nil,
			)
		}
	}

	if action.Type != actions.KindReboot && !present[action.Type] {
		return errors.NewValidationError(
			fmt.Sprintf("%s parameters are required for %s action", action.Type, action.Type),
			nil,
		)
	}

	return nil
}

func validateOutcomeMetric(config *ReactorConfig) error {
	name := config.Reactor.OutcomeMetric
	if name == "" {
		return nil
	}

	for _, action := range config.Actions {
		if action.Name != name {
			continue
		}
		if action.Type != actions.KindMetric {
			return errors.NewValidationError(
				fmt.Sprintf("outcome metric action '%s' must be of type metric", name),
				nil,
			).WithContext("type", string(action.Type))
		}
		if !action.IsEnabled() {
			return errors.NewValidationError(fmt.Sprintf("outcome metric action '%s' is disabled", name), nil)
		}
		return nil
	}

	return errors.NewNotFoundError(fmt.Sprintf("outcome metric action '%s' is not configured", name), nil)
}
