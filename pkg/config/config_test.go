package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-reactor/pkg/actions"
	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
)

const comprehensiveConfig = `
reactor:
  port: 50061
  log_level: debug
  log_format: json
  metrics_listen: ":9273"
  outcome_metric: influx

actions:
  - name: reboot
    type: reboot
  - name: restart-nginx
    type: restart_unit
    unit: nginx.service
    timeout: 30s
  - name: cleanup
    type: command
    command:
      command: "rm -rf /tmp/cache"
      user: nobody
    timeout: 10s
  - name: audit
    type: log
    log:
      path: /var/log/reactor/audit.log
      header: "time;event"
      owner: syslog
  - name: influx
    type: metric
    metric:
      host: 127.0.0.1
      port: 8086
      path: "/api/v2/write?bucket=b&org=o"
      auth_token: "Token abc"
      timeout: 2.5
  - name: disabled
    type: reboot
    enabled: false
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "reactor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	config, err := LoadConfigFromFile(writeConfig(t, comprehensiveConfig))
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(config))

	assert.Equal(t, 50061, config.Reactor.Port)
	assert.Equal(t, "debug", config.Reactor.LogLevel)
	assert.Equal(t, "json", config.Reactor.LogFormat)
	assert.Equal(t, ":9273", config.Reactor.MetricsListen)
	assert.Equal(t, DefaultForceShutdownTimeout, config.Reactor.ForceShutdownTimeout)
	require.Len(t, config.Actions, 6)

	restart := config.Actions[1]
	assert.Equal(t, actions.KindRestartUnit, restart.Type)
	assert.Equal(t, "nginx.service", restart.Unit)
	assert.Equal(t, 30*time.Second, restart.Timeout)

	cleanup := config.Actions[2]
	require.NotNil(t, cleanup.Command)
	assert.Equal(t, "rm -rf /tmp/cache", cleanup.Command.Command)
	assert.Equal(t, "nobody", cleanup.Command.User)

	audit := config.Actions[3]
	require.NotNil(t, audit.Log)
	assert.Equal(t, "time;event", audit.Log.Header)
	assert.Equal(t, "syslog", audit.Log.Owner)

	influx := config.Actions[4]
	require.NotNil(t, influx.Metric)
	assert.Equal(t, uint16(8086), influx.Metric.Port)
	assert.Equal(t, "Token abc", influx.Metric.AuthToken)
	assert.Equal(t, 2.5, influx.Metric.Timeout)
	assert.Equal(t, 10*time.Second, influx.Metric.ConnectTimeout)

	assert.False(t, config.Actions[5].IsEnabled())
	assert.True(t, config.Actions[0].IsEnabled())
}

func TestLoadConfigFromFile_Errors(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))

	_, err = LoadConfigFromFile(writeConfig(t, "reactor: [unclosed"))
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestSetConfigDefaults(t *testing.T) {
	config, err := ParseConfig([]byte(`
actions:
  - name: c
    type: command
    command:
      command: "true"
  - name: m
    type: metric
    metric: {host: localhost, port: 8086, path: /write, timeout: 1}
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, config.Reactor.Port)
	assert.Equal(t, "info", config.Reactor.LogLevel)
	assert.Equal(t, "console", config.Reactor.LogFormat)
	assert.Equal(t, actions.DefaultCommandTimeout, config.Actions[0].Timeout)
	require.NotNil(t, config.Actions[0].Enabled)
	assert.True(t, *config.Actions[0].Enabled)
	assert.Equal(t, 10*time.Second, config.Actions[1].Metric.ConnectTimeout)
	assert.NoError(t, ValidateConfig(config))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		errContains string
	}{
		{
			name:        "invalid log level",
			configYAML:  "reactor: {log_level: verbose}",
			errContains: "reactor.log_level must be one of",
		},
		{
			name:        "invalid port",
			configYAML:  "reactor: {port: 70000}",
			errContains: "reactor.port must be <= 65535",
		},
		{
			name:        "invalid metrics listen",
			configYAML:  "reactor: {metrics_listen: nope}",
			errContains: "reactor.metrics_listen must be a host:port address",
		},
		{
			name:        "invalid run files context",
			configYAML:  "reactor: {run_files: {context: daemon}}",
			errContains: "reactor.run_files.context must be one of",
		},
		{
			name:        "unknown type",
			configYAML:  "actions: [{name: x, type: shutdown}]",
			errContains: "actions[0].type must be one of",
		},
		{
			name:        "missing name",
			configYAML:  "actions: [{type: reboot}]",
			errContains: "actions[0].name is required",
		},
		{
			name:        "metric without path",
			configYAML:  "actions: [{name: m, type: metric, metric: {host: h, port: 1, timeout: 1}}]",
			errContains: "actions[0].metric.path is required",
		},
		{
			name:        "metric path without slash",
			configYAML:  "actions: [{name: m, type: metric, metric: {host: h, port: 1, path: write, timeout: 1}}]",
			errContains: "actions[0].metric.path must start with /",
		},
		{
			name:        "metric zero timeout",
			configYAML:  "actions: [{name: m, type: metric, metric: {host: h, port: 1, path: /w}}]",
			errContains: "actions[0].metric.timeout must be > 0",
		},
		{
			name:        "command without command",
			configYAML:  "actions: [{name: c, type: command, command: {user: nobody}}]",
			errContains: "actions[0].command.command is required",
		},
		{
			name:        "unit with slash",
			configYAML:  "actions: [{name: r, type: restart_unit, unit: ../etc}]",
			errContains: "actions[0].unit must be a valid unit name",
		},
		{
			name:        "negative timeout",
			configYAML:  "actions: [{name: r, type: reboot, timeout: -1s}]",
			errContains: "actions[0].timeout must be >= 0",
		},
		{
			name:        "duplicate names",
			configYAML:  "actions: [{name: r, type: reboot}, {name: r, type: reboot}]",
			errContains: "duplicate action name 'r'",
		},
		{
			name:        "missing parameters",
			configYAML:  "actions: [{name: r, type: restart_unit}]",
			errContains: "restart_unit parameters are required",
		},
		{
			name:        "foreign parameters",
			configYAML:  "actions: [{name: r, type: reboot, unit: nginx.service}]",
			errContains: "not allowed for reboot action",
		},
		{
			name:        "outcome metric missing",
			configYAML:  "reactor: {outcome_metric: influx}",
			errContains: "is not configured",
		},
		{
			name:        "outcome metric wrong type",
			configYAML:  "reactor: {outcome_metric: r}\nactions: [{name: r, type: reboot}]",
			errContains: "must be of type metric",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := ParseConfig([]byte(tt.configYAML))
			require.NoError(t, err)

			err = ValidateConfig(config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestParseConfig_RunFiles(t *testing.T) {
	config, err := ParseConfig([]byte(`
reactor:
  run_files:
    base_directory: /tmp/reactor
    context: user
    use_subdirectory: true
`))
	require.NoError(t, err)
	require.NotNil(t, config.Reactor.RunFiles)
	assert.Equal(t, "/tmp/reactor", config.Reactor.RunFiles.BaseDirectory)
	assert.Equal(t, "user", string(config.Reactor.RunFiles.ServiceContext))
	assert.True(t, config.Reactor.RunFiles.UseSubdirectory)
	assert.NoError(t, ValidateConfig(config))
}

func TestValidateConfig_Nil(t *testing.T) {
	assert.Error(t, ValidateConfig(nil))
}

func TestBuildActions(t *testing.T) {
	config, err := ParseConfig([]byte(comprehensiveConfig))
	require.NoError(t, err)

	built, err := BuildActions(config, logging.Nop())
	require.NoError(t, err)

	require.Len(t, built, 5)
	names := make([]string, 0, len(built))
	for _, action := range built {
		names = append(names, action.Name)
	}
	assert.Equal(t, []string{"reboot", "restart-nginx", "cleanup", "audit", "influx"}, names)
	assert.Equal(t, actions.KindMetric, built[4].Kind)
	assert.Equal(t, "127.0.0.1", built[4].Metric.Host)
}

func TestBuildActions_InvalidAction(t *testing.T) {
	config := &ReactorConfig{Actions: []ActionConfig{{Name: "c", Type: actions.KindCommand}}}

	_, err := BuildActions(config, logging.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}
