package reactor

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	corelogging "github.com/core-tools/hsu-core/pkg/logging"

	"github.com/core-tools/hsu-reactor/pkg/config"
	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
)

// LoadConfig loads and validates a configuration file without running anything
func LoadConfig(configFile string) (*config.ReactorConfig, error) {
	cfg, err := config.LoadConfigFromFile(configFile)
	if err != nil {
		return nil, errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}

	return cfg, nil
}

// OptionsFromConfig maps daemon-level configuration onto ReactorOptions
func OptionsFromConfig(cfg *config.ReactorConfig) ReactorOptions {
	return ReactorOptions{
		Port:                 cfg.Reactor.Port,
		MetricsListen:        cfg.Reactor.MetricsListen,
		OutcomeMetric:        cfg.Reactor.OutcomeMetric,
		ForceShutdownTimeout: cfg.Reactor.ForceShutdownTimeout,
		EscapeUnitNames:      cfg.Reactor.EscapeUnitNames,
		Runner:               cfg.Reactor.Runner,
		RunFiles:             cfg.Reactor.RunFiles,
	}
}

// Run starts the reactor for cfg and blocks until SIGINT/SIGTERM or, when
// runDuration is positive, until that many seconds have passed.
func Run(runDuration int, cfg *config.ReactorConfig, coreLogger corelogging.Logger, reactorLogger logging.Logger) error {
	reactorLogger.Infof("Reactor runner starting...")

	// Create context with run duration
	ctx := context.Background()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		reactorLogger.Infof("Using RUN DURATION of %v", duration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	reactorActions, err := config.BuildActions(cfg, reactorLogger)
	if err != nil {
		return errors.NewValidationError("failed to create actions from configuration", err)
	}

	reactorLogger.Infof("Reactor port: %d, Actions: %d", cfg.Reactor.Port, len(reactorActions))

	reactor, err := NewReactor(OptionsFromConfig(cfg), reactorActions, coreLogger, reactorLogger)
	if err != nil {
		return errors.NewInternalError("failed to create reactor", err)
	}

	if err := reactor.Start(ctx); err != nil {
		return err
	}

	reactorLogger.Infof("Enabling signal handling...")

	// Enable signal handling
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	reactorLogger.Infof("Reactor is ready")

	// Wait for graceful shutdown or timeout
	select {
	case receivedSignal := <-sig:
		reactorLogger.Infof("Reactor runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		reactorLogger.Infof("Reactor runner timed out")
	}

	reactorLogger.Infof("Ready to stop reactor...")

	// Reset context to background to enable graceful shutdown
	if err := reactor.Stop(context.Background()); err != nil {
		reactorLogger.Errorf("Reactor stopped with errors: %v", err)
		return err
	}

	reactorLogger.Infof("Reactor runner stopped")

	return nil
}
