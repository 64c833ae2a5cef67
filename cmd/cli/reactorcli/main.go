package main

import (
	"context"
	"fmt"
	"os"
	"time"

	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"

	coreControl "github.com/core-tools/hsu-core/pkg/control"
	coreDomain "github.com/core-tools/hsu-core/pkg/domain"
	coreLogging "github.com/core-tools/hsu-core/pkg/logging"

	"github.com/core-tools/hsu-reactor/pkg/actions"
	"github.com/core-tools/hsu-reactor/pkg/config"
	reactorLogging "github.com/core-tools/hsu-reactor/pkg/logging"
	"github.com/core-tools/hsu-reactor/pkg/process"
	"github.com/core-tools/hsu-reactor/pkg/processfile"
	"github.com/core-tools/hsu-reactor/pkg/reactor"
	"github.com/core-tools/hsu-reactor/pkg/systemd"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config     string `long:"config" description:"path to the reactor configuration file"`
	Action     string `long:"action" description:"name of the configured action to invoke once"`
	Payload    string `long:"payload" description:"command override for command actions, line for log and metric actions"`
	AttachPort int    `long:"port" description:"port of a running reactor to ping instead of invoking an action"`
	Ping       bool   `long:"ping" description:"ping the reactor whose port file is configured in the configuration file"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-client , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	logger := sprintfLogging.NewStdSprintfLogger()

	logger.Infof("opts: %+v", opts)

	if opts.AttachPort == 0 && opts.Config == "" {
		fmt.Println("Either attach port or configuration file is required")
		os.Exit(1)
	}
	if opts.AttachPort == 0 && !opts.Ping && opts.Action == "" {
		fmt.Println("Action is required unless pinging")
		os.Exit(1)
	}

	reactorLogger := reactorLogging.NewLogger(
		logPrefix("hsu-reactor"), reactorLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})

	if opts.Ping && opts.AttachPort == 0 {
		port, err := portFromRunFiles(opts.Config, reactorLogger)
		if err != nil {
			logger.Errorf("Failed to resolve reactor port: %v", err)
			os.Exit(1)
		}
		opts.AttachPort = port
	}

	if opts.AttachPort != 0 {
		coreLogger := coreLogging.NewLogger(
			logPrefix("hsu-core"), coreLogging.LogFuncs{
				Debugf: logger.Debugf,
				Infof:  logger.Infof,
				Warnf:  logger.Warnf,
				Errorf: logger.Errorf,
			})
		if err := ping(opts.AttachPort, coreLogger); err != nil {
			logger.Errorf("Failed to ping reactor: %v", err)
			os.Exit(1)
		}
		logger.Infof("Done")
		return
	}

	if !invoke(opts, reactorLogger) {
		os.Exit(1)
	}
	logger.Infof("Done")
}

func ping(port int, coreLogger coreLogging.Logger) error {
	coreConnectionOptions := coreControl.ConnectionOptions{
		AttachPort: port,
	}
	coreConnection, err := coreControl.NewConnection(coreConnectionOptions, coreLogger)
	if err != nil {
		return err
	}

	coreClientGateway := coreControl.NewGRPCClientGateway(coreConnection.GRPC(), coreLogger)

	retryPingOptions := coreDomain.RetryPingOptions{
		RetryAttempts: 10,
		RetryInterval: 1 * time.Second,
	}
	return coreDomain.RetryPing(context.Background(), coreClientGateway, retryPingOptions, coreLogger)
}

func portFromRunFiles(configFile string, logger reactorLogging.Logger) (int, error) {
	cfg, err := reactor.LoadConfig(configFile)
	if err != nil {
		return 0, err
	}
	if cfg.Reactor.RunFiles == nil {
		return cfg.Reactor.Port, nil
	}
	manager := processfile.NewProcessFileManager(*cfg.Reactor.RunFiles, logger)
	return manager.ReadPortFile(reactor.RunFileName)
}

func invoke(opts flagOptions, logger reactorLogging.Logger) bool {
	cfg, err := reactor.LoadConfig(opts.Config)
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return false
	}

	configured, err := config.BuildActions(cfg, logger)
	if err != nil {
		logger.Errorf("Failed to create actions: %v", err)
		return false
	}

	deps := actions.Dependencies{
		System:        systemd.NewClient(systemd.ClientOptions{EscapeUnitNames: cfg.Reactor.EscapeUnitNames}, logger),
		Runner:        process.NewRunner(cfg.Reactor.Runner, logger),
		OutcomeAction: cfg.Reactor.OutcomeMetric,
	}

	dispatcher, err := actions.NewDispatcher(configured, deps, logger)
	if err != nil {
		logger.Errorf("Failed to create dispatcher: %v", err)
		return false
	}
	defer dispatcher.Close()

	success := dispatcher.Invoke(context.Background(), opts.Action, opts.Payload)
	logger.Infof("Action %s finished, success: %t", opts.Action, success)
	return success
}
