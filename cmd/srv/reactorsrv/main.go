package main

import (
	"fmt"
	"os"

	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"

	coreLogging "github.com/core-tools/hsu-core/pkg/logging"
	reactorLogging "github.com/core-tools/hsu-reactor/pkg/logging"
	"github.com/core-tools/hsu-reactor/pkg/reactor"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" description:"path to the reactor configuration file"`
	RunDuration int    `long:"run-duration" description:"Duration in seconds to run the reactor (debug feature)"`
	LogLevel    string `long:"log-level" description:"overrides the configured log level"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-server , ", module)
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

	bootLogger := sprintfLogging.NewStdSprintfLogger()

	bootLogger.Infof("opts: %+v", opts)

	if opts.Config == "" {
		fmt.Println("Configuration file is required")
		os.Exit(1)
	}

	config, err := reactor.LoadConfig(opts.Config)
	if err != nil {
		bootLogger.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	zapConfig := reactorLogging.ZapConfig{
		Level:  config.Reactor.LogLevel,
		Format: config.Reactor.LogFormat,
		Output: config.Reactor.LogOutput,
	}
	if opts.LogLevel != "" {
		zapConfig.Level = opts.LogLevel
	}

	backend, err := reactorLogging.NewZapBackend(zapConfig)
	if err != nil {
		bootLogger.Errorf("Failed to create logger: %v", err)
		os.Exit(1)
	}
	defer backend.Sync()

	logger := reactorLogging.NewLogger("", backend.LogFuncs())

	logger.Infof("Starting...")

	coreLogger := coreLogging.NewLogger(
		logPrefix("hsu-core"), coreLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})
	reactorLogger := reactorLogging.NewLogger(
		logPrefix("hsu-reactor"), reactorLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})

	if err := reactor.Run(opts.RunDuration, config, coreLogger, reactorLogger); err != nil {
		reactorLogger.Errorf("Reactor failed: %v", err)
		backend.Sync()
		os.Exit(1)
	}
}
