package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig defines the daemon log backend
type ZapConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "console"
	Output string `yaml:"output"` // "stdout", "stderr", file path
	Caller bool   `yaml:"caller"`
}

func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// ZapBackend owns the zap logger behind a set of LogFuncs
type ZapBackend struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	close  func()
}

func NewZapBackend(config ZapConfig) (*ZapBackend, error) {
	level, err := getLevelFromString(config.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	closeFn := func() {}
	var writeSyncer zapcore.WriteSyncer
	switch config.Output {
	case "stdout":
		writeSyncer = zapcore.Lock(zapcore.AddSync(os.Stdout))
	case "stderr", "":
		writeSyncer = zapcore.Lock(zapcore.AddSync(os.Stderr))
	default:
		sink, closeSink, err := zap.Open(config.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %s: %w", config.Output, err)
		}
		writeSyncer = sink
		closeFn = closeSink
	}

	opts := []zap.Option{}
	if config.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	logger := zap.New(zapcore.NewCore(encoder, writeSyncer, level), opts...)

	return &ZapBackend{
		logger: logger,
		sugar:  logger.Sugar(),
		close:  closeFn,
	}, nil
}

// LogFuncs exposes the backend for NewLogger and for hsu-core's logger
func (z *ZapBackend) LogFuncs() LogFuncs {
	return LogFuncs{
		Debugf: z.sugar.Debugf,
		Infof:  z.sugar.Infof,
		Warnf:  z.sugar.Warnf,
		Errorf: z.sugar.Errorf,
	}
}

// Sync flushes buffered entries and releases a file output
func (z *ZapBackend) Sync() error {
	err := z.logger.Sync()
	z.close()
	return err
}

// zapcore.ParseLevel only exists from zap v1.27.0
func getLevelFromString(levelStr string) (zapcore.Level, error) {
	switch levelStr {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("invalid log level: %s", levelStr)
	}
}
