package logging

const (
	LogLevelDebug = 0
	LogLevelInfo  = 1
	LogLevelWarn  = 2
	LogLevelError = 3
)

// Logger is the leveled sink every action primitive writes to.
// Implementations must never block indefinitely.
type Logger interface {
	LogLevelf(level int, format string, args ...interface{})
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
}

type LogLevelFunc func(level int, format string, args ...interface{})
type LogFunc func(format string, args ...interface{})

type LogFuncs struct {
	LogLevelf LogLevelFunc
	Debugf    LogFunc
	Infof     LogFunc
	Warnf     LogFunc
	Errorf    LogFunc
}

type logger struct {
	prefix string
	funcs  LogFuncs
}

func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &logger{
		prefix: prefix,
		funcs:  funcs,
	}
}

// WithPrefix derives a logger that prepends prefix to every message of parent
func WithPrefix(parent Logger, prefix string) Logger {
	return NewLogger(prefix, LogFuncs{
		Debugf: parent.Debugf,
		Infof:  parent.Infof,
		Warnf:  parent.Warnf,
		Errorf: parent.Errorf,
	})
}

// Nop discards everything
func Nop() Logger {
	return NewLogger("", LogFuncs{})
}

// funcFor returns nil for unknown levels and unset functions
func (l *logger) funcFor(level int) LogFunc {
	switch level {
	case LogLevelDebug:
		return l.funcs.Debugf
	case LogLevelInfo:
		return l.funcs.Infof
	case LogLevelWarn:
		return l.funcs.Warnf
	case LogLevelError:
		return l.funcs.Errorf
	}
	return nil
}

func (l *logger) logf(level int, msg string, args ...interface{}) {
	msg = l.prefix + msg
	if l.funcs.LogLevelf != nil {
		l.funcs.LogLevelf(level, msg, args...)
		return
	}
	if fn := l.funcFor(level); fn != nil {
		fn(msg, args...)
	}
}

func (l *logger) LogLevelf(level int, format string, args ...interface{}) {
	l.logf(level, format, args...)
}

func (l *logger) Debugf(msg string, args ...interface{}) {
	l.logf(LogLevelDebug, msg, args...)
}

func (l *logger) Infof(msg string, args ...interface{}) {
	l.logf(LogLevelInfo, msg, args...)
}

func (l *logger) Warnf(msg string, args ...interface{}) {
	l.logf(LogLevelWarn, msg, args...)
}

func (l *logger) Errorf(msg string, args ...interface{}) {
	l.logf(LogLevelError, msg, args...)
}
