package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lines []string
}

func (r *recorder) funcs() LogFuncs {
	record := func(level string) LogFunc {
		return func(format string, args ...interface{}) {
			r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
		}
	}
	return LogFuncs{
		Debugf: record("debug"),
		Infof:  record("info"),
		Warnf:  record("warn"),
		Errorf: record("error"),
	}
}

func TestLogger_PrefixAndLevels(t *testing.T) {
	rec := &recorder{}
	logger := NewLogger("action: reboot , ", rec.funcs())

	logger.Debugf("a %d", 1)
	logger.Infof("b")
	logger.Warnf("c")
	logger.Errorf("d %s", "x")
	logger.LogLevelf(LogLevelInfo, "e")

	assert.Equal(t, []string{
		"debug action: reboot , a 1",
		"info action: reboot , b",
		"warn action: reboot , c",
		"error action: reboot , d x",
		"info action: reboot , e",
	}, rec.lines)
}

func TestWithPrefix_Nests(t *testing.T) {
	rec := &recorder{}
	parent := NewLogger("outer , ", rec.funcs())
	child := WithPrefix(parent, "inner , ")

	child.Infof("hello")

	assert.Equal(t, []string{"info outer , inner , hello"}, rec.lines)
}

func TestNop_DoesNotPanic(t *testing.T) {
	logger := Nop()
	logger.Debugf("x")
	logger.Errorf("y")
	logger.LogLevelf(LogLevelWarn, "z")
}

func TestZapBackend_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reactor.log")

	backend, err := NewZapBackend(ZapConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	logger := NewLogger("reactor , ", backend.LogFuncs())
	logger.Debugf("debug line %d", 7)
	logger.Errorf("error line")
	require.NoError(t, backend.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reactor , debug line 7")
	assert.Contains(t, string(data), `"level":"error"`)
}

func TestZapBackend_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reactor.log")

	backend, err := NewZapBackend(ZapConfig{Level: "warn", Output: path})
	require.NoError(t, err)

	logger := NewLogger("", backend.LogFuncs())
	logger.Infof("hidden")
	logger.Warnf("shown")
	require.NoError(t, backend.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestZapBackend_InvalidLevel(t *testing.T) {
	_, err := NewZapBackend(ZapConfig{Level: "verbose"})
	assert.Error(t, err)
}
