package processfile

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-reactor/pkg/errors"
)

// ProcessFileMockLogger is a simple mock implementation of Logger for testing
type ProcessFileMockLogger struct{}

func (m *ProcessFileMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *ProcessFileMockLogger) Debugf(format string, args ...interface{})               {}
func (m *ProcessFileMockLogger) Infof(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Warnf(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Errorf(format string, args ...interface{})               {}

func newTestManager(t *testing.T, useSubdirectory bool) (*ProcessFileManager, string) {
	dir := t.TempDir()
	config := ProcessFileConfig{
		BaseDirectory:   dir,
		AppName:         "test-app",
		UseSubdirectory: useSubdirectory,
	}
	return NewProcessFileManager(config, &ProcessFileMockLogger{}), dir
}

func TestNewProcessFileManager_WithDefaults(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{}, &ProcessFileMockLogger{})

	assert.Equal(t, DefaultAppName, manager.config.AppName)
	assert.Equal(t, SystemService, manager.config.ServiceContext)
}

func TestGeneratePaths(t *testing.T) {
	tests := []struct {
		name            string
		useSubdirectory bool
		expectedPID     string
		expectedPort    string
	}{
		{"with subdirectory", true, "test-app/reactor.pid", "test-app/reactor.port"},
		{"without subdirectory", false, "reactor.pid", "reactor.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, dir := newTestManager(t, tt.useSubdirectory)

			assert.Equal(t, filepath.Join(dir, tt.expectedPID), manager.GeneratePIDFilePath("reactor"))
			assert.Equal(t, filepath.Join(dir, tt.expectedPort), manager.GeneratePortFilePath("reactor"))
		})
	}
}

func TestGeneratePIDFilePath_ServiceContexts(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/4242")

	user := NewProcessFileManager(ProcessFileConfig{ServiceContext: UserService}, &ProcessFileMockLogger{})
	assert.Equal(t, "/run/user/4242/reactor.pid", user.GeneratePIDFilePath("reactor"))

	system := NewProcessFileManager(ProcessFileConfig{ServiceContext: SystemService, UseSubdirectory: true}, &ProcessFileMockLogger{})
	assert.Contains(t, system.GeneratePIDFilePath("reactor"), "run/hsu-reactor/reactor.pid")
}

func TestWriteAndReadPortFile(t *testing.T) {
	manager, _ := newTestManager(t, true)

	require.NoError(t, manager.WritePIDFile("reactor", os.Getpid()))
	require.NoError(t, manager.WritePortFile("reactor", 50060))

	data, err := os.ReadFile(manager.GeneratePortFilePath("reactor"))
	require.NoError(t, err)
	assert.Equal(t, "50060\n", string(data))

	port, err := manager.ReadPortFile("reactor")
	require.NoError(t, err)
	assert.Equal(t, 50060, port)

	require.NoError(t, manager.Remove("reactor"))
	_, err = os.Stat(manager.GeneratePIDFilePath("reactor"))
	assert.True(t, os.IsNotExist(err))

	// removing twice is fine
	require.NoError(t, manager.Remove("reactor"))
}

func TestReadPortFile_StalePID(t *testing.T) {
	manager, _ := newTestManager(t, false)

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	require.NoError(t, manager.WritePIDFile("reactor", cmd.Process.Pid))
	require.NoError(t, manager.WritePortFile("reactor", 50060))

	_, err := manager.ReadPortFile("reactor")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestReadPortFile_Errors(t *testing.T) {
	manager, _ := newTestManager(t, false)

	_, err := manager.ReadPortFile("reactor")
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))

	require.NoError(t, os.WriteFile(manager.GeneratePIDFilePath("reactor"), []byte("garbage\n"), 0644))
	_, err = manager.ReadPortFile("reactor")
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestValidateProcessFileDirectory(t *testing.T) {
	dir := t.TempDir()

	nested := filepath.Join(dir, "a", "b", "reactor.pid")
	require.NoError(t, ValidateProcessFileDirectory(nested))
	info, err := os.Stat(filepath.Dir(nested))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	file := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	err = ValidateProcessFileDirectory(filepath.Join(file, "reactor.pid"))
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}
