// Package processfile places and manages the daemon's PID and port files.
package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
	"github.com/core-tools/hsu-reactor/pkg/processstate"
)

// Default application name for HSU Reactor
const DefaultAppName = "hsu-reactor"

// ProcessFileConfig holds configuration for process file generation (PID files, port files)
type ProcessFileConfig struct {
	// Base directory for process files. If empty, derived from ServiceContext
	BaseDirectory string `yaml:"base_directory,omitempty"`

	ServiceContext ServiceContext `yaml:"context,omitempty" validate:"omitempty,oneof=system user session"`

	// Application name for subdirectory creation
	AppName string `yaml:"app_name,omitempty"`

	// Create subdirectory for the app (recommended for system services)
	UseSubdirectory bool `yaml:"use_subdirectory,omitempty"`
}

// ServiceContext defines the context in which the daemon runs
type ServiceContext string

const (
	SystemService  ServiceContext = "system"
	UserService    ServiceContext = "user"
	SessionService ServiceContext = "session"
)

type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = SystemService
	}

	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

func (m *ProcessFileManager) GeneratePIDFilePath(name string) string {
	baseDir := m.getBaseDirectory()
	if m.config.UseSubdirectory {
		baseDir = filepath.Join(baseDir, m.config.AppName)
	}
	return filepath.Join(baseDir, name+".pid")
}

func (m *ProcessFileManager) GeneratePortFilePath(name string) string {
	return strings.TrimSuffix(m.GeneratePIDFilePath(name), ".pid") + ".port"
}

func (m *ProcessFileManager) WritePIDFile(name string, pid int) error {
	return m.writeNumber(m.GeneratePIDFilePath(name), "PID", pid)
}

func (m *ProcessFileManager) WritePortFile(name string, port int) error {
	return m.writeNumber(m.GeneratePortFilePath(name), "port", port)
}

// ReadPortFile reads the port of a running daemon. A port file whose PID file
// names a dead process is reported as stale.
func (m *ProcessFileManager) ReadPortFile(name string) (int, error) {
	pid, err := m.readNumber(m.GeneratePIDFilePath(name), "PID")
	if err != nil {
		return 0, err
	}
	running, err := processstate.IsProcessRunning(pid)
	if err != nil || !running {
		return 0, errors.NewNotFoundError("daemon is not running", err).WithContext("pid", pid)
	}
	return m.readNumber(m.GeneratePortFilePath(name), "port")
}

// Remove deletes both files; missing files are not an error
func (m *ProcessFileManager) Remove(name string) error {
	collection := errors.NewErrorCollection()
	for _, path := range []string{m.GeneratePIDFilePath(name), m.GeneratePortFilePath(name)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			collection.Add(errors.NewIOError("failed to remove process file", err).WithContext("path", path))
		}
	}
	return collection.ToError()
}

func (m *ProcessFileManager) writeNumber(path string, kind string, value int) error {
	m.logger.Debugf("Writing %s file, value: %d, path: %s", kind, value, path)

	if err := ValidateProcessFileDirectory(path); err != nil {
		m.logger.Errorf("%s file directory validation failed, path: %s, error: %v", kind, path, err)
		return err
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", value)), 0644); err != nil {
		m.logger.Errorf("Failed to write %s file, path: %s, error: %v", kind, path, err)
		return errors.NewIOError(fmt.Sprintf("failed to write %s file", kind), err).WithContext("path", path)
	}

	m.logger.Infof("%s file written successfully, value: %d, path: %s", kind, value, path)
	return nil
}

func (m *ProcessFileManager) readNumber(path string, kind string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warnf("Failed to read %s file, path: %s, error: %v", kind, path, err)
		return 0, errors.NewIOError(fmt.Sprintf("failed to read %s file", kind), err).WithContext("path", path)
	}

	text := strings.TrimSpace(string(content))
	value, err := strconv.Atoi(text)
	if err != nil || value <= 0 {
		return 0, errors.NewValidationError(fmt.Sprintf("invalid content in %s file", kind), err).
			WithContext("path", path).WithContext("content", text)
	}
	return value, nil
}

func (m *ProcessFileManager) getBaseDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}

	switch m.config.ServiceContext {
	case UserService:
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return runtimeDir
		}
		return os.TempDir()
	case SessionService:
		sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
		if _, err := os.Stat(sessionDir); err == nil {
			return sessionDir
		}
		return os.TempDir()
	default:
		// Modern standard is /run, with fallback to /var/run
		if _, err := os.Stat("/run"); err == nil {
			return "/run"
		}
		return "/var/run"
	}
}

// ValidateProcessFileDirectory creates the directory of path if needed and
// checks that it is writable
func ValidateProcessFileDirectory(path string) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to access process file directory", err).WithContext("directory", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create process file directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("process file path is not a directory", nil).WithContext("path", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return errors.NewPermissionError("process file directory is not writable", err).WithContext("directory", dir)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}
