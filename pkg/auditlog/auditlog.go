// Package auditlog appends audit records to plain-text files.
package auditlog

import (
	"os"
	"os/user"
	"strconv"

	"github.com/core-tools/hsu-reactor/pkg/errors"
	"github.com/core-tools/hsu-reactor/pkg/logging"
)

// Target describes one audit file.
// Header is written only by the call that creates the file; Owner is applied
// only at creation and only on a best-effort basis.
type Target struct {
	Path   string `yaml:"path" validate:"required"`
	Header string `yaml:"header,omitempty"`
	Owner  string `yaml:"owner,omitempty"`
}

// Append writes line plus a newline to target.Path.
func Append(target Target, line string, logger logging.Logger) error {
	isNew := false
	if _, err := os.Stat(target.Path); err != nil {
		isNew = true
	}

	file, err := os.OpenFile(target.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		logger.Errorf("Unable to open file: %s (Reason: %v)", target.Path, err)
		return errors.NewIOError("failed to open audit file", err).WithContext("path", target.Path)
	}

	content := line + "\n"
	if isNew && target.Header != "" {
		content = target.Header + "\n" + content
	}

	_, writeErr := file.WriteString(content)
	closeErr := file.Close()
	if writeErr != nil {
		logger.Errorf("Unable to write to file: %s (Reason: %v)", target.Path, writeErr)
		return errors.NewIOError("failed to write audit file", writeErr).WithContext("path", target.Path)
	}
	if closeErr != nil {
		logger.Errorf("Unable to close file: %s (Reason: %v)", target.Path, closeErr)
		return errors.NewIOError("failed to close audit file", closeErr).WithContext("path", target.Path)
	}

	if isNew && target.Owner != "" {
		if err := chownToAccount(target.Path, target.Owner); err != nil {
			logger.Warnf("Unable to chown log file %s: %v", target.Path, err)
		}
	}

	return nil
}

func chownToAccount(path, account string) error {
	uid, gid, err := lookupAccount(account)
	if err != nil {
		return err
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return errors.NewPermissionError("failed to change owner", err).WithContext("owner", account)
	}
	return nil
}

func lookupAccount(account string) (int, int, error) {
	u, err := user.Lookup(account)
	if err != nil {
		return 0, 0, errors.NewNotFoundError("unknown account", err).WithContext("owner", account)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, errors.NewValidationError("non-numeric uid", err).WithContext("owner", account)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, errors.NewValidationError("non-numeric gid", err).WithContext("owner", account)
	}
	return uid, gid, nil
}
