package process

import (
	"strings"

	"github.com/core-tools/hsu-reactor/pkg/errors"
)

// ValidateCommandSpec checks the parts of a CommandSpec that do not depend on the host
func ValidateCommandSpec(spec CommandSpec) error {
	if strings.TrimSpace(spec.Command) == "" {
		return errors.NewValidationError("command cannot be empty", nil)
	}
	if strings.ContainsRune(spec.Command, 0) {
		return errors.NewValidationError("command cannot contain NUL bytes", nil)
	}
	if strings.ContainsAny(spec.User, " \t\n:/") {
		return errors.NewValidationError("invalid user name: "+spec.User, nil)
	}
	return nil
}
