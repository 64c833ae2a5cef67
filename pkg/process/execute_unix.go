//go:build !windows

package process

import (
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/core-tools/hsu-reactor/pkg/errors"
)

// setupProcessAttributes puts the child in its own process group, so a
// timeout can signal the shell and everything it started, and applies the
// credential switch that the child performs before exec.
func setupProcessAttributes(cmd *exec.Cmd, credential *syscall.Credential) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:    true,
		Credential: credential,
	}
}

// resolveCredential maps an account name to the uid/gid the child switches to.
// Unprivileged daemons cannot call setgroups, so supplementary groups are
// only reset when running as root.
func resolveCredential(account string) (*syscall.Credential, error) {
	if account == "" {
		return nil, nil
	}

	u, err := user.Lookup(account)
	if err != nil {
		return nil, errors.NewValidationError("unable to resolve user", err).WithContext("user", account)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, errors.NewValidationError("non-numeric uid", err).WithContext("user", account)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, errors.NewValidationError("non-numeric gid", err).WithContext("user", account)
	}

	return &syscall.Credential{
		Uid:         uint32(uid),
		Gid:         uint32(gid),
		NoSetGroups: os.Geteuid() != 0,
	}, nil
}
