// Package privilege detects elevated execution. Tuning kernel knobs and
// attaching perf to another process need root; output files created as
// root are handed back to the invoking user.
package privilege

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// UserContext identifies the user who invoked the run.
type UserContext struct {
	Username string
	UID      int
	GID      int
	HomeDir  string
}

// IsRoot reports whether the effective uid is 0.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// IsRunningUnderSudo reports whether SUDO_USER is set.
func IsRunningUnderSudo() bool {
	return os.Getenv("SUDO_USER") != ""
}

// DetectOriginalUser returns the sudo caller when running under sudo, and
// the current user otherwise.
func DetectOriginalUser() (*UserContext, error) {
	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("failed to get current user: %w", err)
		}
		return &UserContext{Username: u.Username, UID: os.Getuid(), GID: os.Getgid(), HomeDir: u.HomeDir}, nil
	}

	uid, err := strconv.Atoi(os.Getenv("SUDO_UID"))
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_UID: %w", err)
	}
	gid, err := strconv.Atoi(os.Getenv("SUDO_GID"))
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_GID: %w", err)
	}

	uc := &UserContext{Username: sudoUser, UID: uid, GID: gid}
	if u, err := user.Lookup(sudoUser); err == nil {
		uc.HomeDir = u.HomeDir
	}
	return uc, nil
}

// FixFileOwnership chowns paths to the sudo caller. It is a no-op unless
// running as root under sudo.
func FixFileOwnership(paths ...string) error {
	if !IsRoot() || !IsRunningUnderSudo() {
		return nil
	}

	uc, err := DetectOriginalUser()
	if err != nil {
		return fmt.Errorf("failed to detect original user: %w", err)
	}
	for _, p := range paths {
		if err := os.Lchown(p, uc.UID, uc.GID); err != nil {
			return fmt.Errorf("failed to chown %s to %d:%d: %w", p, uc.UID, uc.GID, err)
		}
	}
	return nil
}
