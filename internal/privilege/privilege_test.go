package privilege

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRoot(t *testing.T) {
	assert.Equal(t, os.Geteuid() == 0, IsRoot())
}

func TestIsRunningUnderSudo(t *testing.T) {
	t.Setenv("SUDO_USER", "")
	assert.False(t, IsRunningUnderSudo())

	t.Setenv("SUDO_USER", "bench")
	assert.True(t, IsRunningUnderSudo())
}

func TestDetectOriginalUser_Sudo(t *testing.T) {
	t.Setenv("SUDO_USER", "nobody-in-particular")
	t.Setenv("SUDO_UID", "1234")
	t.Setenv("SUDO_GID", "5678")

	uc, err := DetectOriginalUser()
	require.NoError(t, err)
	assert.Equal(t, "nobody-in-particular", uc.Username)
	assert.Equal(t, 1234, uc.UID)
	assert.Equal(t, 5678, uc.GID)
}

func TestDetectOriginalUser_BadUID(t *testing.T) {
	t.Setenv("SUDO_USER", "bench")
	t.Setenv("SUDO_UID", "abc")
	t.Setenv("SUDO_GID", "1")

	_, err := DetectOriginalUser()
	assert.Error(t, err)
}

func TestDetectOriginalUser_Current(t *testing.T) {
	t.Setenv("SUDO_USER", "")

	uc, err := DetectOriginalUser()
	require.NoError(t, err)
	assert.Equal(t, os.Getuid(), uc.UID)
}

func TestFixFileOwnership_NoopWithoutSudo(t *testing.T) {
	t.Setenv("SUDO_USER", "")
	p := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
	assert.NoError(t, FixFileOwnership(p))
}
