package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppID(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.2.3"
	assert.Equal(t, "benchrun-1.2.3", AppID())
}
