// Package testutil provides testing utilities for benchrun.
package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext returns a context with a 30-second timeout that is
// cancelled when the test completes.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
