package testutil

import (
	"io"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

// EnvTestLogs set to a non-empty value routes test loggers to t.Log.
const EnvTestLogs = "BENCHRUN_TEST_LOGS"

// NewTestLogger returns a logger that discards output, or a debug-level
// logger writing to t.Log when $BENCHRUN_TEST_LOGS is set.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	if os.Getenv(EnvTestLogs) == "" {
		return zerolog.New(io.Discard)
	}
	out := zerolog.ConsoleWriter{Out: testLogWriter{t: t}, NoColor: true}
	return zerolog.New(out).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// testLogWriter adapts t.Log to io.Writer.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
