// Package errors holds cleanup helpers for defer statements. Each one logs
// a failure through the caller's logger rather than discarding it, and
// treats the "already done" error of its resource as success.
package errors

import (
	"database/sql"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// DeferClose closes closer, logging msg at warn level on failure. A nil
// closer or one that is already closed is fine.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Warn().Err(err).Msg(msg)
	}
}

// DeferRollback rolls tx back unless it was committed.
func DeferRollback(logger zerolog.Logger, tx *sql.Tx) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warn().Err(err).Msg("Transaction rollback failed")
	}
}

// DeferRemove deletes a partially written output file.
func DeferRemove(logger zerolog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to remove partial file")
	}
}
