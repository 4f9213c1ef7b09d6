package phase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/benchrun/benchrun/internal/logging"
)

// LineSource delivers log lines in order. The channel is closed when the
// source has no more lines (tailer stopped or file fully read).
type LineSource interface {
	Lines() <-chan string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithGrammar sets the line grammar (default GrammarAuto).
func WithGrammar(g Grammar) Option {
	return func(w *Watcher) { w.parser = NewParser(g) }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = logging.Component(logger, "phase_watcher") }
}

// Watcher parses phase-status lines and latches phase completion.
//
// Synchronization contract: the read loop (Run) is the only writer. It
// stores a record under mu before setting the matching latch, so a waiter
// released by a latch always finds the record. The latches in the
// SignalSet are the only state shared with waiters without the mutex.
type Watcher struct {
	source  LineSource
	parser  *Parser
	signals *SignalSet
	logger  zerolog.Logger

	mu        sync.RWMutex
	records   map[string]Record
	errRecord *Record
	skipped   int

	running sync.Once
	done    chan struct{}
}

// NewWatcher creates a watcher for the given tracked phases.
func NewWatcher(source LineSource, phases []string, opts ...Option) (*Watcher, error) {
	if source == nil {
		return nil, errors.New("line source is required")
	}
	signals := NewSignalSet(phases...)
	if len(signals.Phases()) == 0 {
		return nil, errors.New("at least one phase must be tracked")
	}

	w := &Watcher{
		source:  source,
		parser:  NewParser(GrammarAuto),
		signals: signals,
		logger:  zerolog.Nop(),
		records: make(map[string]Record),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start runs the read loop in a new goroutine.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn().Err(err).Msg("Phase watcher stopped")
		}
	}()
}

// Run consumes lines until every tracked phase has latched, an ERROR
// record arrives, the source closes or ctx is done. Run may be called only
// once; later calls return immediately with an error.
//
// If the source closes before a tracked phase completes, its latch stays
// unset and WaitFor keeps blocking until the caller's context ends.
func (w *Watcher) Run(ctx context.Context) error {
	started := false
	w.running.Do(func() { started = true })
	if !started {
		return errors.New("phase watcher already running")
	}
	defer close(w.done)

	lines := w.source.Lines()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if !w.signals.AllComplete() {
					w.logger.Warn().
						Strs("phases", w.signals.Phases()).
						Msg("Phase log ended before all phases completed")
				}
				return nil
			}
			if stop := w.handleLine(line); stop {
				return nil
			}
		}
	}
}

// handleLine processes one line and reports whether the loop should stop.
func (w *Watcher) handleLine(line string) bool {
	parsed, err := w.parser.Parse(line)
	if err != nil {
		w.mu.Lock()
		w.skipped++
		w.mu.Unlock()
		w.logger.Debug().Err(err).Msg("Skipping unparseable phase line")
		return false
	}
	if parsed.Kind != LineRecord {
		return false
	}

	rec := parsed.Record
	w.logger.Debug().
		Str("phase", rec.PhaseID).
		Str("status", string(rec.Status)).
		Int("line", rec.LineNo).
		Msg("Phase record")

	switch rec.Status {
	case StatusError:
		w.mu.Lock()
		w.records[rec.PhaseID] = rec
		w.errRecord = &rec
		w.mu.Unlock()
		w.signals.Fail()
		w.logger.Error().
			Str("phase", rec.PhaseID).
			Str("message", rec.Message).
			Msg("Benchmark reported phase error")
		return true

	case StatusCompleted:
		if w.signals.IsComplete(rec.PhaseID) {
			return false
		}
		w.store(rec)
		if w.signals.Complete(rec.PhaseID) {
			w.logger.Info().Str("phase", rec.PhaseID).Msg("Phase completed")
		}

	case StatusRunning:
		if w.signals.IsComplete(rec.PhaseID) {
			return false
		}
		w.store(rec)
	}

	return w.signals.AllComplete()
}

func (w *Watcher) store(rec Record) {
	w.mu.Lock()
	w.records[rec.PhaseID] = rec
	w.mu.Unlock()
}

// Done returns a channel closed when Run returns.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Signals exposes the latch set.
func (w *Watcher) Signals() *SignalSet {
	return w.signals
}

// WaitFor blocks until the phase latches or the error latch is set. A nil
// return does not mean the phase completed: check Errored afterwards.
func (w *Watcher) WaitFor(ctx context.Context, phaseID string) error {
	if err := w.signals.Wait(ctx, phaseID); err != nil {
		return fmt.Errorf("waiting for phase %s: %w", phaseID, err)
	}
	return nil
}

// Errored reports whether an ERROR record has been seen.
func (w *Watcher) Errored() bool {
	return w.signals.Errored()
}

// ErrorRecord returns the ERROR record, if any.
func (w *Watcher) ErrorRecord() (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.errRecord == nil {
		return Record{}, false
	}
	return *w.errRecord, true
}

// Record returns the latest retained record for the phase.
func (w *Watcher) Record(phaseID string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.records[phaseID]
	return rec, ok
}

// Records returns a snapshot of every latched-or-seen phase's record.
func (w *Watcher) Records() map[string]Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]Record, len(w.records))
	for id, rec := range w.records {
		out[id] = rec
	}
	return out
}

// Skipped returns the number of lines dropped as unparseable.
func (w *Watcher) Skipped() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.skipped
}

// ErrorMessage returns the message of the ERROR record verbatim, or "".
func (w *Watcher) ErrorMessage() string {
	rec, ok := w.ErrorRecord()
	if !ok {
		return ""
	}
	return rec.Message
}
