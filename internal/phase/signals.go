package phase

import (
	"context"
	"fmt"
)

// SignalSet holds one latch per tracked phase plus an error latch.
//
// The set of tracked phases is fixed at construction, so the map itself is
// never mutated and needs no lock; all mutable state lives in the latches.
// Failing the set latches the error latch first and then every phase latch,
// so a goroutine released from a phase wait always observes Errored() as
// true when the release was caused by an error.
type SignalSet struct {
	order  []string
	phases map[string]*Latch
	failed *Latch
}

// NewSignalSet creates latches for the given phase ids. Duplicate and empty
// ids are ignored.
func NewSignalSet(phaseIDs ...string) *SignalSet {
	s := &SignalSet{
		phases: make(map[string]*Latch, len(phaseIDs)),
		failed: NewLatch(),
	}
	for _, id := range phaseIDs {
		if id == "" {
			continue
		}
		if _, ok := s.phases[id]; ok {
			continue
		}
		s.phases[id] = NewLatch()
		s.order = append(s.order, id)
	}
	return s
}

// Phases returns the tracked phase ids in construction order.
func (s *SignalSet) Phases() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Tracks reports whether id is a tracked phase.
func (s *SignalSet) Tracks(id string) bool {
	_, ok := s.phases[id]
	return ok
}

// Complete latches the phase. It reports whether this call set the latch;
// untracked ids return false.
func (s *SignalSet) Complete(id string) bool {
	l, ok := s.phases[id]
	if !ok {
		return false
	}
	return l.Set()
}

// IsComplete reports whether the phase latch is set. After Fail every
// phase reports complete; check Errored to tell the two apart.
func (s *SignalSet) IsComplete(id string) bool {
	l, ok := s.phases[id]
	return ok && l.IsSet()
}

// AllComplete reports whether every tracked phase latch is set.
func (s *SignalSet) AllComplete() bool {
	for _, l := range s.phases {
		if !l.IsSet() {
			return false
		}
	}
	return true
}

// Fail sets the error latch and then forces every unset phase latch, so
// that all blocked waiters are released.
func (s *SignalSet) Fail() bool {
	first := s.failed.Set()
	for _, id := range s.order {
		s.phases[id].Set()
	}
	return first
}

// Errored reports whether the error latch is set.
func (s *SignalSet) Errored() bool {
	return s.failed.IsSet()
}

// ErrorDone returns a channel closed when the error latch is set.
func (s *SignalSet) ErrorDone() <-chan struct{} {
	return s.failed.Done()
}

// Wait blocks until the phase latch or the error latch is set. The return
// value does not distinguish the two: callers check Errored afterwards.
// It returns ctx.Err() if ctx ends first and ErrUnknownPhase for an
// untracked id.
func (s *SignalSet) Wait(ctx context.Context, id string) error {
	l, ok := s.phases[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, id)
	}
	select {
	case <-l.Done():
		return nil
	case <-s.failed.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
