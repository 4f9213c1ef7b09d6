// Package phase watches the phase-status log written by a benchmark
// workload and turns phase completion into latches other goroutines can
// block on.
//
// A benchmark appends one record per line while it runs. Two line grammars
// are understood: the delimited form
//
//	phase,status,timestamp,...
//	WARMUP,running,...
//	WARMUP,done,...
//
// and one JSON object per line
//
//	{"phase":{"id":"STEADY","status":"COMPLETED"},"operations":{...}}
//
// The Watcher consumes lines from a LineSource (normally a tail.Tailer),
// keeps the latest record per phase and latches each tracked phase on its
// first completion record. An ERROR record latches the error signal, which
// in turn releases every phase waiter.
package phase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Well-known phase ids written by the benchmark workload.
const (
	Warmup = "WARMUP"
	Steady = "STEADY"
)

var (
	// ErrUnknownPhase is returned when waiting on a phase that is not tracked.
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrUnknownStatus is returned for a status token outside the grammar.
	ErrUnknownStatus = errors.New("unknown phase status")
	// ErrMalformedLine is returned for lines that do not fit the grammar.
	ErrMalformedLine = errors.New("malformed phase line")
	// ErrUnsupportedGrammar is returned for grammar values the parser does not know.
	ErrUnsupportedGrammar = errors.New("unsupported line grammar")
)

// Status is the state reported by a phase-status record.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// ParseStatus maps a status token to a Status. The delimited grammar's
// running/done tokens map to RUNNING/COMPLETED.
func ParseStatus(token string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "RUNNING":
		return StatusRunning, nil
	case "COMPLETED", "DONE":
		return StatusCompleted, nil
	case "ERROR", "FAILED":
		return StatusError, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, token)
	}
}

// IsTerminal reports whether the status ends the phase.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Payload holds the record fields the watcher passes through without
// interpreting. Values are raw JSON; delimited fields are stored as JSON
// strings.
type Payload map[string]json.RawMessage

// String returns the field as text. JSON strings are unquoted, any other
// JSON value is returned verbatim.
func (p Payload) String(key string) (string, bool) {
	raw, ok := p[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// Decode unmarshals a field into v. Delimited fields are stored as JSON
// strings, so their contents (numbers, embedded histogram JSON) are decoded
// from the string text.
func (p Payload) Decode(key string, v any) error {
	raw, ok := p[key]
	if !ok {
		return fmt.Errorf("payload field %q not present", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return json.Unmarshal(raw, v)
	}
	if sp, ok := v.(*string); ok {
		*sp = s
		return nil
	}
	return json.Unmarshal([]byte(strings.TrimSpace(s)), v)
}

// Record is one parsed phase-status line.
type Record struct {
	PhaseID string
	Status  Status
	// Message carries the error text of an ERROR record, verbatim.
	Message string
	Payload Payload
	// LineNo is the 1-based line number within the log.
	LineNo int
}
