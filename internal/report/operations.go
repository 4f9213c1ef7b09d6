package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/benchrun/benchrun/internal/phase"
)

// Payload keys written by the workload.
const (
	keyCommandName        = "command_name"
	keyNumRequests        = "num_requests"
	keySuccessfulRequests = "successful_requests"
	keyFailedRequests     = "failed_requests"
	keyLatencyMinUs       = "latency_min_us"
	keyLatencyMaxUs       = "latency_max_us"
	keyHistogram          = "histogram_json"
	keyTimeElapsed        = "time_elapsed"
	keyOperations         = "operations"
	keyElapsedSeconds     = "elapsed_seconds"
)

// OperationsFromRecords extracts per-command results from every completion
// record of phaseID. Delimited logs carry one command per row; JSON logs
// may carry an "operations" object instead. The elapsed time comes from
// the last completion record.
func OperationsFromRecords(records []phase.Record, phaseID string) (map[string]Operation, float64, error) {
	ops := make(map[string]Operation)
	var elapsed float64

	for _, rec := range records {
		if rec.PhaseID != phaseID || rec.Status != phase.StatusCompleted {
			continue
		}

		if raw, ok := rec.Payload[keyOperations]; ok {
			var byName map[string]Operation
			if err := json.Unmarshal(raw, &byName); err != nil {
				return nil, 0, fmt.Errorf("line %d: operations: %w", rec.LineNo, err)
			}
			for name, op := range byName {
				ops[name] = op
			}
		}

		if name, ok := rec.Payload.String(keyCommandName); ok && name != "" {
			op, err := operationFromPayload(rec.Payload)
			if err != nil {
				return nil, 0, fmt.Errorf("line %d: %s: %w", rec.LineNo, name, err)
			}
			ops[name] = op
		}

		for _, key := range []string{keyTimeElapsed, keyElapsedSeconds} {
			if s, ok := rec.Payload.String(key); ok {
				if v, err := strconv.ParseFloat(s, 64); err == nil {
					elapsed = v
					break
				}
			}
		}
	}
	return ops, elapsed, nil
}

func operationFromPayload(p phase.Payload) (Operation, error) {
	var op Operation
	fields := []struct {
		key string
		dst *int64
	}{
		{keyNumRequests, &op.TotalRequests},
		{keySuccessfulRequests, &op.SuccessfulRequests},
		{keyFailedRequests, &op.FailedRequests},
		{keyLatencyMinUs, &op.LatencyMinUs},
		{keyLatencyMaxUs, &op.LatencyMaxUs},
	}
	for _, f := range fields {
		if _, ok := p[f.key]; !ok {
			continue
		}
		if err := p.Decode(f.key, f.dst); err != nil {
			return op, fmt.Errorf("%s: %w", f.key, err)
		}
	}

	if s, ok := p.String(keyHistogram); ok && s != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		if err := dec.Decode(&op.Histogram); err != nil {
			return op, fmt.Errorf("%s: %w", keyHistogram, err)
		}
	}
	return op, nil
}
