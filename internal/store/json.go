package store

import (
	"encoding/json"
	"fmt"

	"github.com/benchrun/benchrun/internal/report"
)

func jsonMarshal(r *report.Report) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}
