package report

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewJobID returns bench-YYYYMMDD-HHMMSS-xxxxxx with a UTC timestamp and a
// random lowercase hex suffix.
func NewJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return "bench-" + now.UTC().Format("20060102-150405") + "-" + suffix
}
