// Package sysstat summarises the output of the monitoring collectors:
// mpstat, iostat, sar, perf stat and the in-process system sampler.
//
// Every parser tolerates a missing file (zero summary, nil error) and skips
// lines it cannot read. Column positions are taken from the tool's header
// row when present, since sysstat versions differ in column layout.
package sysstat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/benchrun/benchrun/internal/safe"
)

// withFile opens path and hands it to parse. A missing file is not an error.
func withFile(path string, parse func(io.Reader) error) error {
	f, err := safe.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer safe.Close(f, zerolog.Nop(), "failed to close collector output")
	return parse(f)
}

func scanLines(r io.Reader, fn func(fields []string, line string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		fn(strings.Fields(line), line)
	}
	return scanner.Err()
}

// columns maps header names to indices.
type columns map[string]int

func headerColumns(fields []string) columns {
	c := make(columns, len(fields))
	for i, f := range fields {
		c[f] = i
	}
	return c
}

// float reads the column named name, or fallback when there is no header.
func (c columns) float(fields []string, name string, fallback int) (float64, bool) {
	idx := fallback
	if c != nil {
		i, ok := c[name]
		if !ok {
			return 0, false
		}
		idx = i
	}
	if idx < 0 || idx >= len(fields) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(fields[idx], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}
