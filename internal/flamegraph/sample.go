// Package flamegraph aggregates collapsed stack samples into a weighted
// call tree and serializes it as a nested-set table for flame graph
// rendering.
//
// Collapsed input has one sample per line: frames from root to leaf joined
// by ';', then whitespace, then a non-negative integer count:
//
//	main;run;handleRequest 42
//
// The tree is rooted at a synthetic node labelled "total". Rows come out in
// pre-order with siblings in descending weight, so a renderer can lay out
// the graph from (level, value) pairs alone.
package flamegraph

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

const (
	// RootLabel labels the synthetic root node.
	RootLabel = "total"
	// FrameSeparator joins frames in collapsed input.
	FrameSeparator = ";"

	maxLineBytes = 1 << 20
)

// StackSample is one collapsed stack with its sample count.
type StackSample struct {
	Frames []string
	Count  int64
}

// Path returns the frames joined with FrameSeparator.
func (s StackSample) Path() string {
	return strings.Join(s.Frames, FrameSeparator)
}

// ParseStats counts what ParseCollapsed saw.
type ParseStats struct {
	Lines     int
	Samples   int
	Blank     int
	Malformed int
}

// ParseCollapsed reads collapsed stacks from r. Malformed lines (no count,
// a negative or non-integer count, an empty frame) are dropped and counted
// in ParseStats; only a read error is returned as an error.
func ParseCollapsed(r io.Reader) ([]StackSample, ParseStats, error) {
	var (
		samples []StackSample
		stats   ParseStats
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		stats.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			stats.Blank++
			continue
		}
		sample, ok := parseLine(line)
		if !ok {
			stats.Malformed++
			continue
		}
		samples = append(samples, sample)
		stats.Samples++
	}
	if err := scanner.Err(); err != nil {
		return samples, stats, fmt.Errorf("failed to read collapsed stacks: %w", err)
	}
	return samples, stats, nil
}

func parseLine(line string) (StackSample, bool) {
	cut := strings.LastIndexFunc(line, isSpace)
	if cut < 0 {
		return StackSample{}, false
	}
	count, err := strconv.ParseInt(line[cut+1:], 10, 64)
	if err != nil || count < 0 {
		return StackSample{}, false
	}
	path := strings.TrimSpace(line[:cut])
	if path == "" {
		return StackSample{}, false
	}
	frames := strings.Split(path, FrameSeparator)
	for _, f := range frames {
		if f == "" {
			return StackSample{}, false
		}
	}
	return StackSample{Frames: frames, Count: count}, true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

// Canonicalize merges samples with identical frame paths and sorts the
// result by path, frame by frame. Any permutation of the same input lines
// yields the same output.
func Canonicalize(samples []StackSample) []StackSample {
	merged := make(map[string]int, len(samples))
	out := make([]StackSample, 0, len(samples))
	for _, s := range samples {
		if len(s.Frames) == 0 {
			continue
		}
		key := s.Path()
		if i, ok := merged[key]; ok {
			out[i].Count += s.Count
			continue
		}
		merged[key] = len(out)
		out = append(out, StackSample{Frames: slices.Clone(s.Frames), Count: s.Count})
	}
	slices.SortFunc(out, func(a, b StackSample) int {
		return slices.Compare(a.Frames, b.Frames)
	})
	return out
}

// WriteFolded writes samples in collapsed format, canonical order.
func WriteFolded(w io.Writer, samples []StackSample) error {
	bw := bufio.NewWriter(w)
	for _, s := range Canonicalize(samples) {
		if _, err := fmt.Fprintf(bw, "%s %d\n", s.Path(), s.Count); err != nil {
			return err
		}
	}
	return bw.Flush()
}
