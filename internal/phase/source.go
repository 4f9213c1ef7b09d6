package phase

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// maxLineBytes bounds a single log line; JSON records with latency
// histograms can be a few hundred KiB.
const maxLineBytes = 4 << 20

// ReaderSource adapts an io.Reader to a LineSource. Lines are produced by a
// goroutine until EOF or ctx is done; Err reports any read error.
type ReaderSource struct {
	lines chan string
	err   error
	done  chan struct{}
}

// NewReaderSource starts reading r line by line.
func NewReaderSource(ctx context.Context, r io.Reader) *ReaderSource {
	s := &ReaderSource{
		lines: make(chan string),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case s.lines <- scanner.Text():
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}
		s.err = scanner.Err()
	}()
	return s
}

// Lines implements LineSource.
func (s *ReaderSource) Lines() <-chan string {
	return s.lines
}

// Err returns the read error once the line channel has been drained.
func (s *ReaderSource) Err() error {
	<-s.done
	return s.err
}

// ReadRecords parses every record in r, returning them in log order along
// with the number of skipped lines. It is used after a run to extract
// per-operation results from the complete log.
func ReadRecords(r io.Reader, g Grammar) ([]Record, int, error) {
	parser := NewParser(g)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		records []Record
		skipped int
	)
	for scanner.Scan() {
		line, err := parser.Parse(scanner.Text())
		if err != nil {
			skipped++
			continue
		}
		if line.Kind == LineRecord {
			records = append(records, line.Record)
		}
	}
	if err := scanner.Err(); err != nil {
		return records, skipped, fmt.Errorf("failed to read phase log: %w", err)
	}
	return records, skipped, nil
}
