package sysstat

import (
	"io"
	"strings"
)

// DiskStats summarises iostat device rows. Byte totals assume one-second
// intervals.
type DiskStats struct {
	ReadBytes  int64 `json:"read_bytes"`
	WriteBytes int64 `json:"write_bytes"`
	ReadIOPS   int64 `json:"read_iops"`
	WriteIOPS  int64 `json:"write_iops"`
}

// ParseIostat summarises an `iostat -x 1` log.
func ParseIostat(path string) (DiskStats, error) {
	var stats DiskStats
	err := withFile(path, func(r io.Reader) error {
		var err error
		stats, err = ReadIostat(r)
		return err
	})
	return stats, err
}

// ReadIostat summarises iostat output. loop devices are ignored.
func ReadIostat(r io.Reader) (DiskStats, error) {
	var (
		stats                              DiskStats
		header                             columns
		inDevices                          bool
		readKB, writeKB, readOps, writeOps []float64
	)

	err := scanLines(r, func(fields []string, line string) {
		if strings.HasPrefix(line, "Device") {
			inDevices = true
			header = headerColumns(fields)
			return
		}
		if len(fields) == 0 {
			inDevices = false
			return
		}
		if !inDevices || strings.HasPrefix(fields[0], "loop") {
			return
		}

		rs, ok1 := header.float(fields, "r/s", 1)
		ws, ok2 := header.float(fields, "w/s", 2)
		rkb, ok3 := header.float(fields, "rkB/s", 3)
		wkb, ok4 := header.float(fields, "wkB/s", 4)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return
		}
		readOps = append(readOps, rs)
		writeOps = append(writeOps, ws)
		readKB = append(readKB, rkb)
		writeKB = append(writeKB, wkb)
	})
	if err != nil {
		return stats, err
	}

	if len(readKB) > 0 {
		stats.ReadBytes = int64(sum(readKB) * 1024)
		stats.ReadIOPS = int64(mean(readOps))
		stats.WriteBytes = int64(sum(writeKB) * 1024)
		stats.WriteIOPS = int64(mean(writeOps))
	}
	return stats, nil
}
