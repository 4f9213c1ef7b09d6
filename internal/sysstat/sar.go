package sysstat

import (
	"io"
	"slices"
)

// NetworkStats totals sar per-interface rates over one-second intervals,
// excluding loopback.
type NetworkStats struct {
	BytesSent   int64 `json:"bytes_sent"`
	BytesRecv   int64 `json:"bytes_recv"`
	PacketsSent int64 `json:"packets_sent"`
	PacketsRecv int64 `json:"packets_recv"`
}

// ParseSarNetwork summarises a `sar -n DEV 1` log.
func ParseSarNetwork(path string) (NetworkStats, error) {
	var stats NetworkStats
	err := withFile(path, func(r io.Reader) error {
		var err error
		stats, err = ReadSarNetwork(r)
		return err
	})
	return stats, err
}

// ReadSarNetwork summarises sar network output.
func ReadSarNetwork(r io.Reader) (NetworkStats, error) {
	var (
		stats                      NetworkStats
		header                     columns
		width                      int
		rxPkts, txPkts, rxKB, txKB []float64
	)

	err := scanLines(r, func(fields []string, _ string) {
		if len(fields) == 0 || fields[0] == "Average:" {
			return
		}
		if idx := slices.Index(fields, "IFACE"); idx >= 0 {
			header = relativeTo(fields, idx)
			width = len(fields) - idx
			return
		}

		// Without a header, the interface is the second field (24h clock).
		ifaceIdx := 1
		if header != nil {
			ifaceIdx = len(fields) - width
		}
		if ifaceIdx < 0 || ifaceIdx >= len(fields) || fields[ifaceIdx] == "lo" {
			return
		}
		row := fields[ifaceIdx:]

		rp, ok1 := header.float(row, "rxpck/s", 1)
		tp, ok2 := header.float(row, "txpck/s", 2)
		rk, ok3 := header.float(row, "rxkB/s", 3)
		tk, ok4 := header.float(row, "txkB/s", 4)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return
		}
		rxPkts = append(rxPkts, rp)
		txPkts = append(txPkts, tp)
		rxKB = append(rxKB, rk)
		txKB = append(txKB, tk)
	})
	if err != nil {
		return stats, err
	}

	stats.BytesRecv = int64(sum(rxKB) * 1024)
	stats.BytesSent = int64(sum(txKB) * 1024)
	stats.PacketsRecv = int64(sum(rxPkts))
	stats.PacketsSent = int64(sum(txPkts))
	return stats, nil
}
