package sysstat

import (
	"io"
	"slices"
)

// CPUStats summarises mpstat's all-CPU rows.
type CPUStats struct {
	UserPercentAvg   float64 `json:"user_percent_avg"`
	UserPercentMax   float64 `json:"user_percent_max"`
	SystemPercentAvg float64 `json:"system_percent_avg"`
	SystemPercentMax float64 `json:"system_percent_max"`
	IdlePercentAvg   float64 `json:"idle_percent_avg"`
	IdlePercentMin   float64 `json:"idle_percent_min"`
	IowaitPercentAvg float64 `json:"iowait_percent_avg"`
	StealPercentAvg  float64 `json:"steal_percent_avg"`
}

// ParseMpstat summarises an `mpstat 1` log.
func ParseMpstat(path string) (CPUStats, error) {
	var stats CPUStats
	stats.IdlePercentMin = 100
	err := withFile(path, func(r io.Reader) error {
		var err error
		stats, err = ReadMpstat(r)
		return err
	})
	return stats, err
}

// ReadMpstat summarises mpstat output. Only per-interval "all" rows count;
// the trailing Average block is ignored.
func ReadMpstat(r io.Reader) (CPUStats, error) {
	stats := CPUStats{IdlePercentMin: 100}

	// Offsets from the CPU column when no header has been seen:
	// CPU %usr %nice %sys %iowait %irq %soft %steal %guest %gnice %idle
	var header columns
	var user, system, idle, iowait, steal []float64

	err := scanLines(r, func(fields []string, line string) {
		if len(fields) == 0 || fields[0] == "Average:" {
			return
		}
		cpuIdx := slices.Index(fields, "CPU")
		if cpuIdx >= 0 && slices.Contains(fields, "%idle") {
			header = relativeTo(fields, cpuIdx)
			return
		}
		allIdx := slices.Index(fields, "all")
		if allIdx < 0 {
			return
		}
		row := fields[allIdx:]

		u, ok1 := header.float(row, "%usr", 1)
		s, ok2 := header.float(row, "%sys", 3)
		w, ok3 := header.float(row, "%iowait", 4)
		st, ok4 := header.float(row, "%steal", 7)
		i, ok5 := header.float(row, "%idle", 10)
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
			return
		}
		user = append(user, u)
		system = append(system, s)
		iowait = append(iowait, w)
		steal = append(steal, st)
		idle = append(idle, i)
	})
	if err != nil {
		return stats, err
	}

	if len(user) > 0 {
		stats.UserPercentAvg = round1(mean(user))
		stats.UserPercentMax = round1(slices.Max(user))
		stats.SystemPercentAvg = round1(mean(system))
		stats.SystemPercentMax = round1(slices.Max(system))
		stats.IdlePercentAvg = round1(mean(idle))
		stats.IdlePercentMin = round1(slices.Min(idle))
		stats.IowaitPercentAvg = round1(mean(iowait))
		stats.StealPercentAvg = round1(mean(steal))
	}
	return stats, nil
}

// relativeTo maps header names to indices counted from base.
func relativeTo(fields []string, base int) columns {
	c := make(columns, len(fields)-base)
	for i := base; i < len(fields); i++ {
		c[fields[i]] = i - base
	}
	// Older sysstat spells %usr as %user.
	if i, ok := c["%user"]; ok {
		c["%usr"] = i
	}
	return c
}
