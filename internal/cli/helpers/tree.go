package helpers

import (
	"fmt"
	"io"
	"strings"

	"github.com/benchrun/benchrun/internal/flamegraph"
)

// RenderTree draws nested-set rows as an indented call tree. Subtrees whose
// weight falls below minPercent of the root are collapsed; maxDepth <= 0
// means unlimited.
func RenderTree(w io.Writer, rows []flamegraph.Row, minPercent float64, maxDepth int) error {
	if len(rows) == 0 || rows[0].Value == 0 {
		_, err := fmt.Fprintln(w, "No samples.")
		return err
	}

	total := float64(rows[0].Value)
	// last[d] reports whether the most recent node at depth d is the last
	// visible child of its parent.
	var last []bool
	hidden := -1

	for i, row := range rows {
		if hidden >= 0 && row.Level > hidden {
			continue
		}
		hidden = -1

		pct := float64(row.Value) / total * 100
		if row.Level > 0 && (pct < minPercent || (maxDepth > 0 && row.Level > maxDepth)) {
			hidden = row.Level
			continue
		}

		isLast := lastVisibleSibling(rows, i, total, minPercent, maxDepth)
		if len(last) <= row.Level {
			last = append(last, make([]bool, row.Level+1-len(last))...)
		}
		last[row.Level] = isLast

		var prefix strings.Builder
		for d := 1; d < row.Level; d++ {
			if last[d] {
				prefix.WriteString("  ")
			} else {
				prefix.WriteString("│ ")
			}
		}
		if row.Level > 0 {
			if isLast {
				prefix.WriteString("└─ ")
			} else {
				prefix.WriteString("├─ ")
			}
		}

		if _, err := fmt.Fprintf(w, "%s%s (%d samples, %.1f%%, self %d)\n",
			prefix.String(), row.Label, row.Value, pct, row.Self); err != nil {
			return err
		}
	}
	return nil
}

// lastVisibleSibling reports whether no later sibling of rows[i] is shown.
func lastVisibleSibling(rows []flamegraph.Row, i int, total, minPercent float64, maxDepth int) bool {
	level := rows[i].Level
	for j := i + 1; j < len(rows); j++ {
		switch {
		case rows[j].Level < level:
			return true
		case rows[j].Level == level:
			pct := float64(rows[j].Value) / total * 100
			if pct >= minPercent && (maxDepth <= 0 || level <= maxDepth) {
				return false
			}
		}
	}
	return true
}
