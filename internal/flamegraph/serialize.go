package flamegraph

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Row is one nested-set entry: a node's depth, its total weight, its self
// weight and its frame label.
type Row struct {
	Level int
	Value int64
	Self  int64
	Label string
}

// NestedSetHeader is the CSV header written by WriteNestedSet.
var NestedSetHeader = []string{"level", "value", "self", "label"}

// Serialize flattens the tree in pre-order. Siblings are ordered by
// descending total weight; equal weights keep insertion order, which for a
// tree from BuildTree is ascending frame-path order (see Canonicalize),
// not the order lines appeared in the input. The first row is always the
// root.
func Serialize(t *Tree) []Row {
	rows := make([]Row, 0, t.Len())
	stack := []NodeID{RootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes[id]
		rows = append(rows, Row{Level: n.Depth, Value: n.Total, Self: n.Self, Label: n.Label})

		children := slices.Clone(n.Children)
		slices.SortStableFunc(children, func(a, b NodeID) int {
			ta, tb := t.nodes[a].Total, t.nodes[b].Total
			switch {
			case ta > tb:
				return -1
			case ta < tb:
				return 1
			default:
				return 0
			}
		})
		// Push in reverse so the heaviest child is visited first.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return rows
}

// WriteNestedSet writes rows as CSV with NestedSetHeader.
func WriteNestedSet(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(NestedSetHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Level),
			strconv.FormatInt(r.Value, 10),
			strconv.FormatInt(r.Self, 10),
			r.Label,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadNestedSet parses the output of WriteNestedSet.
func ReadNestedSet(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(NestedSetHeader)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read nested set: %w", err)
	}
	if len(records) == 0 || !slices.Equal(records[0], NestedSetHeader) {
		return nil, fmt.Errorf("nested set: missing header %s", strings.Join(NestedSetHeader, ","))
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		level, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("nested set row %d: level: %w", i+1, err)
		}
		value, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("nested set row %d: value: %w", i+1, err)
		}
		self, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("nested set row %d: self: %w", i+1, err)
		}
		rows = append(rows, Row{Level: level, Value: value, Self: self, Label: rec[3]})
	}
	return rows, nil
}

// Validate checks the structural invariants of a nested-set table: a
// single level-0 root first, levels that never jump by more than one, and
// every value equal to its self weight plus its children's values.
func Validate(rows []Row) error {
	if len(rows) == 0 {
		return fmt.Errorf("nested set is empty")
	}
	if rows[0].Level != 0 {
		return fmt.Errorf("row 0: root level is %d", rows[0].Level)
	}

	childSum := make([]int64, len(rows))
	var parents []int
	for i, r := range rows {
		if i > 0 && r.Level == 0 {
			return fmt.Errorf("row %d: second root", i)
		}
		if r.Self < 0 || r.Self > r.Value {
			return fmt.Errorf("row %d: self %d outside [0, %d]", i, r.Self, r.Value)
		}
		if r.Level > len(parents) {
			return fmt.Errorf("row %d: level %d skips a level", i, r.Level)
		}
		parents = parents[:r.Level]
		if r.Level > 0 {
			childSum[parents[r.Level-1]] += r.Value
		}
		parents = append(parents, i)
	}

	for i, r := range rows {
		if r.Self+childSum[i] != r.Value {
			return fmt.Errorf("row %d (%s): value %d != self %d + children %d", i, r.Label, r.Value, r.Self, childSum[i])
		}
	}
	return nil
}

// Paths reconstructs the full root-to-node frame path of each row,
// excluding the root label.
func Paths(rows []Row) [][]string {
	out := make([][]string, len(rows))
	var stack []string
	for i, r := range rows {
		if r.Level == 0 {
			stack = stack[:0]
			out[i] = nil
			continue
		}
		if r.Level-1 < len(stack) {
			stack = stack[:r.Level-1]
		}
		stack = append(stack, r.Label)
		out[i] = slices.Clone(stack)
	}
	return out
}
