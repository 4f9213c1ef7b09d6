package flamegraph

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/benchrun/benchrun/internal/safe"
)

// NodeID addresses a node in a Tree's arena.
type NodeID int

// RootID is the synthetic root.
const RootID NodeID = 0

// Node is one call-tree vertex. Children are kept in insertion order.
type Node struct {
	Label    string
	Parent   NodeID
	Depth    int
	Self     int64
	Total    int64
	Children []NodeID
}

type childKey struct {
	parent NodeID
	label  string
}

// Tree is an arena-backed call tree. A child's ID is always greater than its
// parent's, which lets totals be computed in one reverse pass.
type Tree struct {
	nodes []Node
	index map[childKey]NodeID
}

// NewTree returns a tree holding only the root.
func NewTree() *Tree {
	return &Tree{
		nodes: []Node{{Label: RootLabel, Parent: -1}},
		index: make(map[childKey]NodeID),
	}
}

// BuildTree folds samples into a call tree. Samples are canonicalized first
// so the result does not depend on input order.
func BuildTree(samples []StackSample) *Tree {
	t := NewTree()
	for _, s := range Canonicalize(samples) {
		t.add(s)
	}
	t.computeTotals()
	return t
}

func (t *Tree) add(s StackSample) {
	cur := RootID
	for _, frame := range s.Frames {
		key := childKey{parent: cur, label: frame}
		next, ok := t.index[key]
		if !ok {
			next = NodeID(len(t.nodes))
			t.nodes = append(t.nodes, Node{
				Label:  frame,
				Parent: cur,
				Depth:  t.nodes[cur].Depth + 1,
			})
			t.nodes[cur].Children = append(t.nodes[cur].Children, next)
			t.index[key] = next
		}
		cur = next
	}
	t.nodes[cur].Self += s.Count
}

func (t *Tree) computeTotals() {
	for i := range t.nodes {
		t.nodes[i].Total = t.nodes[i].Self
	}
	for i := len(t.nodes) - 1; i > 0; i-- {
		t.nodes[t.nodes[i].Parent].Total += t.nodes[i].Total
	}
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node with the given ID.
func (t *Tree) Node(id NodeID) Node {
	return t.nodes[id]
}

// Root returns the root node.
func (t *Tree) Root() Node {
	return t.nodes[RootID]
}

// Total returns the root weight, the sum of every sample count.
func (t *Tree) Total() int64 {
	return t.nodes[RootID].Total
}

// Empty reports whether the tree has no weight.
func (t *Tree) Empty() bool {
	return t.Total() == 0
}

// LoadFile parses a collapsed-stack file into a tree. A missing or
// unreadable file yields a root-only tree together with the error, so
// callers can carry on with an empty graph.
func LoadFile(path string) (*Tree, ParseStats, error) {
	f, err := safe.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewTree(), ParseStats{}, fmt.Errorf("profiler output %s not found: %w", path, err)
		}
		return NewTree(), ParseStats{}, fmt.Errorf("failed to open profiler output: %w", err)
	}
	defer safe.Close(f, zerolog.Nop(), "failed to close profiler output")

	samples, stats, err := ParseCollapsed(f)
	if err != nil {
		return NewTree(), stats, err
	}
	return BuildTree(samples), stats, nil
}
