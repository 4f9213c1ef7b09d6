package flamegraph

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, input string) []StackSample {
	t.Helper()
	samples, _, err := ParseCollapsed(strings.NewReader(input))
	require.NoError(t, err)
	return samples
}

func TestSerialize_Basic(t *testing.T) {
	rows := Serialize(BuildTree(mustParse(t, "a;b 3\na;c 2\na 1\n")))

	assert.Equal(t, []Row{
		{Level: 0, Value: 6, Self: 0, Label: "total"},
		{Level: 1, Value: 6, Self: 1, Label: "a"},
		{Level: 2, Value: 3, Self: 3, Label: "b"},
		{Level: 2, Value: 2, Self: 2, Label: "c"},
	}, rows)
	require.NoError(t, Validate(rows))
}

func TestSerialize_HeavierSiblingFirst(t *testing.T) {
	rows := Serialize(BuildTree(mustParse(t, "main;small 1\nmain;big 10\nother 4\n")))

	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Label
	}
	assert.Equal(t, []string{"total", "main", "big", "small", "other"}, labels)
}

func TestSerialize_EqualWeightsInPathOrder(t *testing.T) {
	rows := Serialize(BuildTree(mustParse(t, "main;zeta 2\nmain;alpha 2\nmain;mid 2\n")))

	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Label
	}
	assert.Equal(t, []string{"total", "main", "alpha", "mid", "zeta"}, labels)
}

func TestSerialize_Deterministic(t *testing.T) {
	lines := []string{
		"main;a;x 5",
		"main;a;y 5",
		"main;b 10",
		"main;c;x 1",
		"worker;loop 7",
		"worker;loop;io 3",
		"main;a;x 2",
		"idle 0",
	}
	want := Serialize(BuildTree(mustParse(t, strings.Join(lines, "\n"))))

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), lines...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Serialize(BuildTree(mustParse(t, strings.Join(shuffled, "\n"))))
		require.Equal(t, want, got, "order %v", shuffled)
	}
}

func TestBuildTree_Invariants(t *testing.T) {
	samples := mustParse(t, "a;b;c 4\na;b 2\na;d 1\ne 3\ne;f 0\n")
	tree := BuildTree(samples)

	var sum int64
	for _, s := range samples {
		sum += s.Count
	}
	assert.Equal(t, sum, tree.Total())

	for id := 0; id < tree.Len(); id++ {
		n := tree.Node(NodeID(id))
		var children int64
		for _, c := range n.Children {
			children += tree.Node(c).Total
			assert.Greater(t, int(c), id, "child index must exceed parent index")
		}
		assert.Equal(t, n.Self+children, n.Total, n.Label)
	}

	rows := Serialize(tree)
	require.NoError(t, Validate(rows))
	assert.Equal(t, "total", rows[0].Label)
}

func TestBuildTree_Empty(t *testing.T) {
	tree := BuildTree(nil)
	assert.True(t, tree.Empty())
	assert.Equal(t, []Row{{Level: 0, Value: 0, Self: 0, Label: RootLabel}}, Serialize(tree))
}

func TestParseCollapsed_DropsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"a;b notanumber",
		"a;b 3",
		"",
		"justoneword",
		"a;b -1",
		"a;;b 2",
		"java.lang.Thread.run;Foo.bar(Foo.java:10)\t7",
		"   ",
	}, "\n")

	samples, stats, err := ParseCollapsed(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 8, stats.Lines)
	assert.Equal(t, 2, stats.Blank)
	assert.Equal(t, 4, stats.Malformed)
	assert.Equal(t, 2, stats.Samples)
	require.Len(t, samples, 2)
	assert.Equal(t, []string{"a", "b"}, samples[0].Frames)
	assert.Equal(t, []string{"java.lang.Thread.run", "Foo.bar(Foo.java:10)"}, samples[1].Frames)
	assert.Equal(t, int64(7), samples[1].Count)

	rows := Serialize(BuildTree(samples))
	assert.Equal(t, int64(10), rows[0].Value)
}

func TestParseCollapsed_FramesWithSpaces(t *testing.T) {
	samples := mustParse(t, "start_thread;operator new(unsigned long) 9\n")
	require.Len(t, samples, 1)
	assert.Equal(t, []string{"start_thread", "operator new(unsigned long)"}, samples[0].Frames)
}

func TestCanonicalize_Merges(t *testing.T) {
	got := Canonicalize([]StackSample{
		{Frames: []string{"b"}, Count: 1},
		{Frames: []string{"a", "x"}, Count: 2},
		{Frames: []string{"b"}, Count: 4},
		{Frames: nil, Count: 9},
	})
	assert.Equal(t, []StackSample{
		{Frames: []string{"a", "x"}, Count: 2},
		{Frames: []string{"b"}, Count: 5},
	}, got)
}

func TestWriteFolded(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFolded(&buf, mustParse(t, "b 1\na;c 2\nb 3\n")))
	assert.Equal(t, "a;c 2\nb 4\n", buf.String())
}

func TestNestedSetRoundTrip(t *testing.T) {
	rows := Serialize(BuildTree(mustParse(t, "a;b 3\na;\"quoted,label\" 2\n")))

	var buf bytes.Buffer
	require.NoError(t, WriteNestedSet(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "level,value,self,label\n"))

	got, err := ReadNestedSet(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		rows []Row
	}{
		{name: "empty", rows: nil},
		{name: "root not level zero", rows: []Row{{Level: 1, Value: 1, Self: 1, Label: "a"}}},
		{name: "level skip", rows: []Row{
			{Level: 0, Value: 1, Label: "total"},
			{Level: 2, Value: 1, Self: 1, Label: "a"},
		}},
		{name: "sum mismatch", rows: []Row{
			{Level: 0, Value: 5, Label: "total"},
			{Level: 1, Value: 3, Self: 3, Label: "a"},
		}},
		{name: "two roots", rows: []Row{
			{Level: 0, Value: 0, Label: "total"},
			{Level: 0, Value: 0, Label: "total"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(tt.rows))
		})
	}
}

func TestPaths(t *testing.T) {
	rows := Serialize(BuildTree(mustParse(t, "a;b 3\na;c 2\nd 1\n")))
	assert.Equal(t, [][]string{
		nil,
		{"a"},
		{"a", "b"},
		{"a", "c"},
		{"d"},
	}, Paths(rows))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	tree, _, err := LoadFile(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.True(t, tree.Empty())
	assert.Equal(t, 1, tree.Len())

	path := filepath.Join(dir, "collapsed.txt")
	require.NoError(t, os.WriteFile(path, []byte("a;b 3\nbad line\n"), 0o644))
	tree, stats, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tree.Total())
	assert.Equal(t, 1, stats.Malformed)
}

func TestWriteProfile(t *testing.T) {
	tree := BuildTree(mustParse(t, "a;b 3\na;c 2\na 1\n"))

	var buf bytes.Buffer
	require.NoError(t, WriteProfile(&buf, tree, DefaultProfileOptions()))

	p, err := profile.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, p.SampleType, 1)
	assert.Equal(t, "samples", p.SampleType[0].Type)

	stacks := make(map[string]int64)
	var total int64
	for _, s := range p.Sample {
		var frames []string
		for i := len(s.Location) - 1; i >= 0; i-- {
			frames = append(frames, s.Location[i].Line[0].Function.Name)
		}
		stacks[strings.Join(frames, ";")] += s.Value[0]
		total += s.Value[0]
	}
	assert.Equal(t, tree.Total(), total)
	assert.Equal(t, map[string]int64{"a;b": 3, "a;c": 2, "a": 1}, stacks)
	assert.Len(t, p.Function, 3)
}
