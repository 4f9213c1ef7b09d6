package helpers

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchrun/benchrun/internal/flamegraph"
)

func sampleRows(t *testing.T) []flamegraph.Row {
	t.Helper()
	samples, _, err := flamegraph.ParseCollapsed(strings.NewReader("main;a;b 90\nmain;a;c 5\nmain;d 4\nidle 1\n"))
	require.NoError(t, err)
	return flamegraph.Serialize(flamegraph.BuildTree(samples))
}

func TestRenderTree(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderTree(&buf, sampleRows(t), 0, 0))

	want := strings.Join([]string{
		"total (100 samples, 100.0%, self 0)",
		"├─ main (99 samples, 99.0%, self 0)",
		"│ ├─ a (95 samples, 95.0%, self 0)",
		"│ │ ├─ b (90 samples, 90.0%, self 90)",
		"│ │ └─ c (5 samples, 5.0%, self 5)",
		"│ └─ d (4 samples, 4.0%, self 4)",
		"└─ idle (1 samples, 1.0%, self 1)",
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderTree_Pruned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderTree(&buf, sampleRows(t), 5, 2))

	want := strings.Join([]string{
		"total (100 samples, 100.0%, self 0)",
		"└─ main (99 samples, 99.0%, self 0)",
		"  └─ a (95 samples, 95.0%, self 0)",
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderTree_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderTree(&buf, nil, 0, 0))
	assert.Equal(t, "No samples.\n", buf.String())
}
