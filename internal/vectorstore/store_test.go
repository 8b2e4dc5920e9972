package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitWindows_OverlapsAndCoversWholeText(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	windows := splitWindows(text, windowConfig{size: 10, overlap: 3})
	require.NotEmpty(t, windows)
	require.Equal(t, "abcdefghij", windows[0])
	last := windows[len(windows)-1]
	require.Equal(t, "z", last[len(last)-1:])
}

func TestSplitWindows_DropsWhitespaceOnlyWindows(t *testing.T) {
	windows := splitWindows("   \t\n  ", windowConfig{size: 4, overlap: 1})
	require.Empty(t, windows)
}

func TestSplitWindows_EmptyInput(t *testing.T) {
	require.Empty(t, splitWindows("", defaultWindow))
}

func TestSplitWindows_InvalidConfigFallsBackToDefault(t *testing.T) {
	windows := splitWindows("short text", windowConfig{size: 0, overlap: -1})
	require.NotEmpty(t, windows)
}

func TestToVectorLiteral(t *testing.T) {
	require.Equal(t, "[1,2.5,-3]", toVectorLiteral([]float32{1, 2.5, -3}))
	require.Equal(t, "[]", toVectorLiteral(nil))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]string{"b": "2", "a": "1", "c": "3"}
	require.Equal(t, []string{"a", "b", "c"}, sortedKeys(m))
	require.Empty(t, sortedKeys(nil))
}
