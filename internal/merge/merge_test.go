package merge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeIdenticalBodiesNoMarkers(t *testing.T) {
	t.Parallel()

	body := []byte("line one\nline two\nline three\n")

	merged, conflict := Merge(body, body)
	require.False(t, conflict)
	require.Equal(t, string(body), string(merged))
}

func TestMergeDivergentRegionProducesBalancedMarkers(t *testing.T) {
	t.Parallel()

	source := []byte("shared\nsource only\nshared again\n")
	destination := []byte("shared\ndest only\nshared again\n")

	merged, conflict := Merge(source, destination)
	require.True(t, conflict)

	out := string(merged)
	require.Equal(t, 1, strings.Count(out, "<<<<<<< SOURCE"))
	require.Equal(t, 1, strings.Count(out, "======="))
	require.Equal(t, 1, strings.Count(out, ">>>>>>> DESTINATION"))
	require.Contains(t, out, "source only")
	require.Contains(t, out, "dest only")
	require.Contains(t, out, "shared\n")
	require.Contains(t, out, "shared again\n")
}

func TestMergePreservesUnchangedPrefixAndSuffix(t *testing.T) {
	t.Parallel()

	source := []byte("head\nA\ntail\n")
	destination := []byte("head\nB\ntail\n")

	merged, conflict := Merge(source, destination)
	require.True(t, conflict)

	out := string(merged)
	require.True(t, strings.HasPrefix(out, "head\n"))
	require.True(t, strings.HasSuffix(out, "tail\n"))
}

func TestMergeMarksPureAdditionAsConflict(t *testing.T) {
	t.Parallel()

	source := []byte("line one\nline two\n")
	destination := []byte("line one\nline two\nline three\n")

	merged, conflict := Merge(source, destination)
	require.True(t, conflict)
	require.Contains(t, string(merged), "line three")
}
