package docid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cast-sync/cast/internal/fm"
)

func TestGenerateProducesCanonicalForm(t *testing.T) {
	t.Parallel()

	id := Generate()
	parsed, err := Parse(string(id))
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsNonCanonicalForm(t *testing.T) {
	t.Parallel()

	tests := []string{
		"not-a-uuid",
		"{01234567-89ab-cdef-0123-456789abcdef}",
		"01234567-89AB-CDEF-0123-456789ABCDEF",
	}

	for _, in := range tests {
		_, err := Parse(in)
		require.Error(t, err)
	}
}

func parseDoc(t *testing.T, src string) *fm.Frontmatter {
	t.Helper()

	doc, err := fm.Parse([]byte(src))
	require.NoError(t, err)

	if doc.Frontmatter == nil {
		return &fm.Frontmatter{}
	}

	return doc.Frontmatter
}

func TestEnsurePresentNotAParticipant(t *testing.T) {
	t.Parallel()

	fmData := parseDoc(t, "---\ntitle: hello\n---\nbody\n")

	outcome, id, err := EnsurePresent(fmData, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeNotParticipant, outcome)
	require.Empty(t, id)
	require.False(t, fmData.HasCastID())
}

func TestEnsurePresentGeneratesWhenAutoFix(t *testing.T) {
	t.Parallel()

	fmData := parseDoc(t, "---\ncast-type: note\n---\nbody\n")

	outcome, id, err := EnsurePresent(fmData, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeGenerated, outcome)
	require.NotEmpty(t, id)
	require.True(t, fmData.HasCastID())
	require.Equal(t, string(id), fmData.CastID)
}

func TestEnsurePresentWarnsExcludedWithoutAutoFix(t *testing.T) {
	t.Parallel()

	fmData := parseDoc(t, "---\ncast-type: note\n---\nbody\n")

	outcome, id, err := EnsurePresent(fmData, false)
	require.NoError(t, err)
	require.Equal(t, OutcomeWarnExcluded, outcome)
	require.Empty(t, id)
	require.False(t, fmData.HasCastID())
}

func TestEnsurePresentUnchangedWhenCanonical(t *testing.T) {
	t.Parallel()

	id := Generate()
	fmData := parseDoc(t, "---\ncast-id: "+string(id)+"\ncast-type: note\n---\nbody\n")

	outcome, gotID, err := EnsurePresent(fmData, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, outcome)
	require.Equal(t, id, gotID)
}

func TestEnsurePresentReorderWhenCastIDNotFirst(t *testing.T) {
	t.Parallel()

	id := Generate()
	fmData := parseDoc(t, "---\ncast-type: note\ncast-id: "+string(id)+"\n---\nbody\n")

	outcome, gotID, err := EnsurePresent(fmData, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeReorder, outcome)
	require.Equal(t, id, gotID)
}
