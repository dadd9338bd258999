package fm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNoFrontmatter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"plain body", "just a file\nwith lines\n"},
		{"dashes not at start", "# Title\n---\nfoo: bar\n---\n"},
		{"unterminated delimiter", "---\nfoo: bar\nno closing fence\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			require.Nil(t, doc.Frontmatter)
		})
	}
}

func TestParseMalformedFrontmatter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"scalar body, not a mapping", "---\njust a string\n---\nbody\n"},
		{"sequence body, not a mapping", "---\n- a\n- b\n---\nbody\n"},
		{"invalid yaml syntax", "---\nfoo: [unterminated\n---\nbody\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.input))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseCastFields(t *testing.T) {
	t.Parallel()

	input := "---\n" +
		"cast-id: 0123456789abcdef0123456789abcdef\n" +
		"cast-type: note\n" +
		"cast-vaults:\n" +
		"  - work (cast)\n" +
		"  - home (sync)\n" +
		"title: My Note\n" +
		"---\n" +
		"body text\n"

	doc, err := Parse([]byte(input))
	require.NoError(t, err)
	require.NotNil(t, doc.Frontmatter)
	require.True(t, doc.Frontmatter.HasCastID())
	require.Equal(t, "0123456789abcdef0123456789abcdef", doc.Frontmatter.CastID)
	require.Equal(t, "note", doc.Frontmatter.CastType)
	require.True(t, doc.Frontmatter.HasCastVaults())
	require.Equal(t, []string{"work (cast)", "home (sync)"}, doc.Frontmatter.CastVaults)
	require.Len(t, doc.Frontmatter.Local, 1)
	require.Equal(t, "title", doc.Frontmatter.Local[0].Key)
	require.Equal(t, []byte("body text\n"), doc.Body)
}

func TestParseCRLFNormalized(t *testing.T) {
	t.Parallel()

	input := "---\r\ncast-id: abc\r\n---\r\nbody\r\n"

	doc, err := Parse([]byte(input))
	require.NoError(t, err)
	require.NotNil(t, doc.Frontmatter)
	require.Equal(t, "abc", doc.Frontmatter.CastID)
	require.Equal(t, []byte("body\n"), doc.Body)
}

func TestFormatRoundTripsKeyOrder(t *testing.T) {
	t.Parallel()

	input := "---\n" +
		"title: My Note\n" +
		"cast-vaults:\n" +
		"  - work (cast)\n" +
		"cast-id: abc123\n" +
		"author: alice\n" +
		"cast-type: note\n" +
		"---\n" +
		"body\n"

	doc, err := Parse([]byte(input))
	require.NoError(t, err)

	out, err := Format(doc)
	require.NoError(t, err)

	doc2, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, doc.Frontmatter.CastID, doc2.Frontmatter.CastID)
	require.Equal(t, doc.Frontmatter.CastType, doc2.Frontmatter.CastType)
	require.Equal(t, doc.Frontmatter.CastVaults, doc2.Frontmatter.CastVaults)

	// cast-id must be the first key, then cast-type (cast-vaults and then
	// the local keys title, author follow; only the first two are checked).
	lines := splitLines(string(out))
	require.Equal(t, "cast-id: abc123", lines[1])
	require.Equal(t, "cast-type: note", lines[2])
}

func TestFormatNoFrontmatterReturnsBodyVerbatim(t *testing.T) {
	t.Parallel()

	doc := &Document{Body: []byte("just a body\n")}

	out, err := Format(doc)
	require.NoError(t, err)
	require.Equal(t, []byte("just a body\n"), out)
}

func splitLines(s string) []string {
	var lines []string

	start := 0

	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}

	return lines
}
