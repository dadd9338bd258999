package content

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cast-sync/cast/internal/fm"
)

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	tests := [][]byte{
		[]byte("hello\r\nworld\r\n"),
		[]byte("hello \nworld\t\n\n\n"),
		[]byte(""),
		[]byte("no trailing newline"),
		[]byte("\r\r\n\r"),
	}

	for _, in := range tests {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		require.Equal(t, once, twice)
	}
}

func TestCanonicalizeNormalizesLineEndings(t *testing.T) {
	t.Parallel()

	require.Equal(t, []byte("a\nb\n"), Canonicalize([]byte("a\r\nb\r\n")))
	require.Equal(t, []byte("a\nb\n"), Canonicalize([]byte("a\rb\r")))
}

func TestCanonicalizeTrimsTrailingWhitespacePerLine(t *testing.T) {
	t.Parallel()

	require.Equal(t, []byte("a\nb\n"), Canonicalize([]byte("a \t\nb  \n")))
}

func TestCanonicalizeExactlyOneTerminalNewline(t *testing.T) {
	t.Parallel()

	require.Equal(t, []byte("a\n"), Canonicalize([]byte("a")))
	require.Equal(t, []byte("a\n"), Canonicalize([]byte("a\n\n\n")))
}

func TestCanonicalizeEmptyBodyStaysEmpty(t *testing.T) {
	t.Parallel()

	require.Nil(t, Canonicalize(nil))
	require.Nil(t, Canonicalize([]byte("   \n\t\n")))
}

func TestDigestInsensitiveToFrontmatter(t *testing.T) {
	t.Parallel()

	docA, err := fm.Parse([]byte("---\ncast-id: a\ntags: [one]\n---\nsame body\n"))
	require.NoError(t, err)

	docB, err := fm.Parse([]byte("---\ncast-id: b\ntitle: other\n---\nsame body\n"))
	require.NoError(t, err)

	require.Equal(t, Digest(docA.Body), Digest(docB.Body))
}

func TestDigestFormat(t *testing.T) {
	t.Parallel()

	d := Digest([]byte("hello\n"))
	require.True(t, len(d) > len("sha256:"))
	require.Equal(t, "sha256:", d[:7])
}

func TestEqualAfterCanonicalization(t *testing.T) {
	t.Parallel()

	require.True(t, Equal([]byte("a\r\nb \n"), []byte("a\nb\n")))
	require.False(t, Equal([]byte("a\n"), []byte("b\n")))
}
