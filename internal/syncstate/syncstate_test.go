package syncstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cast-sync/cast/internal/docid"
	"github.com/cast-sync/cast/internal/vfs"
)

func TestGetPutRoundTrip(t *testing.T) {
	t.Parallel()

	s := New()
	id := docid.Generate()

	_, ok := s.Get("peer-a", id)
	require.False(t, ok)

	s.Put("peer-a", id, "sha256:abc")

	got, ok := s.Get("peer-a", id)
	require.True(t, ok)
	require.Equal(t, "sha256:abc", got)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	id := docid.Generate()

	s := New()
	s.Put("peer-a", id, "sha256:abc")
	require.NoError(t, s.SaveAtomic(vfs.NewReal(), root))

	loaded, err := Load(vfs.NewReal(), root)
	require.NoError(t, err)

	got, ok := loaded.Get("peer-a", id)
	require.True(t, ok)
	require.Equal(t, "sha256:abc", got)
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s, err := Load(vfs.NewReal(), root)
	require.NoError(t, err)

	_, ok := s.Get("anything", docid.Generate())
	require.False(t, ok)
}
