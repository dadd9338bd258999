package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cast-sync/cast/internal/docid"
	"github.com/cast-sync/cast/internal/selector"
	"github.com/cast-sync/cast/internal/vfs"
)

func writeDoc(t *testing.T, root, rel, content string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildAssignsIDsAndIndexes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "note.md", "---\ncast-vaults:\n  - work (cast)\n---\nhello\n")
	writeDoc(t, root, "plain.md", "just text, no frontmatter\n")

	sel := selector.New(nil, nil)
	idx, result, err := Build(vfs.NewReal(), root, sel, false, true)
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)
	require.Len(t, idx.Entries, 1)

	id, ok := idx.LookupByPath("note.md")
	require.True(t, ok)

	entry, ok := idx.LookupByID(id)
	require.True(t, ok)
	require.Equal(t, "note.md", entry.Path)
	require.Equal(t, []string{"work (cast)"}, entry.Membership)
}

func TestBuildWithoutAutoFixWarnsAndExcludes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "note.md", "---\ncast-type: note\n---\nhello\n")

	sel := selector.New(nil, nil)
	idx, result, err := Build(vfs.NewReal(), root, sel, false, false)
	require.NoError(t, err)
	require.Empty(t, idx.Entries)
	require.Len(t, result.Warnings, 1)
}

func TestBuildReusesUnchangedEntries(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "note.md", "---\ncast-vaults:\n  - work (cast)\n---\nhello\n")

	sel := selector.New(nil, nil)
	firstIdx, first, err := Build(vfs.NewReal(), root, sel, false, true)
	require.NoError(t, err)
	require.Equal(t, 1, first.Inserted)
	require.NoError(t, firstIdx.SaveAtomic(vfs.NewReal(), root))

	idx, second, err := Build(vfs.NewReal(), root, sel, false, true)
	require.NoError(t, err)
	require.Equal(t, 1, second.Reused)
	require.Equal(t, 0, second.Inserted)
	require.Len(t, idx.Entries, 1)
}

func TestBuildDeletesUnseenEntries(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDoc(t, root, "note.md", "---\ncast-vaults:\n  - work (cast)\n---\nhello\n")

	sel := selector.New(nil, nil)
	idx, _, err := Build(vfs.NewReal(), root, sel, false, true)
	require.NoError(t, err)
	require.NoError(t, idx.SaveAtomic(vfs.NewReal(), root))

	require.NoError(t, os.Remove(filepath.Join(root, "note.md")))

	idx2, result, err := Build(vfs.NewReal(), root, sel, false, true)
	require.NoError(t, err)
	require.Empty(t, idx2.Entries)
	require.Equal(t, 1, result.Deleted)
}

func TestBuildExcludesDuplicateIDButContinuesOtherFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	const shared = "11111111-1111-1111-1111-111111111111"

	writeDoc(t, root, "a.md", "---\ncast-id: "+shared+"\ncast-vaults:\n  - work (cast)\n---\nfirst\n")
	writeDoc(t, root, "b.md", "---\ncast-id: "+shared+"\ncast-vaults:\n  - work (cast)\n---\nsecond\n")
	writeDoc(t, root, "c.md", "---\ncast-vaults:\n  - work (cast)\n---\nthird\n")

	sel := selector.New(nil, nil)
	idx, result, err := Build(vfs.NewReal(), root, sel, false, true)
	require.NoError(t, err)

	require.Len(t, result.Duplicates, 1)
	require.Equal(t, docid.DocID(shared), result.Duplicates[0].ID)
	require.ElementsMatch(t, []string{"a.md", "b.md"}, []string{result.Duplicates[0].PathA, result.Duplicates[0].PathB})

	// Neither colliding path ends up in the index...
	_, aIndexed := idx.LookupByPath("a.md")
	_, bIndexed := idx.LookupByPath("b.md")
	require.False(t, aIndexed)
	require.False(t, bIndexed)

	// ...but the unrelated third file is still indexed normally.
	_, cIndexed := idx.LookupByPath("c.md")
	require.True(t, cIndexed)
}

func TestSaveAtomicLoadRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	idx := New()
	idx.Upsert(docid.Generate(), Entry{Path: "a.md", Digest: "sha256:abc"})

	require.NoError(t, idx.SaveAtomic(vfs.NewReal(), root))

	loaded, err := Load(vfs.NewReal(), root)
	require.NoError(t, err)
	require.Len(t, loaded.Entries, 1)
}

func TestLoadMissingIndexReturnsEmpty(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	idx, err := Load(vfs.NewReal(), root)
	require.NoError(t, err)
	require.Empty(t, idx.Entries)
}
