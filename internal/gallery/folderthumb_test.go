package gallery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderThumbnailRecursesIntoFirstSubfolder(t *testing.T) {
	root := t.TempDir()
	writeJPEG(t, root, "A/B/x.jpg", 60, 40)
	svc := newTestService(t, root)
	ctx := context.Background()

	want, err := svc.GetThumbnail(ctx, "/A/B/x.jpg", 150, Anonymous())
	require.NoError(t, err)

	got, err := svc.GetFolderThumbnail(ctx, "/A", 150, Anonymous())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.FileExists(t, filepath.Join(root, "A", "thumb-150"))
	assert.NoFileExists(t, filepath.Join(root, "A", "B", "thumb-150"), "direct image result is not persisted")

	// 删除子树后仍能从持久化的代表图返回。
	require.NoError(t, os.RemoveAll(filepath.Join(root, "A", "B")))
	again, err := svc.GetFolderThumbnail(ctx, "/A", 150, Anonymous())
	require.NoError(t, err)
	assert.Equal(t, want, again)
}

func TestFolderThumbnailPrefersLiteralThumbFile(t *testing.T) {
	root := t.TempDir()
	writeJPEG(t, root, "Album/thumb", 30, 30)
	writeJPEG(t, root, "Album/z.jpg", 90, 10)
	svc := newTestService(t, root)

	data, err := svc.GetFolderThumbnail(context.Background(), "/Album", 20, Anonymous())
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.FileExists(t, filepath.Join(root, "Album", ".thumbs", "thumb-20.webp"))
	assert.NoFileExists(t, filepath.Join(root, "Album", ".thumbs", "z.jpg-20.webp"))
}

func TestFolderThumbnailUsesFirstSortedImage(t *testing.T) {
	root := t.TempDir()
	writeJPEG(t, root, "Trip/b.jpg", 20, 20)
	writeJPEG(t, root, "Trip/a.jpg", 20, 20)
	svc := newTestService(t, root)

	_, err := svc.GetFolderThumbnail(context.Background(), "/Trip", 16, Anonymous())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "Trip", ".thumbs", "a.jpg-16.webp"))
	assert.NoFileExists(t, filepath.Join(root, "Trip", ".thumbs", "b.jpg-16.webp"))
	assert.NoFileExists(t, filepath.Join(root, "Trip", "thumb-16"))
}

func TestFolderThumbnailExhaustedSubtree(t *testing.T) {
	root := t.TempDir()
	mkdir(t, root, "Empty/One")
	mkdir(t, root, "Empty/Two/Deeper")
	svc := newTestService(t, root)

	_, err := svc.GetFolderThumbnail(context.Background(), "/Empty", 150, Anonymous())
	require.ErrorIs(t, err, ErrThumb)
	assert.NoFileExists(t, filepath.Join(root, "Empty", "thumb-150"))
}

func TestFolderThumbnailSkipsHiddenSubfolders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Mixed/Aprivate/.hide", "alice")
	writeJPEG(t, root, "Mixed/Aprivate/secret.jpg", 20, 20)
	writeJPEG(t, root, "Mixed/Bpublic/open.jpg", 20, 20)
	svc := newTestService(t, root)

	_, err := svc.GetFolderThumbnail(context.Background(), "/Mixed", 16, Anonymous())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "Mixed", "Bpublic", ".thumbs", "open.jpg-16.webp"))
	assert.NoFileExists(t, filepath.Join(root, "Mixed", "Aprivate", ".thumbs", "secret.jpg-16.webp"))
}

func TestFolderThumbnailDetectsSymlinkCycle(t *testing.T) {
	root := t.TempDir()
	mkdir(t, root, "Loop")
	if err := os.Symlink(filepath.Join(root, "Loop"), filepath.Join(root, "Loop", "again")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	svc := newTestService(t, root)

	_, err := svc.GetFolderThumbnail(context.Background(), "/Loop", 150, Anonymous())
	require.ErrorIs(t, err, ErrThumb)
}

func TestFolderThumbnailHiddenFolderNotAllowed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Secret/.hide", "alice")
	writeJPEG(t, root, "Secret/x.jpg", 20, 20)
	svc := newTestService(t, root)

	_, err := svc.GetFolderThumbnail(context.Background(), "/Secret", 16, Anonymous())
	require.ErrorIs(t, err, ErrNotAllowed)

	_, err = svc.GetFolderThumbnail(context.Background(), "/Secret", 16, Named("alice"))
	require.NoError(t, err)
}
