package gallery

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/photo365/photo365/internal/cache"
	"github.com/photo365/photo365/internal/imaging"
	"github.com/photo365/photo365/internal/thumbnail"
)

func writeJPEG(t *testing.T, root, rel string, w, h int) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(3 * x), G: uint8(5 * y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeFile(t *testing.T, root, rel, contents string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func mkdir(t *testing.T, root, rel string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0o755))
}

func newThumbStore(t *testing.T, root string) *thumbnail.Store {
	t.Helper()
	derivs, err := cache.NewStore(root)
	require.NoError(t, err)
	return thumbnail.New(root, derivs, thumbnail.Options{Pool: imaging.NewPool(2)})
}

func newTestService(t *testing.T, root string, warmup ...int) *Service {
	t.Helper()
	svc, err := NewService(Options{
		Root:             root,
		Thumbs:           newThumbStore(t, root),
		MaxThumbnailSize: 4096,
		WarmupSizes:      warmup,
	})
	require.NoError(t, err)
	return svc
}
