package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photo365/photo365/internal/cache"
	"github.com/photo365/photo365/internal/imaging"
	"github.com/photo365/photo365/internal/pathguard"
)

func TestDerivativeLayout(t *testing.T) {
	assert.Equal(t, pathguard.Path("/Pets/.thumbs/cat.jpg-300.webp"), DerivativePath("/Pets/cat.jpg", 300))
	assert.Equal(t, pathguard.Path("/.thumbs/cat.JPEG-150.webp"), DerivativePath("/cat.JPEG", 150))
	assert.Equal(t, pathguard.Path("/A/.thumbs/thumb-150.webp"), DerivativePath(pathguard.Path("/A").Join(FolderThumbName), 150))
	assert.Equal(t, pathguard.Path("/A/B/thumb-600"), FolderThumbPath("/A/B", 600))
	assert.Equal(t, pathguard.Path("/thumb-150"), FolderThumbPath(pathguard.Root, 150))
}

func TestGetOrCreateReusesPersistedDerivative(t *testing.T) {
	root := t.TempDir()
	writeJPEG(t, filepath.Join(root, "Pets", "cat.jpg"), 80, 60)
	metrics := &countingMetrics{}
	store := newTestStore(t, root, metrics)

	first, err := store.GetOrCreate(context.Background(), "/Pets/cat.jpg", 40)
	require.NoError(t, err)
	cfg, err := webp.DecodeConfig(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 30, cfg.Height)

	derivative := filepath.Join(root, "Pets", ".thumbs", "cat.jpg-40.webp")
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(derivative, old, old))

	second, err := store.GetOrCreate(context.Background(), "/Pets/cat.jpg", 40)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(derivative)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "derivative rewritten on reuse")
	assert.EqualValues(t, 1, metrics.generated.Load())
	assert.EqualValues(t, 1, metrics.reused.Load())
}

func TestGetOrCreateMissingSource(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "A"), 0o755))
	store := newTestStore(t, root, nil)

	_, err := store.GetOrCreate(context.Background(), "/A/thumb", 150)
	require.ErrorIs(t, err, ErrSourceMissing)

	_, statErr := os.Stat(filepath.Join(root, "A", DirName))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "derivative dir created for missing source")
}

func TestGetOrCreateUndecodableSource(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.jpg"), []byte("not a jpeg"), 0o644))
	store := newTestStore(t, root, nil)

	_, err := store.GetOrCreate(context.Background(), "/broken.jpg", 150)
	require.ErrorIs(t, err, ErrDecode)
}

func TestGetOrCreateDeduplicatesConcurrentRequests(t *testing.T) {
	root := t.TempDir()
	writeJPEG(t, filepath.Join(root, "x.jpg"), 120, 90)
	metrics := &countingMetrics{}
	store := newTestStore(t, root, metrics)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := store.GetOrCreate(context.Background(), "/x.jpg", 64)
			assert.NoError(t, err)
			results[i] = data
		}()
	}
	wg.Wait()

	for _, data := range results[1:] {
		assert.Equal(t, results[0], data)
	}
	assert.EqualValues(t, 1, metrics.generated.Load())
}

func TestGenerateAllSkipsExistingAndFailures(t *testing.T) {
	root := t.TempDir()
	writeJPEG(t, filepath.Join(root, "Trip", "a.jpg"), 64, 64)
	writeJPEG(t, filepath.Join(root, "Trip", "b.jpeg"), 32, 48)
	require.NoError(t, os.WriteFile(filepath.Join(root, "Trip", "c.jpg"), []byte("junk"), 0o644))
	store := newTestStore(t, root, nil)

	srcs := []pathguard.Path{"/Trip/a.jpg", "/Trip/b.jpeg", "/Trip/c.jpg"}
	sizes := []int{16, 32}

	report := store.GenerateAll(context.Background(), srcs, sizes)
	assert.Equal(t, WarmupReport{Generated: 4, Skipped: 0, Failed: 2}, report)
	for _, name := range []string{"a.jpg-16.webp", "a.jpg-32.webp", "b.jpeg-16.webp", "b.jpeg-32.webp"} {
		assert.FileExists(t, filepath.Join(root, "Trip", DirName, name))
	}

	report = store.GenerateAll(context.Background(), srcs, sizes)
	assert.Equal(t, WarmupReport{Generated: 0, Skipped: 4, Failed: 2}, report)
}

func TestFolderThumbRoundTrip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "A"), 0o755))
	store := newTestStore(t, root, nil)

	_, err := store.ReadFolderThumb(context.Background(), "/A", 150)
	require.ErrorIs(t, err, cache.ErrNotFound)

	payload := sampleWebP(t)
	require.NoError(t, store.PersistFolderThumb(context.Background(), "/A", 150, payload))
	data, err := store.ReadFolderThumb(context.Background(), "/A", 150)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.FileExists(t, filepath.Join(root, "A", "thumb-150"))
}

func TestReadFolderThumbDiscardsCorruptEntry(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "A", "thumb-150")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("truncated"), 0o644))
	store := newTestStore(t, root, nil)

	_, err := store.ReadFolderThumb(context.Background(), "/A", 150)
	require.ErrorIs(t, err, cache.ErrNotFound)
	assert.NoFileExists(t, target)
}

func TestGetOrCreateReplacesCorruptDerivative(t *testing.T) {
	for name, contents := range map[string][]byte{
		"empty":   {},
		"garbage": []byte("RIFF....WEBPjunk"),
	} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			writeJPEG(t, filepath.Join(root, "Pets", "cat.jpg"), 80, 60)
			derivative := filepath.Join(root, "Pets", DirName, "cat.jpg-40.webp")
			require.NoError(t, os.MkdirAll(filepath.Dir(derivative), 0o755))
			require.NoError(t, os.WriteFile(derivative, contents, 0o644))
			metrics := &countingMetrics{}
			store := newTestStore(t, root, metrics)

			data, err := store.GetOrCreate(context.Background(), "/Pets/cat.jpg", 40)
			require.NoError(t, err)
			assert.True(t, imaging.ValidWebP(data))

			onDisk, err := os.ReadFile(derivative)
			require.NoError(t, err)
			assert.Equal(t, data, onDisk)
			assert.EqualValues(t, 1, metrics.generated.Load())
			assert.EqualValues(t, 0, metrics.reused.Load())
		})
	}
}

func TestGetOrCreateRemovesCorruptDerivativeOfMissingSource(t *testing.T) {
	root := t.TempDir()
	derivative := filepath.Join(root, "Gone", DirName, "old.jpg-40.webp")
	require.NoError(t, os.MkdirAll(filepath.Dir(derivative), 0o755))
	require.NoError(t, os.WriteFile(derivative, []byte("junk"), 0o644))
	store := newTestStore(t, root, nil)

	_, err := store.GetOrCreate(context.Background(), "/Gone/old.jpg", 40)
	require.ErrorIs(t, err, ErrSourceMissing)
	assert.NoFileExists(t, derivative)
}

type countingMetrics struct {
	reused    atomic.Int32
	generated atomic.Int32
}

func (m *countingMetrics) ObserveReuse() { m.reused.Add(1) }

func (m *countingMetrics) ObserveGenerate(_ time.Duration, err error) {
	if err == nil {
		m.generated.Add(1)
	}
}

func newTestStore(t *testing.T, root string, metrics Metrics) *Store {
	t.Helper()
	derivs, err := cache.NewStore(root)
	require.NoError(t, err)
	return New(root, derivs, Options{Pool: imaging.NewPool(2), Metrics: metrics})
}

func sampleWebP(t *testing.T) []byte {
	t.Helper()
	data, err := imaging.Thumbnail(image.NewRGBA(image.Rect(0, 0, 8, 8)), 8)
	require.NoError(t, err)
	return data
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}
