package imagestore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/fieldscan/fieldscan/internal/errors"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	for y := range 6 {
		for x := range 8 {
			img.Set(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 40), B: 120, A: 255})
		}
	}
	return img
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "photos"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 7, []byte("first")))
	require.NoError(t, store.Save(ctx, 7, []byte("second")))

	data, err := store.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	info, err := os.Stat(store.Path(7))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	assert.Equal(t, "7.jpg", filepath.Base(store.Path(7)))

	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may remain")
}

func TestFileStoreLoadMissing(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestFileStoreDeleteAllKeepsForeignFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	for id := uint(1); id <= 3; id++ {
		require.NoError(t, store.Save(ctx, id, []byte{byte(id)}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.txt"), []byte("keep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "cover.jpg"), []byte("keep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".upload-123.tmp"), []byte("stale"), 0o644))

	require.NoError(t, store.DeleteAll(ctx))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"README.txt", "cover.jpg"}, names)

	_, err = store.Load(ctx, 1)
	assert.True(t, errors.IsNotFound(err))
}

func TestNewFileStoreRejectsEmptyRoot(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestNormalizeFormats(t *testing.T) {
	t.Parallel()

	encoders := map[string]func(*bytes.Buffer, image.Image) error{
		"png":  func(b *bytes.Buffer, img image.Image) error { return png.Encode(b, img) },
		"jpeg": func(b *bytes.Buffer, img image.Image) error { return jpeg.Encode(b, img, nil) },
		"bmp":  func(b *bytes.Buffer, img image.Image) error { return bmp.Encode(b, img) },
		"tiff": func(b *bytes.Buffer, img image.Image) error { return tiff.Encode(b, img, nil) },
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var src bytes.Buffer
			require.NoError(t, encode(&src, testImage()))

			out, err := Normalize(&src)
			require.NoError(t, err)

			img, format, err := image.Decode(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, "jpeg", format)
			assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
		})
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Normalize(bytes.NewReader([]byte("definitely not an image")))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageDecode))

	_, err = Normalize(bytes.NewReader(nil))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
