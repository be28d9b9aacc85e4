package stillimage

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0x80, 0xff})
		}
	}
	return img
}

func TestEncode(t *testing.T) {
	bitmap := NewBitmap(testImage(64, 48))
	require.Equal(t, 64, bitmap.Width())
	require.Equal(t, 48, bitmap.Height())

	payload, err := Encode(bitmap, 90)
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	width, height, err := DecodeBounds(payload)
	require.NoError(t, err)
	require.Equal(t, 64, width)
	require.Equal(t, 48, height)
}

func TestEncodeQualityClamp(t *testing.T) {
	bitmap := NewBitmap(testImage(8, 8))

	for _, quality := range []int{-1, 0, 1, 100, 101} {
		_, err := Encode(bitmap, quality)
		require.NoError(t, err, "quality %v", quality)
	}
}

func TestEncodeReleased(t *testing.T) {
	bitmap := NewBitmap(testImage(8, 8))
	require.False(t, bitmap.Released())

	bitmap.Release()
	require.True(t, bitmap.Released())
	require.Equal(t, 0, bitmap.Width())
	require.Equal(t, 0, bitmap.Height())

	_, err := Encode(bitmap, 90)
	require.ErrorIs(t, err, ErrReleased)

	// Releasing twice is a no-op.
	bitmap.Release()
	require.True(t, bitmap.Released())
}

func TestEncodeEmpty(t *testing.T) {
	bitmap := NewBitmap(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	_, err := Encode(bitmap, 90)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, testImage(32, 16)))
	require.NoError(t, file.Close())

	bitmap, err := FromFile(path)
	require.NoError(t, err)
	require.Equal(t, 32, bitmap.Width())
	require.Equal(t, 16, bitmap.Height())
}

func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
}

func TestFromFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0o600))

	_, err := FromFile(path)
	require.Error(t, err)
}
