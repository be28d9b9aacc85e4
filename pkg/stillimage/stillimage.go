// Package stillimage loads photos into bitmaps and encodes the still
// image payload of a live photo container.
package stillimage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"sync"

	// Decoders for the photo formats accepted as input.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Errors.
var (
	ErrReleased = errors.New("bitmap has been released")
	ErrEmpty    = errors.New("bitmap has no pixels")
)

// Bitmap is a decoded photo. Release frees the pixel data for the
// owner; any use after that fails with ErrReleased.
type Bitmap struct {
	mu       sync.Mutex
	img      image.Image
	released bool
}

// NewBitmap wraps a decoded image.
func NewBitmap(img image.Image) *Bitmap {
	return &Bitmap{img: img}
}

// FromFile decodes the photo at path into a bitmap.
func FromFile(path string) (*Bitmap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open photo: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	return NewBitmap(img), nil
}

// Release frees the bitmap. Releasing twice is a no-op.
func (b *Bitmap) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.img = nil
	b.released = true
}

// Released reports whether the bitmap has been released.
func (b *Bitmap) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Width returns the pixel width, or zero after release.
func (b *Bitmap) Width() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.img == nil {
		return 0
	}
	return b.img.Bounds().Dx()
}

// Height returns the pixel height, or zero after release.
func (b *Bitmap) Height() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.img == nil {
		return 0
	}
	return b.img.Bounds().Dy()
}

func (b *Bitmap) image() (image.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrReleased
	}
	if b.img == nil || b.img.Bounds().Empty() {
		return nil, ErrEmpty
	}
	return b.img, nil
}

// Encode compresses the bitmap into the still image payload. Quality
// is clamped to [1,100].
func Encode(b *Bitmap, quality int) ([]byte, error) {
	img, err := b.image()
	if err != nil {
		return nil, err
	}

	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode still: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBounds reads only the dimensions of an encoded photo.
func DecodeBounds(data []byte) (width int, height int, err error) {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode bounds: %w", err)
	}
	return config.Width, config.Height, nil
}
