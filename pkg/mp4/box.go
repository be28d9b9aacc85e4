// Package mp4 implements the subset of ISOBMFF boxes needed to write
// live photo containers and to repackage their video region.
//
// Every box knows its marshaled size before it is marshaled, so box
// headers are always written with final sizes and no seek-back
// patching is ever needed.
package mp4

import (
	"github.com/icza/bitio"
)

// BoxType is the 4-byte box type tag.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// ImmutableBox is the common interface of all boxes.
type ImmutableBox interface {
	// Type returns the BoxType.
	Type() BoxType

	// Size returns the marshaled size in bytes excluding the
	// 8-byte header. The size must be known before marshaling
	// since the box header contains the size.
	Size() int

	// Marshal box to writer.
	Marshal(w *bitio.Writer) error
}

// ImmutableBoxes is a slice of ImmutableBox.
type ImmutableBoxes []ImmutableBox

// Boxes is a tree of boxes that can be marshaled together.
type Boxes struct {
	Box      ImmutableBox
	Children []Boxes
}

// Size returns the total size of the box including header and children.
func (b *Boxes) Size() int {
	total := b.Box.Size() + 8
	for _, child := range b.Children {
		total += child.Size()
	}
	return total
}

// Marshal box including children.
func (b *Boxes) Marshal(w *bitio.Writer) error {
	size := b.Size()

	err := writeBoxInfo(w, uint32(size), b.Box.Type())
	if err != nil {
		return err
	}

	// The size of an empty box is 8 bytes.
	if size != 8 {
		if err := b.Box.Marshal(w); err != nil {
			return err
		}
	}

	for _, child := range b.Children {
		if err := child.Marshal(w); err != nil {
			return err
		}
	}
	return nil
}

func writeBoxInfo(w *bitio.Writer, size uint32, typ BoxType) error {
	w.TryWriteBits(uint64(size), 32)
	w.TryWrite(typ[:])
	return w.TryError
}

// WriteSingleBox writes a single box without children.
func WriteSingleBox(w *bitio.Writer, b ImmutableBox) (int, error) {
	size := 8 + b.Size()

	err := writeBoxInfo(w, uint32(size), b.Type())
	if err != nil {
		return 0, err
	}

	if size != 8 {
		if err := b.Marshal(w); err != nil {
			return 0, err
		}
	}
	return size, nil
}

// Marshal ImmutableBoxes to writer.
func (boxes ImmutableBoxes) Marshal(w *bitio.Writer) error {
	for _, b := range boxes {
		if _, err := WriteSingleBox(w, b); err != nil {
			return err
		}
	}
	return nil
}

// Size combined size of boxes including headers.
func (boxes ImmutableBoxes) Size() int {
	var n int
	for _, b := range boxes {
		n += 8
		n += b.Size()
	}
	return n
}
