package mp4

import (
	"github.com/icza/bitio"
)

// Big-endian write helpers. All errors accumulate in w.TryError.

// WriteUint16 writes 16 bits.
func WriteUint16(w *bitio.Writer, v uint16) {
	w.TryWriteBits(uint64(v), 16)
}

// WriteUint32 writes 32 bits.
func WriteUint32(w *bitio.Writer, v uint32) {
	w.TryWriteBits(uint64(v), 32)
}

// WriteUint64 writes 64 bits.
func WriteUint64(w *bitio.Writer, v uint64) {
	w.TryWriteBits(v, 64)
}

// WriteString writes string and null character.
func WriteString(w *bitio.Writer, str string) {
	w.TryWrite([]byte(str))
	w.TryWriteByte(0x00)
}
