// Package heif writes and validates live photo containers.
//
// A live photo file is a HEIF-family container: a ftyp box with a
// motion-capable brand set, a meta box describing the primary still
// image and carrying the embedded textual metadata block, the raw
// still image payload, and the repackaged video container appended
// as a trailing region.
package heif

// Brands used by the container writer and recognized by the validator.
var (
	BrandHeic = [4]byte{'h', 'e', 'i', 'c'}
	BrandMif1 = [4]byte{'m', 'i', 'f', '1'}
	BrandHeix = [4]byte{'h', 'e', 'i', 'x'}

	// BrandMoti marks the file as live-photo-capable.
	BrandMoti = [4]byte{'m', 'o', 't', 'i'}
)

// MetadataUserType is the fixed 16-byte signature of the uuid box
// carrying the textual metadata block. Readers scan for it to locate
// the block and unaware readers use it to skip the box.
var MetadataUserType = [16]byte{
	'L', 'I', 'V', 'E', 'P', 'H', 'O', 'T',
	'O', 'M', 'E', 'T', 'A', 0x00, 0x00, 0x00,
}

func recognizedBrand(brand [4]byte) bool {
	switch brand {
	case BrandHeic, BrandMif1, BrandHeix, BrandMoti:
		return true
	}
	return false
}
