package heif

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Validation is the outcome of checking a file's structural signature.
// An invalid file carries a reason, never an error.
type Validation struct {
	Valid    bool
	FileSize int64
	Brand    string
	Reason   string
}

func invalid(format string, v ...interface{}) Validation {
	return Validation{Reason: fmt.Sprintf(format, v...)}
}

// Validate checks the minimal structural signature of a live photo
// container: a leading ftyp box with a recognized brand, followed by a
// meta box. All failure paths produce an invalid result.
func Validate(path string) Validation {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return invalid("file does not exist: %v", path)
		}
		return invalid("open file: %v", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return invalid("stat file: %v", err)
	}

	header := make([]byte, 12)
	if _, err := io.ReadFull(file, header); err != nil {
		return invalid("file too short: %v bytes", stat.Size())
	}

	if string(header[4:8]) != "ftyp" {
		return invalid("first box is %q, expected \"ftyp\"", header[4:8])
	}

	var brand [4]byte
	copy(brand[:], header[8:12])
	if !recognizedBrand(brand) {
		return invalid("unrecognized brand %q", brand[:])
	}

	// The declared ftyp size must point at the meta box.
	ftypSize := int64(binary.BigEndian.Uint32(header[:4]))
	next := make([]byte, 8)
	if _, err := file.ReadAt(next, ftypSize); err != nil {
		return invalid("missing box after ftyp: %v", err)
	}
	if string(next[4:8]) != "meta" {
		return invalid("box after ftyp is %q, expected \"meta\"", next[4:8])
	}

	return Validation{
		Valid:    true,
		FileSize: stat.Size(),
		Brand:    string(brand[:]),
	}
}
