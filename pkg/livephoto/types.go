// Package livephoto packages a still photo, a short paired video clip
// and associated metadata into a single live photo container file.
package livephoto

import (
	"errors"
)

// Metadata describes one live photo. The asset identifier links the
// still image to its paired video and is generated during encoding
// when the caller leaves it empty.
type Metadata struct {
	AssetID         string
	CaptureTime     int64 // Epoch milliseconds.
	MainFrameIndex  int
	VideoDurationMs int64
	VideoWidth      int
	VideoHeight     int
	PhotoWidth      int
	PhotoHeight     int
	LutName         string
	Capture         *CaptureParams
}

// CaptureParams are informational camera parameters. They are not
// required for container validity.
type CaptureParams struct {
	ISO            int
	ExposureTimeNs int64
	Aperture       float64
	FocalLength    float64
	WhiteBalance   int
}

// Config controls encoding.
type Config struct {
	// Quality of the still image compression, 1 to 100.
	Quality int

	// HardwareAccel prefers hardware codecs when available.
	HardwareAccel bool

	// EmbedMetadata writes the asset identifier block into the
	// container. When disabled the output is valid but unlinked.
	EmbedMetadata bool

	// PreserveExif carries original photo EXIF into the output.
	PreserveExif bool

	// TargetFileSizeMb is advisory and currently unused.
	TargetFileSizeMb int
}

// DefaultConfig returns the default encoding configuration.
func DefaultConfig() Config {
	return Config{
		Quality:       95,
		HardwareAccel: true,
		EmbedMetadata: true,
		PreserveExif:  true,
	}
}

// Result of a successful encode.
type Result struct {
	OutputPath     string
	OutputSize     int64
	Metadata       Metadata
	EncodingTimeMs int64
}

// Errors.
var (
	ErrInputMissing = errors.New("input file does not exist")
	ErrInputInvalid = errors.New("invalid input")
	ErrDiskSpace    = errors.New("not enough disk space")
)
