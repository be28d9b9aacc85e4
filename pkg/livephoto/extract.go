package livephoto

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"regexp"
	"strconv"

	"livephoto/pkg/repack"
	"livephoto/pkg/stillimage"

	gomp4 "github.com/abema/go-mp4"
)

var (
	assetIDPattern    = regexp.MustCompile(`assetIdentifier="([^"]*)"`)
	frameIndexPattern = regexp.MustCompile(`mainFrameIndex="([0-9]+)"`)
)

// Bound for the metadata and still image header reads.
const extractReadLimit = 64 * 1024

// ExtractMetadata reads back what the encoder wrote: track geometry
// and duration from the trailing video region, photo bounds from the
// still image header, and the asset identifier from the embedded
// block. Extraction is best-effort, missing embedded metadata yields
// an empty identifier and a zero main frame index. Nil is returned
// only when the video region cannot be opened at all.
func ExtractMetadata(path string) *Metadata {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil
	}
	fileSize := stat.Size()

	videoStart, ok := findVideoRegion(file, fileSize)
	if !ok {
		return nil
	}

	meta := &Metadata{}
	videoRegion := io.NewSectionReader(file, videoStart, fileSize-videoStart)
	if !readVideoInfo(videoRegion, meta) {
		return nil
	}

	header := make([]byte, 4)
	if _, err := file.ReadAt(header, 0); err != nil {
		return meta
	}
	ftypSize := int64(binary.BigEndian.Uint32(header))

	if _, err := file.ReadAt(header, ftypSize); err != nil {
		return meta
	}
	metaEnd := ftypSize + int64(binary.BigEndian.Uint32(header))

	readPhotoBounds(file, metaEnd, videoStart, meta)
	readEmbeddedBlock(file, ftypSize, metaEnd, meta)
	return meta
}

// findVideoRegion scans for the signature of a repackaged video
// container. The region starts four bytes before it, at the ftyp size
// field.
func findVideoRegion(r io.ReaderAt, size int64) (int64, bool) {
	sig := repack.FtypSignature
	overlap := int64(len(sig) - 1)

	const window = 64 * 1024
	buf := make([]byte, window+overlap)

	for pos := int64(0); pos < size; pos += window {
		n, err := r.ReadAt(buf, pos)
		if n > 0 {
			if idx := bytes.Index(buf[:n], sig); idx >= 0 {
				start := pos + int64(idx) - 4
				if start >= 0 {
					return start, true
				}
			}
		}
		if err != nil {
			break
		}
	}
	return 0, false
}

func readVideoInfo(videoRegion *io.SectionReader, meta *Metadata) bool {
	info, err := gomp4.Probe(videoRegion)
	if err != nil {
		return false
	}
	if info.Timescale > 0 {
		meta.VideoDurationMs = int64(info.Duration) * 1000 / int64(info.Timescale)
	}

	trakInfos, err := gomp4.ExtractBoxes(videoRegion, nil,
		[]gomp4.BoxPath{{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak()}})
	if err != nil {
		return true
	}

	// Geometry of the first video track.
	for _, trakInfo := range trakInfos {
		hdlrs, err := gomp4.ExtractBoxWithPayload(videoRegion, trakInfo,
			gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeHdlr()})
		if err != nil || len(hdlrs) == 0 {
			continue
		}
		if hdlrs[0].Payload.(*gomp4.Hdlr).HandlerType != [4]byte{'v', 'i', 'd', 'e'} {
			continue
		}

		tkhds, err := gomp4.ExtractBoxWithPayload(videoRegion, trakInfo,
			gomp4.BoxPath{gomp4.BoxTypeTkhd()})
		if err != nil || len(tkhds) == 0 {
			continue
		}
		tkhd := tkhds[0].Payload.(*gomp4.Tkhd)

		// Fixed-point 16.16.
		meta.VideoWidth = int(tkhd.Width >> 16)
		meta.VideoHeight = int(tkhd.Height >> 16)
		break
	}
	return true
}

// readPhotoBounds decodes only the still image header, never the full
// pixel data.
func readPhotoBounds(file *os.File, stillStart, stillEnd int64, meta *Metadata) {
	stillSize := stillEnd - stillStart
	if stillSize <= 0 {
		return
	}
	if stillSize > extractReadLimit {
		stillSize = extractReadLimit
	}

	header := make([]byte, stillSize)
	if _, err := file.ReadAt(header, stillStart); err != nil {
		return
	}

	width, height, err := stillimage.DecodeBounds(header)
	if err != nil {
		return
	}
	meta.PhotoWidth = width
	meta.PhotoHeight = height
}

func readEmbeddedBlock(file *os.File, metaStart, metaEnd int64, meta *Metadata) {
	size := metaEnd - metaStart
	if size <= 0 || size > extractReadLimit {
		return
	}

	region := make([]byte, size)
	if _, err := file.ReadAt(region, metaStart); err != nil {
		return
	}

	if m := assetIDPattern.FindSubmatch(region); m != nil {
		meta.AssetID = string(m[1])
	}
	if m := frameIndexPattern.FindSubmatch(region); m != nil {
		if index, err := strconv.Atoi(string(m[1])); err == nil {
			meta.MainFrameIndex = index
		}
	}
}
