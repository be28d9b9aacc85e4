package heif

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"livephoto/pkg/mp4"

	"github.com/icza/bitio"
)

// MaxMetadataPayload is the upper bound for the embedded textual
// metadata block. An oversized block is skipped entirely instead of
// being truncated into a corrupt box.
const MaxMetadataPayload = 4096

// ContainerOptions control the metadata written into the container.
type ContainerOptions struct {
	AssetID        string
	MainFrameIndex int
	EmbedMetadata  bool
}

// MetadataXML renders the textual metadata block that links the still
// image to its paired video.
func MetadataXML(assetID string, mainFrameIndex int) []byte {
	return []byte(fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?>`+"\n"+
			`<LivePhoto assetIdentifier=%q mainFrameIndex="%d"/>`+"\n",
		assetID, mainFrameIndex))
}

// WriteContainer writes a live photo container to out.
//
// Layout: ftyp, meta, still image payload, then every byte of video
// appended verbatim as the trailing region.
func WriteContainer(out io.Writer, still []byte, video io.Reader, opts ContainerOptions) error {
	w := bitio.NewWriter(out)

	ftyp := &mp4.Ftyp{
		MajorBrand:   BrandHeic,
		MinorVersion: 0,
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: BrandMif1},
			{CompatibleBrand: BrandHeic},
			{CompatibleBrand: BrandHeix},
			{CompatibleBrand: BrandMoti},
		},
	}
	if _, err := mp4.WriteSingleBox(w, ftyp); err != nil {
		return fmt.Errorf("write ftyp: %w", err)
	}

	meta := metaBoxes(len(still), opts)
	if err := meta.Marshal(w); err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	w.TryWrite(still)
	if w.TryError != nil {
		return fmt.Errorf("write still payload: %w", w.TryError)
	}

	if _, err := io.Copy(w, video); err != nil {
		return fmt.Errorf("append video region: %w", err)
	}
	return nil
}

// WriteFile writes a live photo container to path, creating parent
// directories as needed. The partial output is removed on error.
func WriteFile(path string, still []byte, videoPath string, opts ContainerOptions) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	video, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer video.Close()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	buf := bufio.NewWriter(file)
	if err := WriteContainer(buf, still, video, opts); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("flush: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

/*
   meta
   - hdlr
   - pitm
   - iloc
   - iinf
     - infe
   - uuid (optional)
*/
func metaBoxes(stillSize int, opts ContainerOptions) mp4.Boxes {
	children := []mp4.Boxes{
		{Box: &mp4.Hdlr{
			HandlerType: [4]byte{'p', 'i', 'c', 't'},
			Name:        "picture",
		}},
		{Box: &mp4.Pitm{ItemID: 1}},
		// Extent offsets are left unresolved. The external consumer
		// locates the still payload relative to the meta box instead,
		// and resolving real addresses here would change the byte
		// layout it expects.
		{Box: &mp4.Iloc{
			OffsetSize: 4,
			LengthSize: 4,
			Items: []mp4.IlocItem{{
				ItemID:  1,
				Extents: []mp4.IlocExtent{{Offset: 0, Length: uint64(stillSize)}},
			}},
		}},
		{
			Box: &mp4.Iinf{EntryCount: 1},
			Children: []mp4.Boxes{
				{Box: &mp4.Infe{
					FullBox:  mp4.FullBox{Version: 2},
					ItemID:   1,
					ItemType: [4]byte{'h', 'v', 'c', '1'},
				}},
			},
		},
	}

	if opts.EmbedMetadata {
		xml := MetadataXML(opts.AssetID, opts.MainFrameIndex)
		if len(xml) <= MaxMetadataPayload {
			children = append(children, mp4.Boxes{
				Box: &mp4.UUID{
					UserType: MetadataUserType,
					Data:     xml,
				},
			})
		}
	}

	return mp4.Boxes{Box: &mp4.Meta{}, Children: children}
}
