// Package repack copies every track of a video container into a new
// container while preserving per-sample timing and sync flags.
//
// The sample tables of the source are read with abema/go-mp4 and the
// new container is written with pkg/mp4. Decode timing (stts),
// composition offsets (ctts) and sync samples (stss) are carried
// verbatim; only the chunk layout (stsc/stco) is rewritten for the
// new file, which cannot change what any sample contains or when it
// is presented.
package repack

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"livephoto/pkg/heif"
	"livephoto/pkg/mp4"

	gomp4 "github.com/abema/go-mp4"
	"github.com/icza/bitio"
)

// Errors.
var (
	ErrNoTracks      = errors.New("source container has no tracks")
	ErrNoVideoTrack  = errors.New("source container has no video track")
	ErrCorruptTables = errors.New("sample tables are inconsistent")
)

// FtypSignature marks the start of a repackaged video container.
// The metadata extractor scans for it to locate the trailing video
// region inside a live photo file.
var FtypSignature = []byte("ftypiso4")

type sampleRange struct {
	offset int64
	size   int64
}

// track holds everything needed to rewrite one source track.
type track struct {
	tkhd *gomp4.Tkhd
	mdhd *gomp4.Mdhd
	hdlr *gomp4.Hdlr

	stsdRaw []byte
	stts    *gomp4.Stts
	ctts    *gomp4.Ctts // optional
	stss    *gomp4.Stss // optional

	sampleSizes []uint32
	samples     []sampleRange
	dataSize    int64
}

func (t *track) isVideo() bool {
	return t.hdlr.HandlerType == [4]byte{'v', 'i', 'd', 'e'}
}

// Repackage copies every track of the container at srcPath into a new
// container at dstPath. Track order, per-track sample count, sample
// timing and sync flags are preserved exactly. The asset identifier
// and main frame index are carried in the new container's udta box.
func Repackage(srcPath, dstPath, assetID string, mainFrameIndex int) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	tracks, mvhd, err := readSource(src)
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	buf := bufio.NewWriter(dst)
	if err := writeContainer(buf, src, tracks, mvhd, assetID, mainFrameIndex); err != nil {
		dst.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		dst.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("finalize destination: %w", err)
	}
	return nil
}

/************************* demultiplexing **************************/

func readSource(src *os.File) ([]*track, *gomp4.Mvhd, error) {
	mvhds, err := gomp4.ExtractBoxWithPayload(src, nil,
		gomp4.BoxPath{gomp4.BoxTypeMoov(), gomp4.BoxTypeMvhd()})
	if err != nil || len(mvhds) == 0 {
		return nil, nil, fmt.Errorf("read movie header: %w", errOr(err, ErrNoTracks))
	}
	mvhd := mvhds[0].Payload.(*gomp4.Mvhd)

	trakInfos, err := gomp4.ExtractBoxes(src, nil,
		[]gomp4.BoxPath{{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak()}})
	if err != nil {
		return nil, nil, fmt.Errorf("read tracks: %w", err)
	}
	if len(trakInfos) == 0 {
		return nil, nil, ErrNoTracks
	}

	var tracks []*track
	hasVideo := false
	for i, trakInfo := range trakInfos {
		t, err := readTrack(src, trakInfo)
		if err != nil {
			return nil, nil, fmt.Errorf("track %v: %w", i+1, err)
		}
		if t.isVideo() {
			hasVideo = true
		}
		tracks = append(tracks, t)
	}
	if !hasVideo {
		return nil, nil, ErrNoVideoTrack
	}
	return tracks, mvhd, nil
}

func errOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

func readTrack(src *os.File, trakInfo *gomp4.BoxInfo) (*track, error) { //nolint:funlen
	t := &track{}

	mdiaStbl := gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl()}

	extract := func(path gomp4.BoxPath) (gomp4.IBox, error) {
		boxes, err := gomp4.ExtractBoxWithPayload(src, trakInfo, path)
		if err != nil {
			return nil, err
		}
		if len(boxes) == 0 {
			return nil, nil
		}
		return boxes[0].Payload, nil
	}
	require := func(path gomp4.BoxPath, name string) (gomp4.IBox, error) {
		box, err := extract(path)
		if err != nil {
			return nil, fmt.Errorf("read %v: %w", name, err)
		}
		if box == nil {
			return nil, fmt.Errorf("%w: missing %v", ErrCorruptTables, name)
		}
		return box, nil
	}

	box, err := require(gomp4.BoxPath{gomp4.BoxTypeTkhd()}, "tkhd")
	if err != nil {
		return nil, err
	}
	t.tkhd = box.(*gomp4.Tkhd)

	box, err = require(gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMdhd()}, "mdhd")
	if err != nil {
		return nil, err
	}
	t.mdhd = box.(*gomp4.Mdhd)

	box, err = require(gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeHdlr()}, "hdlr")
	if err != nil {
		return nil, err
	}
	t.hdlr = box.(*gomp4.Hdlr)

	box, err = require(append(mdiaStbl, gomp4.BoxTypeStts()), "stts")
	if err != nil {
		return nil, err
	}
	t.stts = box.(*gomp4.Stts)

	if box, err = extract(append(mdiaStbl, gomp4.BoxTypeCtts())); err != nil {
		return nil, fmt.Errorf("read ctts: %w", err)
	} else if box != nil {
		t.ctts = box.(*gomp4.Ctts)
	}
	if box, err = extract(append(mdiaStbl, gomp4.BoxTypeStss())); err != nil {
		return nil, fmt.Errorf("read stss: %w", err)
	} else if box != nil {
		t.stss = box.(*gomp4.Stss)
	}

	t.stsdRaw, err = extractRaw(src, trakInfo, append(mdiaStbl, gomp4.BoxTypeStsd()))
	if err != nil {
		return nil, fmt.Errorf("read stsd: %w", err)
	}

	if err := resolveSamples(src, trakInfo, t, mdiaStbl); err != nil {
		return nil, err
	}
	return t, nil
}

// extractRaw returns a box's payload bytes without interpreting them.
func extractRaw(src *os.File, parent *gomp4.BoxInfo, path gomp4.BoxPath) ([]byte, error) {
	infos, err := gomp4.ExtractBox(src, parent, path)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: box not found", ErrCorruptTables)
	}
	info := infos[0]

	payload := make([]byte, info.Size-info.HeaderSize)
	if _, err := src.ReadAt(payload, int64(info.Offset+info.HeaderSize)); err != nil {
		return nil, err
	}
	return payload, nil
}

// resolveSamples maps every sample to its byte range in the source
// file by walking the stsc/stco/stsz tables in chunk order.
func resolveSamples(src *os.File, trakInfo *gomp4.BoxInfo, t *track, stbl gomp4.BoxPath) error {
	stszBoxes, err := gomp4.ExtractBoxWithPayload(src, trakInfo, append(stbl, gomp4.BoxTypeStsz()))
	if err != nil || len(stszBoxes) == 0 {
		return fmt.Errorf("read stsz: %w", errOr(err, ErrCorruptTables))
	}
	stsz := stszBoxes[0].Payload.(*gomp4.Stsz)

	stscBoxes, err := gomp4.ExtractBoxWithPayload(src, trakInfo, append(stbl, gomp4.BoxTypeStsc()))
	if err != nil || len(stscBoxes) == 0 {
		return fmt.Errorf("read stsc: %w", errOr(err, ErrCorruptTables))
	}
	stsc := stscBoxes[0].Payload.(*gomp4.Stsc)

	chunkOffsets, err := readChunkOffsets(src, trakInfo, stbl)
	if err != nil {
		return err
	}

	sizes := make([]uint32, stsz.SampleCount)
	for i := range sizes {
		if stsz.SampleSize != 0 {
			sizes[i] = stsz.SampleSize
		} else {
			if i >= len(stsz.EntrySize) {
				return fmt.Errorf("%w: stsz too short", ErrCorruptTables)
			}
			sizes[i] = stsz.EntrySize[i]
		}
	}
	t.sampleSizes = sizes

	samples := make([]sampleRange, 0, len(sizes))
	next := 0
	for chunk := 1; chunk <= len(chunkOffsets); chunk++ {
		offset := int64(chunkOffsets[chunk-1])
		spc := samplesPerChunk(stsc, chunk)
		for i := 0; i < spc && next < len(sizes); i++ {
			size := int64(sizes[next])
			samples = append(samples, sampleRange{offset: offset, size: size})
			t.dataSize += size
			offset += size
			next++
		}
	}
	if next != len(sizes) {
		return fmt.Errorf("%w: %v of %v samples located", ErrCorruptTables, next, len(sizes))
	}
	t.samples = samples
	return nil
}

func readChunkOffsets(src *os.File, trakInfo *gomp4.BoxInfo, stbl gomp4.BoxPath) ([]uint64, error) {
	stcoBoxes, err := gomp4.ExtractBoxWithPayload(src, trakInfo, append(stbl, gomp4.BoxTypeStco()))
	if err != nil {
		return nil, fmt.Errorf("read stco: %w", err)
	}
	if len(stcoBoxes) != 0 {
		stco := stcoBoxes[0].Payload.(*gomp4.Stco)
		offsets := make([]uint64, len(stco.ChunkOffset))
		for i, o := range stco.ChunkOffset {
			offsets[i] = uint64(o)
		}
		return offsets, nil
	}

	co64Boxes, err := gomp4.ExtractBoxWithPayload(src, trakInfo, append(stbl, gomp4.BoxTypeCo64()))
	if err != nil || len(co64Boxes) == 0 {
		return nil, fmt.Errorf("read chunk offsets: %w", errOr(err, ErrCorruptTables))
	}
	return co64Boxes[0].Payload.(*gomp4.Co64).ChunkOffset, nil
}

func samplesPerChunk(stsc *gomp4.Stsc, chunk int) int {
	spc := 0
	for _, entry := range stsc.Entries {
		if int(entry.FirstChunk) > chunk {
			break
		}
		spc = int(entry.SamplesPerChunk)
	}
	return spc
}

/************************* multiplexing **************************/

func writeContainer( //nolint:funlen
	out io.Writer,
	src *os.File,
	tracks []*track,
	mvhd *gomp4.Mvhd,
	assetID string,
	mainFrameIndex int,
) error {
	w := bitio.NewWriter(out)

	ftyp := &mp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', '4'},
		MinorVersion: 512,
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', '4'}},
		},
	}
	ftypSize, err := mp4.WriteSingleBox(w, ftyp)
	if err != nil {
		return fmt.Errorf("write ftyp: %w", err)
	}

	/*
	   moov
	   - mvhd
	   - trak (per source track)
	   - udta (when assetID is set)
	   mdat
	*/

	moovChildren := []mp4.Boxes{
		{Box: &mp4.Mvhd{
			Timescale:   mvhd.Timescale,
			DurationV0:  uint32(duration64(mvhd.GetVersion(), mvhd.DurationV0, mvhd.DurationV1)),
			Rate:        65536,
			Volume:      256,
			Matrix:      unityMatrix,
			NextTrackID: uint32(len(tracks) + 1),
		}},
	}

	// Chunk offsets are patched once the moov size is known.
	stcos := make([]*mp4.Stco, len(tracks))
	for i, t := range tracks {
		trak, stco := generateTrak(t, uint32(i+1))
		stcos[i] = stco
		moovChildren = append(moovChildren, trak)
	}

	if assetID != "" {
		moovChildren = append(moovChildren, mp4.Boxes{
			Box: &mp4.Udta{},
			Children: []mp4.Boxes{
				{Box: &mp4.UUID{
					UserType: heif.MetadataUserType,
					Data:     heif.MetadataXML(assetID, mainFrameIndex),
				}},
			},
		})
	}

	moov := mp4.Boxes{Box: &mp4.Moov{}, Children: moovChildren}

	const mdatHeaderSize = 8
	offset := uint32(ftypSize+moov.Size()) + mdatHeaderSize
	for i, t := range tracks {
		stcos[i].ChunkOffset = []uint32{offset}
		offset += uint32(t.dataSize)
	}

	if err := moov.Marshal(w); err != nil {
		return fmt.Errorf("marshal moov: %w", err)
	}

	var dataSize int64
	for _, t := range tracks {
		dataSize += t.dataSize
	}
	mp4.WriteUint32(w, uint32(dataSize)+mdatHeaderSize)
	w.TryWrite([]byte{'m', 'd', 'a', 't'})
	if w.TryError != nil {
		return fmt.Errorf("write mdat header: %w", w.TryError)
	}

	// Samples are laid out as one contiguous run per track,
	// in original order within each track.
	for i, t := range tracks {
		for _, sample := range t.samples {
			sr := io.NewSectionReader(src, sample.offset, sample.size)
			if _, err := io.Copy(w, sr); err != nil {
				return fmt.Errorf("copy track %v samples: %w", i+1, err)
			}
		}
	}
	return nil
}

var unityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func duration64(version uint8, v0 uint32, v1 uint64) uint64 {
	if version == 0 {
		return uint64(v0)
	}
	return v1
}

func generateTrak(t *track, trackID uint32) (mp4.Boxes, *mp4.Stco) {
	/*
	   trak
	   - tkhd
	   - mdia
	     - mdhd
	     - hdlr
	     - minf
	*/

	stbl, stco := generateStbl(t)

	minf := mp4.Boxes{
		Box: &mp4.Minf{},
		Children: []mp4.Boxes{
			generateMediaHeader(t),
			{
				Box: &mp4.Dinf{},
				Children: []mp4.Boxes{
					{
						Box: &mp4.Dref{EntryCount: 1},
						Children: []mp4.Boxes{
							{Box: &mp4.URL{
								FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}},
							}},
						},
					},
				},
			},
			stbl,
		},
	}

	trak := mp4.Boxes{
		Box: &mp4.Trak{},
		Children: []mp4.Boxes{
			{Box: &mp4.Tkhd{
				FullBox:        mp4.FullBox{Flags: [3]byte{0, 0, 3}},
				TrackID:        trackID,
				DurationV0:     uint32(duration64(t.tkhd.GetVersion(), t.tkhd.DurationV0, t.tkhd.DurationV1)),
				Layer:          t.tkhd.Layer,
				AlternateGroup: t.tkhd.AlternateGroup,
				Volume:         t.tkhd.Volume,
				Matrix:         t.tkhd.Matrix,
				Width:          t.tkhd.Width,
				Height:         t.tkhd.Height,
			}},
			{
				Box: &mp4.Mdia{},
				Children: []mp4.Boxes{
					{Box: &mp4.Mdhd{
						Timescale:  t.mdhd.Timescale,
						DurationV0: uint32(duration64(t.mdhd.GetVersion(), t.mdhd.DurationV0, t.mdhd.DurationV1)),
						Pad:        t.mdhd.Pad,
						Language:   t.mdhd.Language,
					}},
					{Box: &mp4.Hdlr{
						HandlerType: t.hdlr.HandlerType,
						Name:        t.hdlr.Name,
					}},
					minf,
				},
			},
		},
	}
	return trak, stco
}

func generateMediaHeader(t *track) mp4.Boxes {
	switch t.hdlr.HandlerType {
	case [4]byte{'v', 'i', 'd', 'e'}:
		return mp4.Boxes{Box: &mp4.Vmhd{FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}}}}
	case [4]byte{'s', 'o', 'u', 'n'}:
		return mp4.Boxes{Box: &mp4.Smhd{}}
	default:
		return mp4.Boxes{Box: &mp4.Nmhd{}}
	}
}

func generateStbl(t *track) (mp4.Boxes, *mp4.Stco) {
	/*
	   stbl
	   - stsd (copied verbatim)
	   - stts (copied verbatim)
	   - stss (copied verbatim, when present)
	   - ctts (copied verbatim, when present)
	   - stsc (rewritten: one chunk per track)
	   - stsz (copied sizes)
	   - stco (patched after moov size is known)
	*/

	stco := &mp4.Stco{}

	children := []mp4.Boxes{
		{Box: &mp4.Raw{BoxType: [4]byte{'s', 't', 's', 'd'}, Data: t.stsdRaw}},
		{Box: &mp4.Stts{Entries: copySttsEntries(t.stts)}},
	}
	if t.stss != nil {
		children = append(children, mp4.Boxes{Box: &mp4.Stss{
			SampleNumber: append([]uint32{}, t.stss.SampleNumber...),
		}})
	}
	if t.ctts != nil {
		children = append(children, mp4.Boxes{Box: &mp4.Ctts{
			FullBox: mp4.FullBox{Version: t.ctts.GetVersion()},
			Entries: copyCttsEntries(t.ctts),
		}})
	}
	children = append(children,
		mp4.Boxes{Box: &mp4.Stsc{
			Entries: []mp4.StscEntry{{
				FirstChunk:             1,
				SamplesPerChunk:        uint32(len(t.samples)),
				SampleDescriptionIndex: 1,
			}},
		}},
		mp4.Boxes{Box: &mp4.Stsz{
			SampleCount: uint32(len(t.sampleSizes)),
			EntrySize:   append([]uint32{}, t.sampleSizes...),
		}},
		mp4.Boxes{Box: stco},
	)

	return mp4.Boxes{Box: &mp4.Stbl{}, Children: children}, stco
}

func copySttsEntries(stts *gomp4.Stts) []mp4.SttsEntry {
	entries := make([]mp4.SttsEntry, len(stts.Entries))
	for i, e := range stts.Entries {
		entries[i] = mp4.SttsEntry{
			SampleCount: e.SampleCount,
			SampleDelta: e.SampleDelta,
		}
	}
	return entries
}

func copyCttsEntries(ctts *gomp4.Ctts) []mp4.CttsEntry {
	entries := make([]mp4.CttsEntry, len(ctts.Entries))
	for i, e := range ctts.Entries {
		entries[i] = mp4.CttsEntry{
			SampleCount:    e.SampleCount,
			SampleOffsetV0: e.SampleOffsetV0,
			SampleOffsetV1: e.SampleOffsetV1,
		}
	}
	return entries
}
