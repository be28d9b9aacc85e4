package repack

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"livephoto/pkg/mp4"

	gomp4 "github.com/abema/go-mp4"
	"github.com/icza/bitio"
	"github.com/stretchr/testify/require"
)

var (
	videoSamples = [][]byte{
		{0x11, 0x11, 0x11, 0x11},
		{0x22, 0x22, 0x22, 0x22, 0x22},
		{0x33, 0x33, 0x33},
	}
	audioSamples = [][]byte{
		{0x44, 0x44},
		{0x55, 0x55, 0x55},
	}

	testStsdPayload = []byte{
		0x00, 0x00, 0x00, 0x00, // version, flags
		0x00, 0x00, 0x00, 0x01, // entry count
		0x00, 0x00, 0x00, 0x10, 'm', 'p', '4', 'v', // sample entry
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)

func concat(samples [][]byte) []byte {
	var out []byte
	for _, sample := range samples {
		out = append(out, sample...)
	}
	return out
}

// writeSourceVideo writes a container with one video track split over
// two chunks and one audio track in a single chunk.
func writeSourceVideo(t *testing.T, path string) {
	t.Helper()

	videoStco := &mp4.Stco{}
	audioStco := &mp4.Stco{}

	videoTrak := mp4.Boxes{
		Box: &mp4.Trak{},
		Children: []mp4.Boxes{
			{Box: &mp4.Tkhd{
				FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 3}},
				TrackID: 1, DurationV0: 1536,
				Width: 1920 << 16, Height: 1080 << 16,
				Matrix: [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
			}},
			{
				Box: &mp4.Mdia{},
				Children: []mp4.Boxes{
					{Box: &mp4.Mdhd{
						Timescale: 90000, DurationV0: 1536,
						Language: [3]byte{'u' - 0x60, 'n' - 0x60, 'd' - 0x60},
					}},
					{Box: &mp4.Hdlr{
						HandlerType: [4]byte{'v', 'i', 'd', 'e'},
						Name:        "VideoHandler",
					}},
					{
						Box: &mp4.Minf{},
						Children: []mp4.Boxes{
							{Box: &mp4.Vmhd{FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}}}},
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
							{
								Box: &mp4.Stbl{},
								Children: []mp4.Boxes{
									{Box: &mp4.Raw{BoxType: [4]byte{'s', 't', 's', 'd'}, Data: testStsdPayload}},
									{Box: &mp4.Stts{Entries: []mp4.SttsEntry{
										{SampleCount: 3, SampleDelta: 512},
									}}},
									{Box: &mp4.Ctts{Entries: []mp4.CttsEntry{
										{SampleCount: 3, SampleOffsetV0: 100},
									}}},
									{Box: &mp4.Stss{SampleNumber: []uint32{1, 3}}},
									{Box: &mp4.Stsc{Entries: []mp4.StscEntry{
										{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1},
										{FirstChunk: 2, SamplesPerChunk: 1, SampleDescriptionIndex: 1},
									}}},
									{Box: &mp4.Stsz{SampleCount: 3, EntrySize: []uint32{4, 5, 3}}},
									{Box: videoStco},
								},
							},
						},
					},
				},
			},
		},
	}

	audioTrak := mp4.Boxes{
		Box: &mp4.Trak{},
		Children: []mp4.Boxes{
			{Box: &mp4.Tkhd{
				FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 3}},
				TrackID: 2, DurationV0: 2048, Volume: 256,
				Matrix: [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
			}},
			{
				Box: &mp4.Mdia{},
				Children: []mp4.Boxes{
					{Box: &mp4.Mdhd{
						Timescale: 48000, DurationV0: 2048,
						Language: [3]byte{'u' - 0x60, 'n' - 0x60, 'd' - 0x60},
					}},
					{Box: &mp4.Hdlr{
						HandlerType: [4]byte{'s', 'o', 'u', 'n'},
						Name:        "SoundHandler",
					}},
					{
						Box: &mp4.Minf{},
						Children: []mp4.Boxes{
							{Box: &mp4.Smhd{}},
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
							{
								Box: &mp4.Stbl{},
								Children: []mp4.Boxes{
									{Box: &mp4.Raw{BoxType: [4]byte{'s', 't', 's', 'd'}, Data: testStsdPayload}},
									{Box: &mp4.Stts{Entries: []mp4.SttsEntry{
										{SampleCount: 2, SampleDelta: 1024},
									}}},
									{Box: &mp4.Stsc{Entries: []mp4.StscEntry{
										{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1},
									}}},
									{Box: &mp4.Stsz{SampleCount: 2, EntrySize: []uint32{2, 3}}},
									{Box: audioStco},
								},
							},
						},
					},
				},
			},
		},
	}

	moov := mp4.Boxes{
		Box: &mp4.Moov{},
		Children: []mp4.Boxes{
			{Box: &mp4.Mvhd{
				Timescale: 90000, DurationV0: 1536,
				Rate: 65536, Volume: 256, NextTrackID: 3,
				Matrix: [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
			}},
			videoTrak,
			audioTrak,
		},
	}

	ftyp := &mp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', '4'},
		MinorVersion: 512,
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', '4'}},
		},
	}

	videoData := concat(videoSamples)
	audioData := concat(audioSamples)

	mdatStart := uint32(8 + ftyp.Size() + moov.Size() + 8)
	videoStco.ChunkOffset = []uint32{mdatStart, mdatStart + 9}
	audioStco.ChunkOffset = []uint32{mdatStart + uint32(len(videoData))}

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	buf := bufio.NewWriter(file)
	w := bitio.NewWriter(buf)

	_, err = mp4.WriteSingleBox(w, ftyp)
	require.NoError(t, err)
	require.NoError(t, moov.Marshal(w))

	mp4.WriteUint32(w, uint32(8+len(videoData)+len(audioData)))
	w.TryWrite([]byte{'m', 'd', 'a', 't'})
	w.TryWrite(videoData)
	w.TryWrite(audioData)
	require.NoError(t, w.TryError)
	require.NoError(t, buf.Flush())
}

func extractPayload(t *testing.T, file *os.File, trak *gomp4.BoxInfo, path gomp4.BoxPath) gomp4.IBox {
	t.Helper()
	boxes, err := gomp4.ExtractBoxWithPayload(file, trak, path)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	return boxes[0].Payload
}

func TestRepackage(t *testing.T) {
	tempDir := t.TempDir()
	srcPath := filepath.Join(tempDir, "source.mp4")
	dstPath := filepath.Join(tempDir, "repacked.mp4")
	writeSourceVideo(t, srcPath)

	err := Repackage(srcPath, dstPath, "asset-1", 2)
	require.NoError(t, err)

	raw, err := os.ReadFile(dstPath)
	require.NoError(t, err)

	// Starts with the signature the extractor scans for.
	require.Equal(t, FtypSignature, raw[4:4+len(FtypSignature)])

	// Identifier block is carried in the container.
	require.True(t, bytes.Contains(raw, []byte(`assetIdentifier="asset-1"`)))
	require.True(t, bytes.Contains(raw, []byte(`mainFrameIndex="2"`)))

	// Format descriptors are copied verbatim.
	require.True(t, bytes.Contains(raw, testStsdPayload))

	file, err := os.Open(dstPath)
	require.NoError(t, err)
	defer file.Close()

	traks, err := gomp4.ExtractBoxes(file, nil,
		[]gomp4.BoxPath{{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak()}})
	require.NoError(t, err)
	require.Len(t, traks, 2)

	stbl := gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl()}

	// Track order and handlers are preserved, track IDs are sequential.
	videoHdlr := extractPayload(t, file, traks[0],
		gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeHdlr()}).(*gomp4.Hdlr)
	require.Equal(t, [4]byte{'v', 'i', 'd', 'e'}, videoHdlr.HandlerType)
	audioHdlr := extractPayload(t, file, traks[1],
		gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeHdlr()}).(*gomp4.Hdlr)
	require.Equal(t, [4]byte{'s', 'o', 'u', 'n'}, audioHdlr.HandlerType)

	videoTkhd := extractPayload(t, file, traks[0],
		gomp4.BoxPath{gomp4.BoxTypeTkhd()}).(*gomp4.Tkhd)
	require.Equal(t, uint32(1), videoTkhd.TrackID)
	require.Equal(t, uint32(1536), videoTkhd.DurationV0)
	require.Equal(t, uint32(1920<<16), videoTkhd.Width)
	require.Equal(t, uint32(1080<<16), videoTkhd.Height)

	audioTkhd := extractPayload(t, file, traks[1],
		gomp4.BoxPath{gomp4.BoxTypeTkhd()}).(*gomp4.Tkhd)
	require.Equal(t, uint32(2), audioTkhd.TrackID)
	require.Equal(t, uint32(2048), audioTkhd.DurationV0)

	// Sample timing is copied verbatim.
	videoStts := extractPayload(t, file, traks[0],
		append(stbl, gomp4.BoxTypeStts())).(*gomp4.Stts)
	require.Equal(t, []gomp4.SttsEntry{{SampleCount: 3, SampleDelta: 512}}, videoStts.Entries)

	videoCtts := extractPayload(t, file, traks[0],
		append(stbl, gomp4.BoxTypeCtts())).(*gomp4.Ctts)
	require.Len(t, videoCtts.Entries, 1)
	require.Equal(t, uint32(3), videoCtts.Entries[0].SampleCount)
	require.Equal(t, uint32(100), videoCtts.Entries[0].SampleOffsetV0)

	videoStss := extractPayload(t, file, traks[0],
		append(stbl, gomp4.BoxTypeStss())).(*gomp4.Stss)
	require.Equal(t, []uint32{1, 3}, videoStss.SampleNumber)

	audioStts := extractPayload(t, file, traks[1],
		append(stbl, gomp4.BoxTypeStts())).(*gomp4.Stts)
	require.Equal(t, []gomp4.SttsEntry{{SampleCount: 2, SampleDelta: 1024}}, audioStts.Entries)

	// Per-track sample count and sizes are unchanged.
	videoStsz := extractPayload(t, file, traks[0],
		append(stbl, gomp4.BoxTypeStsz())).(*gomp4.Stsz)
	require.Equal(t, uint32(3), videoStsz.SampleCount)
	require.Equal(t, []uint32{4, 5, 3}, videoStsz.EntrySize)

	audioStsz := extractPayload(t, file, traks[1],
		append(stbl, gomp4.BoxTypeStsz())).(*gomp4.Stsz)
	require.Equal(t, uint32(2), audioStsz.SampleCount)
	require.Equal(t, []uint32{2, 3}, audioStsz.EntrySize)

	// Sample bytes are contiguous per track at the new chunk offsets,
	// in original order.
	videoStco := extractPayload(t, file, traks[0],
		append(stbl, gomp4.BoxTypeStco())).(*gomp4.Stco)
	require.Len(t, videoStco.ChunkOffset, 1)
	videoData := concat(videoSamples)
	offset := videoStco.ChunkOffset[0]
	require.Equal(t, videoData, raw[offset:int(offset)+len(videoData)])

	audioStco := extractPayload(t, file, traks[1],
		append(stbl, gomp4.BoxTypeStco())).(*gomp4.Stco)
	require.Len(t, audioStco.ChunkOffset, 1)
	audioData := concat(audioSamples)
	offset = audioStco.ChunkOffset[0]
	require.Equal(t, audioData, raw[offset:int(offset)+len(audioData)])
}

func TestRepackageNoIdentifier(t *testing.T) {
	tempDir := t.TempDir()
	srcPath := filepath.Join(tempDir, "source.mp4")
	dstPath := filepath.Join(tempDir, "repacked.mp4")
	writeSourceVideo(t, srcPath)

	err := Repackage(srcPath, dstPath, "", 0)
	require.NoError(t, err)

	raw, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	require.False(t, bytes.Contains(raw, []byte("assetIdentifier")))
}

func TestRepackageMissingSource(t *testing.T) {
	tempDir := t.TempDir()
	err := Repackage(
		filepath.Join(tempDir, "nope.mp4"),
		filepath.Join(tempDir, "out.mp4"),
		"", 0)
	require.Error(t, err)
}

func TestRepackageNoTracks(t *testing.T) {
	tempDir := t.TempDir()
	srcPath := filepath.Join(tempDir, "empty.mp4")
	dstPath := filepath.Join(tempDir, "out.mp4")

	file, err := os.Create(srcPath)
	require.NoError(t, err)

	w := bitio.NewWriter(file)
	_, err = mp4.WriteSingleBox(w, &mp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', '4'},
		MinorVersion: 512,
	})
	require.NoError(t, err)

	moov := mp4.Boxes{
		Box: &mp4.Moov{},
		Children: []mp4.Boxes{
			{Box: &mp4.Mvhd{Timescale: 90000, Rate: 65536, Volume: 256, NextTrackID: 1}},
		},
	}
	require.NoError(t, moov.Marshal(w))
	require.NoError(t, file.Close())

	err = Repackage(srcPath, dstPath, "", 0)
	require.ErrorIs(t, err, ErrNoTracks)
}
