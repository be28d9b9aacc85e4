package heif

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestContainer(t *testing.T, opts ContainerOptions) ([]byte, []byte, []byte) {
	t.Helper()

	still := []byte{0xff, 0xd8, 0x01, 0x02, 0x03, 0xff, 0xd9}
	video := []byte{
		0x00, 0x00, 0x00, 0x10, 'f', 't', 'y', 'p',
		'i', 's', 'o', '4', 0x00, 0x00, 0x02, 0x00,
	}

	buf := &bytes.Buffer{}
	err := WriteContainer(buf, still, bytes.NewReader(video), opts)
	require.NoError(t, err)

	return buf.Bytes(), still, video
}

func TestWriteContainer(t *testing.T) {
	out, still, video := writeTestContainer(t, ContainerOptions{
		AssetID:        "abc",
		MainFrameIndex: 2,
		EmbedMetadata:  true,
	})

	// The leading size field must equal the offset of the next box.
	ftypSize := binary.BigEndian.Uint32(out[:4])
	require.Equal(t, "ftyp", string(out[4:8]))
	require.Equal(t, "heic", string(out[8:12]))
	require.Equal(t, "meta", string(out[ftypSize+4:ftypSize+8]))

	// Still payload directly follows the meta box.
	metaSize := binary.BigEndian.Uint32(out[ftypSize : ftypSize+4])
	stillStart := ftypSize + metaSize
	require.Equal(t, still, out[stillStart:stillStart+uint32(len(still))])

	// Video region is appended verbatim.
	require.Equal(t, video, out[len(out)-len(video):])

	require.True(t, bytes.Contains(out, MetadataUserType[:]))
	require.True(t, bytes.Contains(out, []byte(`assetIdentifier="abc"`)))
	require.True(t, bytes.Contains(out, []byte(`mainFrameIndex="2"`)))
}

func TestWriteContainerNoMetadata(t *testing.T) {
	out, _, _ := writeTestContainer(t, ContainerOptions{
		AssetID:       "abc",
		EmbedMetadata: false,
	})
	require.False(t, bytes.Contains(out, MetadataUserType[:]))
}

func TestWriteContainerOversizedMetadata(t *testing.T) {
	// An oversized metadata block is skipped, not truncated.
	out, _, _ := writeTestContainer(t, ContainerOptions{
		AssetID:       strings.Repeat("a", MaxMetadataPayload),
		EmbedMetadata: true,
	})
	require.False(t, bytes.Contains(out, MetadataUserType[:]))

	ftypSize := binary.BigEndian.Uint32(out[:4])
	require.Equal(t, "meta", string(out[ftypSize+4:ftypSize+8]))
}

func TestMetadataXML(t *testing.T) {
	expected := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n" +
		"<LivePhoto assetIdentifier=\"x\" mainFrameIndex=\"3\"/>\n"
	require.Equal(t, expected, string(MetadataXML("x", 3)))
}

func TestWriteFile(t *testing.T) {
	tempDir := t.TempDir()

	videoPath := filepath.Join(tempDir, "video.mp4")
	video := []byte{
		0x00, 0x00, 0x00, 0x10, 'f', 't', 'y', 'p',
		'i', 's', 'o', '4', 0x00, 0x00, 0x02, 0x00,
	}
	require.NoError(t, os.WriteFile(videoPath, video, 0o600))

	outputPath := filepath.Join(tempDir, "out", "photo.heic")
	still := []byte{0xff, 0xd8, 0xff, 0xd9}

	err := WriteFile(outputPath, still, videoPath, ContainerOptions{
		AssetID:       "abc",
		EmbedMetadata: true,
	})
	require.NoError(t, err)

	out, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "ftyp", string(out[4:8]))
	require.Equal(t, video, out[len(out)-len(video):])
}

func TestWriteFileMissingVideo(t *testing.T) {
	tempDir := t.TempDir()
	outputPath := filepath.Join(tempDir, "photo.heic")

	err := WriteFile(outputPath, []byte{0x01}, filepath.Join(tempDir, "nope.mp4"), ContainerOptions{})
	require.Error(t, err)

	_, err = os.Stat(outputPath)
	require.True(t, os.IsNotExist(err))
}
