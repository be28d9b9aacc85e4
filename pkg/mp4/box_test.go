package mp4

import (
	"bytes"
	"testing"

	"github.com/icza/bitio"
	"github.com/stretchr/testify/require"
)

func TestBoxesMarshal(t *testing.T) {
	boxes := Boxes{
		Box: &Meta{},
		Children: []Boxes{
			{Box: &Pitm{ItemID: 1}},
		},
	}
	require.Equal(t, 26, boxes.Size())

	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	err := boxes.Marshal(w)
	require.NoError(t, err)

	expected := []byte{
		0x00, 0x00, 0x00, 0x1a, // size
		'm', 'e', 't', 'a', // type
		0x00, 0x00, 0x00, 0x00, // version, flags
		0x00, 0x00, 0x00, 0x0e, // size
		'p', 'i', 't', 'm', // type
		0x00, 0x00, 0x00, 0x00, // version, flags
		0x00, 0x01, // item ID
	}
	require.Equal(t, expected, buf.Bytes())
}

func TestBoxesNestedContainers(t *testing.T) {
	boxes := Boxes{
		Box: &Moov{},
		Children: []Boxes{
			{Box: &Trak{}},
			{
				Box: &Trak{},
				Children: []Boxes{
					{Box: &Mdia{}},
				},
			},
		},
	}
	require.Equal(t, 8+8+16, boxes.Size())

	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	err := boxes.Marshal(w)
	require.NoError(t, err)

	expected := []byte{
		0x00, 0x00, 0x00, 0x20, 'm', 'o', 'o', 'v',
		0x00, 0x00, 0x00, 0x08, 't', 'r', 'a', 'k',
		0x00, 0x00, 0x00, 0x10, 't', 'r', 'a', 'k',
		0x00, 0x00, 0x00, 0x08, 'm', 'd', 'i', 'a',
	}
	require.Equal(t, expected, buf.Bytes())
}

func TestWriteSingleBox(t *testing.T) {
	ftyp := &Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', '4'},
		MinorVersion: 512,
		CompatibleBrands: []CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', '4'}},
		},
	}

	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)
	size, err := WriteSingleBox(w, ftyp)
	require.NoError(t, err)
	require.Equal(t, 20, size)
	require.Equal(t, size, buf.Len())

	expected := []byte{
		0x00, 0x00, 0x00, 0x14, // size
		'f', 't', 'y', 'p', // type
		'i', 's', 'o', '4', // major brand
		0x00, 0x00, 0x02, 0x00, // minor version
		'i', 's', 'o', '4', // compatible brand
	}
	require.Equal(t, expected, buf.Bytes())
}
