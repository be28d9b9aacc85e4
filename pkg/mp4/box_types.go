package mp4

import (
	"github.com/icza/bitio"
)

/************************* FullBox **************************/

// FullBox is ISOBMFF FullBox.
type FullBox struct {
	Version uint8
	Flags   [3]byte
}

// GetFlags returns the flags.
func (b *FullBox) GetFlags() uint32 {
	flag := uint32(b.Flags[0]) << 16
	flag ^= uint32(b.Flags[1]) << 8
	flag ^= uint32(b.Flags[2])
	return flag
}

// CheckFlag checks the flag status.
func (b *FullBox) CheckFlag(flag uint32) bool {
	return b.GetFlags()&flag != 0
}

// FieldSize returns the marshaled size in bytes.
func (b *FullBox) FieldSize() int {
	return 4
}

// MarshalField box to writer.
func (b *FullBox) MarshalField(w *bitio.Writer) error {
	w.TryWriteByte(b.Version)
	w.TryWriteByte(b.Flags[0])
	w.TryWriteByte(b.Flags[1])
	w.TryWriteByte(b.Flags[2])
	return w.TryError
}

/*************************** ftyp ****************************/

// Ftyp is ISOBMFF ftyp box type.
type Ftyp struct {
	MajorBrand       [4]byte
	MinorVersion     uint32
	CompatibleBrands []CompatibleBrandElem
}

// CompatibleBrandElem .
type CompatibleBrandElem struct {
	CompatibleBrand [4]byte
}

// Type returns the BoxType.
func (*Ftyp) Type() BoxType {
	return [4]byte{'f', 't', 'y', 'p'}
}

// Size returns the marshaled size in bytes.
func (b *Ftyp) Size() int {
	return 8 + len(b.CompatibleBrands)*4
}

// Marshal box to writer.
func (b *Ftyp) Marshal(w *bitio.Writer) error {
	w.TryWrite(b.MajorBrand[:])
	WriteUint32(w, b.MinorVersion)
	for _, brand := range b.CompatibleBrands {
		w.TryWrite(brand.CompatibleBrand[:])
	}
	return w.TryError
}

/*************************** free ****************************/

// Free is ISOBMFF free box type.
type Free struct{}

// Type returns the BoxType.
func (*Free) Type() BoxType {
	return [4]byte{'f', 'r', 'e', 'e'}
}

// Size returns the marshaled size in bytes.
func (b *Free) Size() int {
	return 0
}

// Marshal is never called.
func (b *Free) Marshal(w *bitio.Writer) error { return nil }

/*************************** mdat ****************************/

// Mdat is ISOBMFF mdat box type.
type Mdat struct {
	Data []byte
}

// Type returns the BoxType.
func (*Mdat) Type() BoxType {
	return [4]byte{'m', 'd', 'a', 't'}
}

// Size returns the marshaled size in bytes.
func (b *Mdat) Size() int {
	return len(b.Data)
}

// Marshal box to writer.
func (b *Mdat) Marshal(w *bitio.Writer) error {
	w.TryWrite(b.Data)
	return w.TryError
}

/*************************** moov ****************************/

// Moov is ISOBMFF moov box type.
type Moov struct{}

// Type returns the BoxType.
func (*Moov) Type() BoxType {
	return [4]byte{'m', 'o', 'o', 'v'}
}

// Size returns the marshaled size in bytes.
func (b *Moov) Size() int {
	return 0
}

// Marshal is never called.
func (b *Moov) Marshal(w *bitio.Writer) error { return nil }

/*************************** mvhd ****************************/

// Mvhd is ISOBMFF mvhd box type.
type Mvhd struct {
	FullBox
	CreationTimeV0     uint32
	ModificationTimeV0 uint32
	CreationTimeV1     uint64
	ModificationTimeV1 uint64
	Timescale          uint32
	DurationV0         uint32
	DurationV1         uint64
	Rate               int32 // fixed-point 16.16 - template=0x00010000
	Volume             int16 // template=0x0100
	Reserved           int16
	Reserved2          [2]uint32
	Matrix             [9]int32 // template={ 0x00010000,0,0,0,0x00010000,0,0,0,0x40000000 }
	PreDefined         [6]int32
	NextTrackID        uint32
}

// Type returns the BoxType.
func (*Mvhd) Type() BoxType {
	return [4]byte{'m', 'v', 'h', 'd'}
}

// Size returns the marshaled size in bytes.
func (b *Mvhd) Size() int {
	if b.FullBox.Version == 0 {
		return 100
	}
	return 112
}

// Marshal box to writer.
func (b *Mvhd) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	if b.FullBox.Version == 0 {
		WriteUint32(w, b.CreationTimeV0)
		WriteUint32(w, b.ModificationTimeV0)
	} else {
		WriteUint64(w, b.CreationTimeV1)
		WriteUint64(w, b.ModificationTimeV1)
	}
	WriteUint32(w, b.Timescale)
	if b.FullBox.Version == 0 {
		WriteUint32(w, b.DurationV0)
	} else {
		WriteUint64(w, b.DurationV1)
	}
	WriteUint32(w, uint32(b.Rate))
	WriteUint16(w, uint16(b.Volume))
	WriteUint16(w, uint16(b.Reserved))
	for _, reserved := range b.Reserved2 {
		WriteUint32(w, reserved)
	}
	for _, matrix := range b.Matrix {
		WriteUint32(w, uint32(matrix))
	}
	for _, preDefined := range b.PreDefined {
		WriteUint32(w, uint32(preDefined))
	}
	WriteUint32(w, b.NextTrackID)
	return w.TryError
}

/*************************** trak ****************************/

// Trak is ISOBMFF trak box type.
type Trak struct{}

// Type returns the BoxType.
func (*Trak) Type() BoxType {
	return [4]byte{'t', 'r', 'a', 'k'}
}

// Size returns the marshaled size in bytes.
func (b *Trak) Size() int {
	return 0
}

// Marshal is never called.
func (b *Trak) Marshal(w *bitio.Writer) error { return nil }

/*************************** tkhd ****************************/

// Tkhd is ISOBMFF tkhd box type.
type Tkhd struct {
	FullBox
	CreationTimeV0     uint32
	ModificationTimeV0 uint32
	CreationTimeV1     uint64
	ModificationTimeV1 uint64
	TrackID            uint32
	Reserved0          uint32
	DurationV0         uint32
	DurationV1         uint64

	Reserved1      [2]uint32
	Layer          int16 // template=0
	AlternateGroup int16 // template=0
	Volume         int16 // template={if track_is_audio 0x0100 else 0}
	Reserved2      uint16
	Matrix         [9]int32 // template={ 0x00010000,0,0,0,0x00010000,0,0,0,0x40000000 }
	Width          uint32   // fixed-point 16.16
	Height         uint32   // fixed-point 16.16
}

// Type returns the BoxType.
func (*Tkhd) Type() BoxType {
	return [4]byte{'t', 'k', 'h', 'd'}
}

// Size returns the marshaled size in bytes.
func (b *Tkhd) Size() int {
	if b.FullBox.Version == 0 {
		return 84
	}
	return 96
}

// Marshal box to writer.
func (b *Tkhd) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	if b.FullBox.Version == 0 {
		WriteUint32(w, b.CreationTimeV0)
		WriteUint32(w, b.ModificationTimeV0)
	} else {
		WriteUint64(w, b.CreationTimeV1)
		WriteUint64(w, b.ModificationTimeV1)
	}
	WriteUint32(w, b.TrackID)
	WriteUint32(w, b.Reserved0)
	if b.FullBox.Version == 0 {
		WriteUint32(w, b.DurationV0)
	} else {
		WriteUint64(w, b.DurationV1)
	}
	for _, reserved := range b.Reserved1 {
		WriteUint32(w, reserved)
	}
	WriteUint16(w, uint16(b.Layer))
	WriteUint16(w, uint16(b.AlternateGroup))
	WriteUint16(w, uint16(b.Volume))
	WriteUint16(w, b.Reserved2)
	for _, matrix := range b.Matrix {
		WriteUint32(w, uint32(matrix))
	}
	WriteUint32(w, b.Width)
	WriteUint32(w, b.Height)
	return w.TryError
}

/*************************** mdia ****************************/

// Mdia is ISOBMFF mdia box type.
type Mdia struct{}

// Type returns the BoxType.
func (*Mdia) Type() BoxType {
	return [4]byte{'m', 'd', 'i', 'a'}
}

// Size returns the marshaled size in bytes.
func (b *Mdia) Size() int {
	return 0
}

// Marshal is never called.
func (b *Mdia) Marshal(w *bitio.Writer) error { return nil }

/*************************** mdhd ****************************/

// Mdhd is ISOBMFF mdhd box type.
type Mdhd struct {
	FullBox
	CreationTimeV0     uint32
	ModificationTimeV0 uint32
	CreationTimeV1     uint64
	ModificationTimeV1 uint64
	Timescale          uint32
	DurationV0         uint32
	DurationV1         uint64
	//
	Pad        bool    // 1 bit.
	Language   [3]byte // 5 bits. ISO-639-2/T language code
	PreDefined uint16
}

// Type returns the BoxType.
func (*Mdhd) Type() BoxType {
	return [4]byte{'m', 'd', 'h', 'd'}
}

// Size returns the marshaled size in bytes.
func (b *Mdhd) Size() int {
	if b.FullBox.Version == 0 {
		return 24
	}
	return 36
}

// Marshal box to writer.
func (b *Mdhd) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	if b.FullBox.Version == 0 {
		WriteUint32(w, b.CreationTimeV0)
		WriteUint32(w, b.ModificationTimeV0)
	} else {
		WriteUint64(w, b.CreationTimeV1)
		WriteUint64(w, b.ModificationTimeV1)
	}
	WriteUint32(w, b.Timescale)
	if b.FullBox.Version == 0 {
		WriteUint32(w, b.DurationV0)
	} else {
		WriteUint64(w, b.DurationV1)
	}
	if b.Pad {
		w.TryWriteByte(byte(0x1)<<7 | b.Language[0]&0x1f<<2 | b.Language[1]&0x1f>>3)
	} else {
		w.TryWriteByte(b.Language[0]&0x1f<<2 | b.Language[1]&0x1f>>3)
	}
	w.TryWriteByte(b.Language[1]<<5 | b.Language[2]&0x1f)
	WriteUint16(w, b.PreDefined)
	return w.TryError
}

/*************************** hdlr ****************************/

// Hdlr is ISOBMFF hdlr box type.
type Hdlr struct {
	FullBox
	// PreDefined corresponds to component_type of QuickTime.
	PreDefined  uint32
	HandlerType [4]byte
	Reserved    [3]uint32
	Name        string
}

// Type returns the BoxType.
func (*Hdlr) Type() BoxType {
	return [4]byte{'h', 'd', 'l', 'r'}
}

// Size returns the marshaled size in bytes.
func (b *Hdlr) Size() int {
	return 25 + len(b.Name)
}

// Marshal box to writer.
func (b *Hdlr) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint32(w, b.PreDefined)
	w.TryWrite(b.HandlerType[:])
	for _, reserved := range b.Reserved {
		WriteUint32(w, reserved)
	}
	WriteString(w, b.Name)
	return w.TryError
}

/*************************** minf ****************************/

// Minf is ISOBMFF minf box type.
type Minf struct{}

// Type returns the BoxType.
func (*Minf) Type() BoxType {
	return [4]byte{'m', 'i', 'n', 'f'}
}

// Size returns the marshaled size in bytes.
func (b *Minf) Size() int {
	return 0
}

// Marshal is never called.
func (b *Minf) Marshal(w *bitio.Writer) error { return nil }

/*************************** vmhd ****************************/

// Vmhd is ISOBMFF vmhd box type.
type Vmhd struct {
	FullBox
	Graphicsmode uint16    // template=0
	Opcolor      [3]uint16 // template={0, 0, 0}
}

// Type returns the BoxType.
func (*Vmhd) Type() BoxType {
	return [4]byte{'v', 'm', 'h', 'd'}
}

// Size returns the marshaled size in bytes.
func (b *Vmhd) Size() int {
	return 12
}

// Marshal box to writer.
func (b *Vmhd) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint16(w, b.Graphicsmode)
	for _, color := range b.Opcolor {
		WriteUint16(w, color)
	}
	return w.TryError
}

/*************************** smhd ****************************/

// Smhd is ISOBMFF smhd box type.
type Smhd struct {
	FullBox
	Balance  int16 // fixed-point 8.8 template=0
	Reserved uint16
}

// Type returns the BoxType.
func (*Smhd) Type() BoxType {
	return [4]byte{'s', 'm', 'h', 'd'}
}

// Size returns the marshaled size in bytes.
func (b *Smhd) Size() int {
	return 8
}

// Marshal box to writer.
func (b *Smhd) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint16(w, uint16(b.Balance))
	WriteUint16(w, b.Reserved)
	return w.TryError
}

/*************************** nmhd ****************************/

// Nmhd is ISOBMFF null media header box type.
type Nmhd struct {
	FullBox
}

// Type returns the BoxType.
func (*Nmhd) Type() BoxType {
	return [4]byte{'n', 'm', 'h', 'd'}
}

// Size returns the marshaled size in bytes.
func (b *Nmhd) Size() int {
	return 4
}

// Marshal box to writer.
func (b *Nmhd) Marshal(w *bitio.Writer) error {
	return b.FullBox.MarshalField(w)
}

/*************************** dinf ****************************/

// Dinf is ISOBMFF dinf box type.
type Dinf struct{}

// Type returns the BoxType.
func (*Dinf) Type() BoxType {
	return [4]byte{'d', 'i', 'n', 'f'}
}

// Size returns the marshaled size in bytes.
func (*Dinf) Size() int {
	return 0
}

// Marshal is never called.
func (b *Dinf) Marshal(w *bitio.Writer) error { return nil }

/*************************** dref ****************************/

// Dref is ISOBMFF dref box type.
type Dref struct {
	FullBox
	EntryCount uint32
}

// Type returns the BoxType.
func (*Dref) Type() BoxType {
	return [4]byte{'d', 'r', 'e', 'f'}
}

// Size returns the marshaled size in bytes.
func (b *Dref) Size() int {
	return 8
}

// Marshal box to writer.
func (b *Dref) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint32(w, b.EntryCount)
	return w.TryError
}

/*************************** url ****************************/

// URLNopt flag means the data is in the same file as the box.
const URLNopt = 0x000001

// URL is ISOBMFF url box type.
type URL struct {
	FullBox
	Location string
}

// Type returns the BoxType.
func (*URL) Type() BoxType {
	return [4]byte{'u', 'r', 'l', ' '}
}

// Size returns the marshaled size in bytes.
func (b *URL) Size() int {
	if !b.FullBox.CheckFlag(URLNopt) {
		return len(b.Location) + 5
	}
	return 4
}

// Marshal box to writer.
func (b *URL) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	if !b.FullBox.CheckFlag(URLNopt) {
		WriteString(w, b.Location)
	}
	return w.TryError
}

/*************************** stbl ****************************/

// Stbl is ISOBMFF stbl box type.
type Stbl struct{}

// Type returns the BoxType.
func (*Stbl) Type() BoxType {
	return [4]byte{'s', 't', 'b', 'l'}
}

// Size returns the marshaled size in bytes.
func (b *Stbl) Size() int {
	return 0
}

// Marshal is never called.
func (b *Stbl) Marshal(w *bitio.Writer) error { return nil }

/*************************** stts ****************************/

// Stts is ISOBMFF stts box type.
type Stts struct {
	FullBox
	Entries []SttsEntry
}

// SttsEntry .
type SttsEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

// Type returns the BoxType.
func (*Stts) Type() BoxType {
	return [4]byte{'s', 't', 't', 's'}
}

// Size returns the marshaled size in bytes.
func (b *Stts) Size() int {
	return 8 + len(b.Entries)*8
}

// Marshal box to writer.
func (b *Stts) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint32(w, uint32(len(b.Entries)))
	for _, entry := range b.Entries {
		WriteUint32(w, entry.SampleCount)
		WriteUint32(w, entry.SampleDelta)
	}
	return w.TryError
}

/*************************** ctts ****************************/

// Ctts is ISOBMFF ctts box type.
type Ctts struct {
	FullBox
	Entries []CttsEntry
}

// CttsEntry .
type CttsEntry struct {
	SampleCount    uint32
	SampleOffsetV0 uint32
	SampleOffsetV1 int32
}

// Type returns the BoxType.
func (*Ctts) Type() BoxType {
	return [4]byte{'c', 't', 't', 's'}
}

// Size returns the marshaled size in bytes.
func (b *Ctts) Size() int {
	return 8 + len(b.Entries)*8
}

// Marshal box to writer.
func (b *Ctts) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint32(w, uint32(len(b.Entries)))
	for _, entry := range b.Entries {
		WriteUint32(w, entry.SampleCount)
		if b.FullBox.Version == 0 {
			WriteUint32(w, entry.SampleOffsetV0)
		} else {
			WriteUint32(w, uint32(entry.SampleOffsetV1))
		}
	}
	return w.TryError
}

/*************************** stss ****************************/

// Stss is ISOBMFF stss box type.
type Stss struct {
	FullBox
	SampleNumber []uint32
}

// Type returns the BoxType.
func (*Stss) Type() BoxType {
	return [4]byte{'s', 't', 's', 's'}
}

// Size returns the marshaled size in bytes.
func (b *Stss) Size() int {
	return 8 + len(b.SampleNumber)*4
}

// Marshal box to writer.
func (b *Stss) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint32(w, uint32(len(b.SampleNumber)))
	for _, number := range b.SampleNumber {
		WriteUint32(w, number)
	}
	return w.TryError
}

/*************************** stsc ****************************/

// StscEntry .
type StscEntry struct {
	FirstChunk             uint32
	SamplesPerChunk        uint32
	SampleDescriptionIndex uint32
}

// Stsc is ISOBMFF stsc box type.
type Stsc struct {
	FullBox
	Entries []StscEntry
}

// Type returns the BoxType.
func (*Stsc) Type() BoxType {
	return [4]byte{'s', 't', 's', 'c'}
}

// Size returns the marshaled size in bytes.
func (b *Stsc) Size() int {
	return 8 + len(b.Entries)*12
}

// Marshal box to writer.
func (b *Stsc) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint32(w, uint32(len(b.Entries)))
	for _, entry := range b.Entries {
		WriteUint32(w, entry.FirstChunk)
		WriteUint32(w, entry.SamplesPerChunk)
		WriteUint32(w, entry.SampleDescriptionIndex)
	}
	return w.TryError
}

/*************************** stsz ****************************/

// Stsz is ISOBMFF stsz box type.
type Stsz struct {
	FullBox
	SampleSize  uint32
	SampleCount uint32
	EntrySize   []uint32
}

// Type returns the BoxType.
func (*Stsz) Type() BoxType {
	return [4]byte{'s', 't', 's', 'z'}
}

// Size returns the marshaled size in bytes.
func (b *Stsz) Size() int {
	return 12 + len(b.EntrySize)*4
}

// Marshal box to writer.
func (b *Stsz) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint32(w, b.SampleSize)
	WriteUint32(w, b.SampleCount)
	for _, entry := range b.EntrySize {
		WriteUint32(w, entry)
	}
	return w.TryError
}

/*************************** stco ****************************/

// Stco is ISOBMFF stco box type.
type Stco struct {
	FullBox
	ChunkOffset []uint32
}

// Type returns the BoxType.
func (*Stco) Type() BoxType {
	return [4]byte{'s', 't', 'c', 'o'}
}

// Size returns the marshaled size in bytes.
func (b *Stco) Size() int {
	return 8 + len(b.ChunkOffset)*4
}

// Marshal box to writer.
func (b *Stco) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint32(w, uint32(len(b.ChunkOffset)))
	for _, offset := range b.ChunkOffset {
		WriteUint32(w, offset)
	}
	return w.TryError
}

/*************************** co64 ****************************/

// Co64 is ISOBMFF co64 box type.
type Co64 struct {
	FullBox
	ChunkOffset []uint64
}

// Type returns the BoxType.
func (*Co64) Type() BoxType {
	return [4]byte{'c', 'o', '6', '4'}
}

// Size returns the marshaled size in bytes.
func (b *Co64) Size() int {
	return 8 + len(b.ChunkOffset)*8
}

// Marshal box to writer.
func (b *Co64) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint32(w, uint32(len(b.ChunkOffset)))
	for _, offset := range b.ChunkOffset {
		WriteUint64(w, offset)
	}
	return w.TryError
}

/*************************** udta ****************************/

// Udta is ISOBMFF udta box type.
type Udta struct{}

// Type returns the BoxType.
func (*Udta) Type() BoxType {
	return [4]byte{'u', 'd', 't', 'a'}
}

// Size returns the marshaled size in bytes.
func (b *Udta) Size() int {
	return 0
}

// Marshal is never called.
func (b *Udta) Marshal(w *bitio.Writer) error { return nil }

/*************************** meta ****************************/

// Meta is ISOBMFF meta box type.
// Unlike plain container boxes it carries a version and flags field
// before its children.
type Meta struct {
	FullBox
}

// Type returns the BoxType.
func (*Meta) Type() BoxType {
	return [4]byte{'m', 'e', 't', 'a'}
}

// Size returns the marshaled size in bytes.
func (b *Meta) Size() int {
	return 4
}

// Marshal box to writer.
func (b *Meta) Marshal(w *bitio.Writer) error {
	return b.FullBox.MarshalField(w)
}

/*************************** pitm ****************************/

// Pitm is HEIF primary item box type.
type Pitm struct {
	FullBox
	ItemID uint16
}

// Type returns the BoxType.
func (*Pitm) Type() BoxType {
	return [4]byte{'p', 'i', 't', 'm'}
}

// Size returns the marshaled size in bytes.
func (b *Pitm) Size() int {
	return 6
}

// Marshal box to writer.
func (b *Pitm) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint16(w, b.ItemID)
	return w.TryError
}

/*************************** iloc ****************************/

// IlocExtent is a single extent of an item.
type IlocExtent struct {
	Offset uint64
	Length uint64
}

// IlocItem locates one item's data within the file.
type IlocItem struct {
	ItemID             uint16
	DataReferenceIndex uint16
	BaseOffset         uint64
	Extents            []IlocExtent
}

// Iloc is HEIF item location box type.
// Field widths are given in bytes and apply to every item.
type Iloc struct {
	FullBox
	OffsetSize     uint8 // 4 bits.
	LengthSize     uint8 // 4 bits.
	BaseOffsetSize uint8 // 4 bits.
	Items          []IlocItem
}

// Type returns the BoxType.
func (*Iloc) Type() BoxType {
	return [4]byte{'i', 'l', 'o', 'c'}
}

// Size returns the marshaled size in bytes.
func (b *Iloc) Size() int {
	total := 8
	for _, item := range b.Items {
		total += 6 + int(b.BaseOffsetSize)
		total += len(item.Extents) * int(b.OffsetSize+b.LengthSize)
	}
	return total
}

func writeSized(w *bitio.Writer, v uint64, size uint8) {
	if size != 0 {
		w.TryWriteBits(v, size*8)
	}
}

// Marshal box to writer.
func (b *Iloc) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	w.TryWriteByte(b.OffsetSize<<4 | b.LengthSize&0xf)
	w.TryWriteByte(b.BaseOffsetSize << 4)
	WriteUint16(w, uint16(len(b.Items)))
	for _, item := range b.Items {
		WriteUint16(w, item.ItemID)
		WriteUint16(w, item.DataReferenceIndex)
		writeSized(w, item.BaseOffset, b.BaseOffsetSize)
		WriteUint16(w, uint16(len(item.Extents)))
		for _, extent := range item.Extents {
			writeSized(w, extent.Offset, b.OffsetSize)
			writeSized(w, extent.Length, b.LengthSize)
		}
	}
	return w.TryError
}

/*************************** iinf ****************************/

// Iinf is HEIF item information box type.
type Iinf struct {
	FullBox
	EntryCount uint16
}

// Type returns the BoxType.
func (*Iinf) Type() BoxType {
	return [4]byte{'i', 'i', 'n', 'f'}
}

// Size returns the marshaled size in bytes.
func (b *Iinf) Size() int {
	return 6
}

// Marshal box to writer.
func (b *Iinf) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint16(w, b.EntryCount)
	return w.TryError
}

/*************************** infe ****************************/

// Infe is HEIF item information entry box type (version 2).
type Infe struct {
	FullBox
	ItemID              uint16
	ItemProtectionIndex uint16
	ItemType            [4]byte
	ItemName            string
}

// Type returns the BoxType.
func (*Infe) Type() BoxType {
	return [4]byte{'i', 'n', 'f', 'e'}
}

// Size returns the marshaled size in bytes.
func (b *Infe) Size() int {
	return 13 + len(b.ItemName)
}

// Marshal box to writer.
func (b *Infe) Marshal(w *bitio.Writer) error {
	err := b.FullBox.MarshalField(w)
	if err != nil {
		return err
	}
	WriteUint16(w, b.ItemID)
	WriteUint16(w, b.ItemProtectionIndex)
	w.TryWrite(b.ItemType[:])
	WriteString(w, b.ItemName)
	return w.TryError
}

/*************************** uuid ****************************/

// UUID is ISOBMFF user-extension box type. The 16-byte user type
// lets unaware readers locate and skip the payload.
type UUID struct {
	UserType [16]byte
	Data     []byte
}

// Type returns the BoxType.
func (*UUID) Type() BoxType {
	return [4]byte{'u', 'u', 'i', 'd'}
}

// Size returns the marshaled size in bytes.
func (b *UUID) Size() int {
	return 16 + len(b.Data)
}

// Marshal box to writer.
func (b *UUID) Marshal(w *bitio.Writer) error {
	w.TryWrite(b.UserType[:])
	w.TryWrite(b.Data)
	return w.TryError
}

/*************************** raw ****************************/

// Raw is a box carried as opaque payload bytes, used to copy
// source boxes verbatim into a new container.
type Raw struct {
	BoxType BoxType
	Data    []byte
}

// Type returns the BoxType.
func (b *Raw) Type() BoxType {
	return b.BoxType
}

// Size returns the marshaled size in bytes.
func (b *Raw) Size() int {
	return len(b.Data)
}

// Marshal box to writer.
func (b *Raw) Marshal(w *bitio.Writer) error {
	w.TryWrite(b.Data)
	return w.TryError
}
