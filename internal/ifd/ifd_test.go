package ifd

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deid-export/internal/document"
)

func ascii(tag uint16, s string) *Entry {
	return &Entry{Tag: tag, Type: TypeASCII, Count: uint32(len(s) + 1), Data: append([]byte(s), 0)}
}

func short(order binary.ByteOrder, tag uint16, v uint16) *Entry {
	e := &Entry{Tag: tag, Type: TypeShort, Count: 1, Data: make([]byte, 2)}
	order.PutUint16(e.Data, v)
	return e
}

func pointer(tag uint16) *Entry {
	return &Entry{Tag: tag, Type: TypeLong, Count: 1, Data: make([]byte, 4)}
}

func newIFD(class Class, entries ...*Entry) *IFD {
	return &IFD{Class: class, Entries: entries, Children: map[uint16][]*IFD{}, Blobs: map[uint16][][]byte{}}
}

// sampleFile builds a one-page image with Exif and GPS sub-directories and a
// single pixel strip.
func sampleFile(order binary.ByteOrder) *File {
	exif := newIFD(ClassExif,
		ascii(0x9003, "2024:03:15 10:20:30"),
		ascii(0xA430, "Jane Doe"),
	)
	gps := newIFD(ClassGPS,
		ascii(0x0001, "N"),
		ascii(0x001D, "2024:03:15"),
	)
	page := newIFD(ClassImage,
		short(order, 0x0100, 2),
		short(order, 0x0101, 2),
		ascii(0x010E, "Scan of Jane Doe"),
		ascii(0x0132, "2024:03:15 10:20:30"),
		ascii(0x013B, "Dr. Smith"),
		pointer(0x0111),
		pointer(0x0117),
		pointer(TagExifIFD),
		pointer(TagGPSIFD),
	)
	page.Children[TagExifIFD] = []*IFD{exif}
	page.Children[TagGPSIFD] = []*IFD{gps}
	page.Blobs[0x0111] = [][]byte{{1, 2, 3, 4}}
	return &File{Order: order, IFDs: []*IFD{page}}
}

func reparse(t *testing.T, f *File) *File {
	t.Helper()
	out, err := Parse(f.Encode())
	require.NoError(t, err)
	return out
}

func TestRoundTrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			f := reparse(t, sampleFile(order))

			require.Len(t, f.IFDs, 1)
			page := f.IFDs[0]
			assert.Equal(t, []string{"Scan of Jane Doe"}, page.Find(0x010E).Strings(order))
			assert.Equal(t, []string{"2"}, page.Find(0x0100).Strings(order))
			assert.Equal(t, [][]byte{{1, 2, 3, 4}}, page.Blobs[0x0111])

			require.Len(t, page.Children[TagExifIFD], 1)
			assert.Equal(t, ClassExif, page.Children[TagExifIFD][0].Class)
			require.Len(t, page.Children[TagGPSIFD], 1)
			assert.Equal(t, []string{"N"}, page.Children[TagGPSIFD][0].Find(0x0001).Strings(order))
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string][]byte{
		"short":      []byte("II*"),
		"bad order":  []byte("XX*\x00\x08\x00\x00\x00"),
		"bad magic":  []byte("II\x2b\x00\x08\x00\x00\x00"),
		"bad offset": []byte("II*\x00\xff\x00\x00\x00"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(data)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestParseRejectsLoop(t *testing.T) {
	f := sampleFile(binary.LittleEndian)
	data := f.Encode()
	first := binary.LittleEndian.Uint32(data[4:])
	n := int(binary.LittleEndian.Uint16(data[first:]))
	next := int(first) + 2 + 12*n
	binary.LittleEndian.PutUint32(data[next:], first)

	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestRemoveTagDropsChild(t *testing.T) {
	f := sampleFile(binary.LittleEndian)
	f.IFDs[0].RemoveTag(TagGPSIFD)
	out := reparse(t, f)

	assert.Nil(t, out.IFDs[0].Find(TagGPSIFD))
	assert.Empty(t, out.IFDs[0].Children[TagGPSIFD])
	assert.NotNil(t, out.IFDs[0].Find(TagExifIFD))
}

func TestStructural(t *testing.T) {
	assert.True(t, Structural(TagExifIFD))
	assert.True(t, Structural(0x0111))
	assert.True(t, Structural(0x0117))
	assert.False(t, Structural(0x010E))
}

func TestKeyword(t *testing.T) {
	assert.Equal(t, "Artist", Keyword(ClassImage, 0x013B))
	assert.Equal(t, "GPSLatitudeRef", Keyword(ClassGPS, 0x0001))
	assert.Equal(t, "0xC4A5", Keyword(ClassImage, 0xC4A5))
}

func TestSetStrings(t *testing.T) {
	order := binary.BigEndian
	tests := []struct {
		name string
		typ  uint16
		in   []string
		want []string
	}{
		{"ascii", TypeASCII, []string{"hello"}, []string{"hello"}},
		{"short", TypeShort, []string{"1", "65535"}, []string{"1", "65535"}},
		{"long", TypeLong, []string{"70000"}, []string{"70000"}},
		{"sshort", TypeSShort, []string{"-3"}, []string{"-3"}},
		{"rational", TypeRational, []string{"72/1", "5"}, []string{"72/1", "5/1"}},
		{"double", TypeDouble, []string{"1.5"}, []string{"1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Type: tt.typ}
			require.NoError(t, e.SetStrings(order, tt.in))
			assert.Equal(t, tt.want, e.Strings(order))
		})
	}

	e := &Entry{Type: TypeShort}
	assert.Error(t, e.SetStrings(order, []string{"abc"}))
}

func TestSetStringsOutOfRange(t *testing.T) {
	order := binary.LittleEndian
	tests := []struct {
		name string
		typ  uint16
		in   string
	}{
		{"short overflow", TypeShort, "70000"},
		{"short negative", TypeShort, "-1"},
		{"sshort overflow", TypeSShort, "40000"},
		{"long overflow", TypeLong, "4294967296"},
		{"slong overflow", TypeSLong, "2147483648"},
		{"sbyte overflow", TypeSByte, "200"},
		{"rational negative", TypeRational, "-1/2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Type: tt.typ, Data: []byte{1, 0, 0, 0, 0, 0, 0, 0}, Count: 1}
			assert.Error(t, e.SetStrings(order, []string{tt.in}))
			assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, e.Data, "a rejected value leaves the entry alone")
		})
	}
}

func TestDocumentView(t *testing.T) {
	f := sampleFile(binary.LittleEndian)
	root := f.Root()

	names := []string{}
	for _, field := range root.Fields() {
		names = append(names, field.Name())
	}
	assert.Contains(t, names, "Artist")
	assert.Contains(t, names, "DateTimeOriginal")
	assert.Contains(t, names, "GPSLatitudeRef")
	assert.NotContains(t, names, "0x8769")
	assert.NotContains(t, names, "0x0111")

	slots, err := document.LocateAddress(root, mustAddress(t, "DateTimeOriginal"))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, document.KindDateTime, slots[0].Kind())

	slots, err = document.LocateAddress(root, mustAddress(t, "0x013B"))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.NoError(t, slots[0].SetValues([]string{"anonymous"}))
	assert.Equal(t, []string{"anonymous"}, f.IFDs[0].Find(0x013B).Strings(f.Order))

	slots, err = document.LocateAddress(root, mustAddress(t, "ImageDescription"))
	require.NoError(t, err)
	require.NoError(t, slots[0].Remove())
	assert.Nil(t, f.IFDs[0].Find(0x010E))
}

func TestDocumentViewGroupsRepeatedKeywords(t *testing.T) {
	f := sampleFile(binary.LittleEndian)
	second := newIFD(ClassImage, ascii(0x013B, "Dr. Jones"))
	f.IFDs = append(f.IFDs, second)

	slots, err := document.LocateAddress(f.Root(), mustAddress(t, "Artist"))
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func mustAddress(t *testing.T, raw string) document.Address {
	t.Helper()
	a, err := document.ParseAddress(raw)
	require.NoError(t, err)
	return a
}
