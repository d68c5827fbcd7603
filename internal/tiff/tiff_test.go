package tiff

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deid-export/internal/document"
	"deid-export/internal/ifd"
	"deid-export/internal/profile"
)

func ascii(tag uint16, s string) *ifd.Entry {
	return &ifd.Entry{Tag: tag, Type: ifd.TypeASCII, Count: uint32(len(s) + 1), Data: append([]byte(s), 0)}
}

func long(tag uint16) *ifd.Entry {
	return &ifd.Entry{Tag: tag, Type: ifd.TypeLong, Count: 1, Data: make([]byte, 4)}
}

func newIFD(class ifd.Class, entries ...*ifd.Entry) *ifd.IFD {
	return &ifd.IFD{Class: class, Entries: entries, Children: map[uint16][]*ifd.IFD{}, Blobs: map[uint16][][]byte{}}
}

// sampleTIFF is a single strip image with a vendor tag and a GPS block.
func sampleTIFF(order binary.ByteOrder) []byte {
	page := newIFD(ifd.ClassImage,
		ascii(0x010E, "Slide 7 for Jane Doe"),
		ascii(0x0131, "Scanner 2.1"),
		long(0x0111),
		long(0x0117),
		ascii(0xC350, "vendor-patient=Jane Doe"),
		long(ifd.TagGPSIFD),
	)
	page.Blobs[0x0111] = [][]byte{[]byte("pixeldata")}
	page.Children[ifd.TagGPSIFD] = []*ifd.IFD{newIFD(ifd.ClassGPS, ascii(0x0001, "S"))}
	return (&ifd.File{Order: order, IFDs: []*ifd.IFD{page}}).Encode()
}

func values(t *testing.T, doc document.Document, addr string) []string {
	t.Helper()
	slots, err := document.Locate(doc, addr)
	if err != nil {
		return nil
	}
	var out []string
	for _, s := range slots {
		v, err := s.Values()
		require.NoError(t, err)
		out = append(out, v...)
	}
	return out
}

func TestParse(t *testing.T) {
	doc, err := Parse("slide.tif", sampleTIFF(binary.LittleEndian))
	require.NoError(t, err)

	assert.Equal(t, []string{"Slide 7 for Jane Doe"}, values(t, doc, "ImageDescription"))
	assert.Equal(t, []string{"vendor-patient=Jane Doe"}, values(t, doc, "0xC350"))
	assert.Equal(t, []string{"S"}, values(t, doc, "GPSLatitudeRef"))
}

func TestScrub(t *testing.T) {
	tests := []struct {
		name        string
		fp          profile.FormatProfile
		wantPrivate bool
		wantGPS     bool
	}{
		{"nothing", profile.FormatProfile{}, true, true},
		{"private", profile.FormatProfile{RemovePrivateTags: true}, false, true},
		{"gps", profile.FormatProfile{RemoveGPS: true}, true, false},
		{"both", profile.FormatProfile{RemovePrivateTags: true, RemoveGPS: true}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse("slide.tif", sampleTIFF(binary.BigEndian))
			require.NoError(t, err)
			require.NoError(t, doc.Scrub(&tt.fp))

			out, err := doc.Encode()
			require.NoError(t, err)
			again, err := Parse("slide.tif", out)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPrivate, values(t, again, "0xC350") != nil)
			assert.Equal(t, tt.wantGPS, values(t, again, "GPSLatitudeRef") != nil)
			assert.Equal(t, []string{"Scanner 2.1"}, values(t, again, "Software"))
			assert.Equal(t, [][]byte{[]byte("pixeldata")}, again.file.IFDs[0].Blobs[0x0111])
		})
	}
}

func TestSniff(t *testing.T) {
	assert.True(t, Adapter{}.Sniff(sampleTIFF(binary.LittleEndian)))
	assert.True(t, Adapter{}.Sniff(sampleTIFF(binary.BigEndian)))
	assert.False(t, Adapter{}.Sniff([]byte("II")))
	assert.False(t, Adapter{}.Sniff([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
}

func TestOpenRejectsGarbage(t *testing.T) {
	_, err := Adapter{}.Open("x.tif", []byte("not a tiff at all"))
	assert.ErrorIs(t, err, ifd.ErrFormat)
}
