// Package exif de-identifies JPEG files through their Exif metadata block.
package exif

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"deid-export/internal/document"
	"deid-export/internal/ifd"
	"deid-export/internal/profile"
)

// ErrFormat is returned for data that is not a JPEG stream.
var ErrFormat = errors.New("not a JPEG stream")

const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerEOI  = 0xD9
	markerAPP1 = 0xE1

	maxSegment = 0xFFFF - 2
)

var exifHeader = []byte("Exif\x00\x00")

// JPEGPatterns are the default file-filter globs.
var JPEGPatterns = []string{"*.jpg", "*.jpeg", "*.JPG", "*.JPEG"}

type segment struct {
	marker  byte
	payload []byte
}

// Document is a JPEG stream split into its header segments and the scan
// data that follows them.
type Document struct {
	FilePath string

	segments []segment
	tail     []byte
	exif     *ifd.File
	exifAt   int
}

// Parse splits data into segments and decodes the Exif block if present.
func Parse(name string, data []byte) (*Document, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, ErrFormat
	}

	doc := &Document{FilePath: name, exifAt: -1}
	pos := 2
	for pos < len(data) {
		if data[pos] != 0xFF {
			return nil, fmt.Errorf("%w: expected marker at %d", ErrFormat, pos)
		}
		for pos < len(data) && data[pos] == 0xFF {
			pos++
		}
		if pos >= len(data) {
			break
		}
		marker := data[pos]
		pos++

		if marker == markerSOS || marker == markerEOI {
			doc.tail = data[pos-2:]
			break
		}
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated segment header", ErrFormat)
		}
		size := int(binary.BigEndian.Uint16(data[pos:]))
		if size < 2 || pos+size > len(data) {
			return nil, fmt.Errorf("%w: segment %#02x overruns data", ErrFormat, marker)
		}
		payload := data[pos+2 : pos+size]
		pos += size

		if marker == markerAPP1 && doc.exif == nil && bytes.HasPrefix(payload, exifHeader) {
			f, err := ifd.Parse(payload[len(exifHeader):])
			if err != nil {
				return nil, fmt.Errorf("could not parse Exif block: %w", err)
			}
			doc.exif = f
			doc.exifAt = len(doc.segments)
		}
		doc.segments = append(doc.segments, segment{marker: marker, payload: payload})
	}
	return doc, nil
}

// Root returns the Exif keyword namespace. A file without Exif has no
// addressable fields.
func (d *Document) Root() document.Node {
	if d.exif == nil {
		return (&ifd.File{Order: binary.BigEndian}).Root()
	}
	return d.exif.Root()
}

// Scrub applies the remove-exif and remove-gps options.
func (d *Document) Scrub(fp *profile.FormatProfile) error {
	if d.exif == nil {
		return nil
	}
	if fp.RemoveEXIF {
		d.segments = append(d.segments[:d.exifAt], d.segments[d.exifAt+1:]...)
		d.exif, d.exifAt = nil, -1
		return nil
	}
	if fp.RemoveGPS {
		d.exif.Walk(func(dir *ifd.IFD) { dir.RemoveTag(ifd.TagGPSIFD) })
	}
	return nil
}

// Encode reassembles the stream with the rewritten Exif block.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, markerSOI})
	for i, seg := range d.segments {
		payload := seg.payload
		if i == d.exifAt {
			payload = append(append([]byte(nil), exifHeader...), d.exif.Encode()...)
			if len(payload) > maxSegment {
				return nil, fmt.Errorf("could not encode Exif block: %d bytes exceeds segment size", len(payload))
			}
		}
		buf.Write([]byte{0xFF, seg.marker})
		var size [2]byte
		binary.BigEndian.PutUint16(size[:], uint16(len(payload)+2))
		buf.Write(size[:])
		buf.Write(payload)
	}
	buf.Write(d.tail)
	return buf.Bytes(), nil
}

// Adapter opens JPEG files as documents.
type Adapter struct{}

func (Adapter) Kind() profile.Kind      { return profile.KindJPG }
func (Adapter) DefaultFilter() []string { return JPEGPatterns }

// Sniff recognises the start-of-image marker followed by a segment.
func (Adapter) Sniff(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xFF && data[1] == markerSOI && data[2] == 0xFF
}

func (Adapter) Open(name string, data []byte) (document.Document, error) {
	return Parse(name, data)
}
