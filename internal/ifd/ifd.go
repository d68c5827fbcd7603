// Package ifd reads and rewrites TIFF image file directories, the structure
// shared by TIFF files and the Exif block of JPEG files.
package ifd

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFormat is returned for data that is not a well-formed TIFF structure.
var ErrFormat = errors.New("malformed TIFF structure")

// Field types.
const (
	TypeByte      uint16 = 1
	TypeASCII     uint16 = 2
	TypeShort     uint16 = 3
	TypeLong      uint16 = 4
	TypeRational  uint16 = 5
	TypeSByte     uint16 = 6
	TypeUndefined uint16 = 7
	TypeSShort    uint16 = 8
	TypeSLong     uint16 = 9
	TypeSRational uint16 = 10
	TypeFloat     uint16 = 11
	TypeDouble    uint16 = 12
	TypeIFD       uint16 = 13
)

var typeSizes = map[uint16]int{
	TypeByte: 1, TypeASCII: 1, TypeShort: 2, TypeLong: 4, TypeRational: 8,
	TypeSByte: 1, TypeUndefined: 1, TypeSShort: 2, TypeSLong: 4, TypeSRational: 8,
	TypeFloat: 4, TypeDouble: 8, TypeIFD: 4,
}

// Pointer tags whose values are offsets of child directories.
const (
	TagSubIFDs    uint16 = 0x014A
	TagExifIFD    uint16 = 0x8769
	TagGPSIFD     uint16 = 0x8825
	TagInteropIFD uint16 = 0xA005
)

// Class is the namespace a directory's tags live in.
type Class int

const (
	ClassImage Class = iota
	ClassExif
	ClassGPS
	ClassInterop
)

var pointerClasses = map[uint16]Class{
	TagSubIFDs:    ClassImage,
	TagExifIFD:    ClassExif,
	TagGPSIFD:     ClassGPS,
	TagInteropIFD: ClassInterop,
}

// blobPairs maps offset tags to the tags holding their byte counts.
var blobPairs = map[uint16]uint16{
	0x0111: 0x0117, // StripOffsets, StripByteCounts
	0x0144: 0x0145, // TileOffsets, TileByteCounts
	0x0201: 0x0202, // JPEGInterchangeFormat, JPEGInterchangeFormatLength
}

// Structural reports whether tag describes file layout rather than content.
func Structural(tag uint16) bool {
	if _, ok := pointerClasses[tag]; ok {
		return true
	}
	if _, ok := blobPairs[tag]; ok {
		return true
	}
	for _, counts := range blobPairs {
		if counts == tag {
			return true
		}
	}
	return false
}

// Entry is one directory entry with its raw value bytes in file byte order.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Data  []byte
}

// IFD is one image file directory.
type IFD struct {
	Class    Class
	Entries  []*Entry
	Children map[uint16][]*IFD
	Blobs    map[uint16][][]byte
}

// Find returns the entry for tag, or nil.
func (d *IFD) Find(tag uint16) *Entry {
	for _, e := range d.Entries {
		if e.Tag == tag {
			return e
		}
	}
	return nil
}

// Remove deletes e from the directory.
func (d *IFD) Remove(e *Entry) bool {
	for i, cur := range d.Entries {
		if cur == e {
			d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveTag deletes the entry for tag together with any child directories
// or blobs it points at.
func (d *IFD) RemoveTag(tag uint16) {
	if e := d.Find(tag); e != nil {
		d.Remove(e)
	}
	delete(d.Children, tag)
	delete(d.Blobs, tag)
}

// Walk visits d and every descendant directory, depth first in tag order.
func (d *IFD) Walk(fn func(*IFD)) {
	fn(d)
	for _, e := range d.Entries {
		for _, child := range d.Children[e.Tag] {
			child.Walk(fn)
		}
	}
}

// File is a TIFF structure: byte order plus the main directory chain.
type File struct {
	Order binary.ByteOrder
	IFDs  []*IFD
}

// Walk visits every directory in the file.
func (f *File) Walk(fn func(*IFD)) {
	for _, d := range f.IFDs {
		d.Walk(fn)
	}
}

const maxDirectories = 256

type parser struct {
	data    []byte
	order   binary.ByteOrder
	visited map[uint32]bool
}

// Parse decodes a TIFF structure starting at the byte-order mark.
func Parse(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: short header", ErrFormat)
	}

	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order mark", ErrFormat)
	}
	if order.Uint16(data[2:]) != 42 {
		return nil, fmt.Errorf("%w: bad magic", ErrFormat)
	}

	p := &parser{data: data, order: order, visited: make(map[uint32]bool)}
	f := &File{Order: order}

	off := order.Uint32(data[4:])
	for off != 0 {
		if len(f.IFDs) >= maxDirectories {
			return nil, fmt.Errorf("%w: too many directories", ErrFormat)
		}
		d, next, err := p.parseIFD(off, ClassImage)
		if err != nil {
			return nil, err
		}
		f.IFDs = append(f.IFDs, d)
		off = next
	}
	return f, nil
}

func (p *parser) parseIFD(off uint32, class Class) (*IFD, uint32, error) {
	if p.visited[off] {
		return nil, 0, fmt.Errorf("%w: directory loop at %d", ErrFormat, off)
	}
	p.visited[off] = true
	if len(p.visited) > maxDirectories {
		return nil, 0, fmt.Errorf("%w: too many directories", ErrFormat)
	}

	if int(off)+2 > len(p.data) {
		return nil, 0, fmt.Errorf("%w: directory offset %d out of range", ErrFormat, off)
	}
	n := int(p.order.Uint16(p.data[off:]))
	end := int(off) + 2 + 12*n
	if end+4 > len(p.data) {
		return nil, 0, fmt.Errorf("%w: directory at %d truncated", ErrFormat, off)
	}

	d := &IFD{Class: class, Children: make(map[uint16][]*IFD), Blobs: make(map[uint16][][]byte)}
	for i := 0; i < n; i++ {
		e, err := p.parseEntry(int(off) + 2 + 12*i)
		if err != nil {
			return nil, 0, err
		}
		if e != nil {
			d.Entries = append(d.Entries, e)
		}
	}

	for _, e := range d.Entries {
		childClass, ok := pointerClasses[e.Tag]
		if !ok {
			continue
		}
		for _, childOff := range e.Uints(p.order) {
			child, _, err := p.parseIFD(uint32(childOff), childClass)
			if err != nil {
				return nil, 0, err
			}
			d.Children[e.Tag] = append(d.Children[e.Tag], child)
		}
	}

	for offTag, countTag := range blobPairs {
		oe, ce := d.Find(offTag), d.Find(countTag)
		if oe == nil || ce == nil {
			continue
		}
		offsets, counts := oe.Uints(p.order), ce.Uints(p.order)
		if len(offsets) != len(counts) {
			return nil, 0, fmt.Errorf("%w: tag %#04x has %d offsets but %d counts", ErrFormat, offTag, len(offsets), len(counts))
		}
		blobs := make([][]byte, len(offsets))
		for i := range offsets {
			start, size := offsets[i], counts[i]
			if start+size > uint64(len(p.data)) {
				return nil, 0, fmt.Errorf("%w: data for tag %#04x out of range", ErrFormat, offTag)
			}
			blobs[i] = p.data[start : start+size]
		}
		d.Blobs[offTag] = blobs
	}

	return d, p.order.Uint32(p.data[end:]), nil
}

func (p *parser) parseEntry(at int) (*Entry, error) {
	e := &Entry{
		Tag:   p.order.Uint16(p.data[at:]),
		Type:  p.order.Uint16(p.data[at+2:]),
		Count: p.order.Uint32(p.data[at+4:]),
	}
	size, ok := typeSizes[e.Type]
	if !ok {
		// Unknown types cannot be relocated safely; drop the entry.
		return nil, nil
	}

	total := uint64(size) * uint64(e.Count)
	if total <= 4 {
		e.Data = append([]byte(nil), p.data[at+8:at+8+int(total)]...)
		return e, nil
	}

	off := uint64(p.order.Uint32(p.data[at+8:]))
	if off+total > uint64(len(p.data)) {
		return nil, fmt.Errorf("%w: value of tag %#04x out of range", ErrFormat, e.Tag)
	}
	e.Data = append([]byte(nil), p.data[off:off+total]...)
	return e, nil
}
