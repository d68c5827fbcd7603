package ifd

import (
	"encoding/binary"
	"sort"
)

type encoder struct {
	order binary.ByteOrder
	buf   []byte
}

// Encode serializes the file. Directories, values and blobs are laid out
// afresh; offsets are always written as LONG.
func (f *File) Encode() []byte {
	w := &encoder{order: f.Order}
	if f.Order == binary.BigEndian {
		w.buf = append(w.buf, 'M', 'M')
	} else {
		w.buf = append(w.buf, 'I', 'I')
	}
	w.buf = appendUint16(w.order, w.buf, 42)
	w.buf = appendUint32(w.order, w.buf, 0)

	next := 4
	for _, d := range f.IFDs {
		off, nextPos := w.writeIFD(d)
		w.order.PutUint32(w.buf[next:], uint32(off))
		next = nextPos
	}
	return w.buf
}

func (w *encoder) align() {
	if len(w.buf)%2 == 1 {
		w.buf = append(w.buf, 0)
	}
}

// writeIFD writes d and everything it references, returning its offset and
// the position of its next-directory pointer.
func (w *encoder) writeIFD(d *IFD) (int, int) {
	w.prepare(d)
	entries := append([]*Entry(nil), d.Entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })

	w.align()
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, 2+12*len(entries)+4)...)
	w.order.PutUint16(w.buf[start:], uint16(len(entries)))

	// valueAt records where each entry's value bytes ended up, so pointer
	// and blob offsets can be patched once their targets are written.
	valueAt := make(map[uint16]int, len(entries))
	for i, e := range entries {
		p := start + 2 + 12*i
		w.order.PutUint16(w.buf[p:], e.Tag)
		w.order.PutUint16(w.buf[p+2:], e.Type)
		w.order.PutUint32(w.buf[p+4:], e.Count)
		if len(e.Data) <= 4 {
			copy(w.buf[p+8:p+12], e.Data)
			valueAt[e.Tag] = p + 8
			continue
		}
		w.align()
		off := len(w.buf)
		w.buf = append(w.buf, e.Data...)
		w.order.PutUint32(w.buf[p+8:], uint32(off))
		valueAt[e.Tag] = off
	}

	for _, e := range entries {
		for i, blob := range d.Blobs[e.Tag] {
			w.align()
			off := len(w.buf)
			w.buf = append(w.buf, blob...)
			w.order.PutUint32(w.buf[valueAt[e.Tag]+4*i:], uint32(off))
		}
	}
	for _, e := range entries {
		for i, child := range d.Children[e.Tag] {
			off, _ := w.writeIFD(child)
			w.order.PutUint32(w.buf[valueAt[e.Tag]+4*i:], uint32(off))
		}
	}

	return start, start + 2 + 12*len(entries)
}

// prepare rewrites pointer and blob entries as LONG arrays sized for what
// will be written, dropping pointers whose targets were removed.
func (w *encoder) prepare(d *IFD) {
	for tag := range pointerClasses {
		e := d.Find(tag)
		if e == nil {
			continue
		}
		children := d.Children[tag]
		if len(children) == 0 {
			d.Remove(e)
			continue
		}
		e.Type, e.Count, e.Data = TypeLong, uint32(len(children)), make([]byte, 4*len(children))
	}

	for offTag, countTag := range blobPairs {
		blobs, ok := d.Blobs[offTag]
		oe, ce := d.Find(offTag), d.Find(countTag)
		if !ok || oe == nil || ce == nil {
			continue
		}
		oe.Type, oe.Count, oe.Data = TypeLong, uint32(len(blobs)), make([]byte, 4*len(blobs))
		counts := make([]byte, 0, 4*len(blobs))
		for _, b := range blobs {
			counts = appendUint32(w.order, counts, uint32(len(b)))
		}
		ce.Type, ce.Count, ce.Data = TypeLong, uint32(len(blobs)), counts
	}
}

func appendUint16(order binary.ByteOrder, b []byte, v uint16) []byte {
	var tmp [2]byte
	order.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(order binary.ByteOrder, b []byte, v uint32) []byte {
	var tmp [4]byte
	order.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
