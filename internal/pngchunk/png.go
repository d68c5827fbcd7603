// Package pngchunk de-identifies PNG files at the chunk level.
package pngchunk

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"deid-export/internal/document"
	"deid-export/internal/profile"
)

// ErrFormat is returned for data that is not a PNG stream.
var ErrFormat = errors.New("not a PNG stream")

var signature = []byte("\x89PNG\r\n\x1a\n")

// PNGPatterns are the default file-filter globs.
var PNGPatterns = []string{"*.png", "*.PNG"}

// publicChunks are the chunk types registered by the PNG specification and
// its extensions. Anything else is private.
var publicChunks = map[string]bool{
	"IHDR": true, "PLTE": true, "IDAT": true, "IEND": true,
	"tRNS": true, "cHRM": true, "gAMA": true, "iCCP": true, "sBIT": true, "sRGB": true,
	"cICP": true, "mDCv": true, "cLLi": true,
	"tEXt": true, "zTXt": true, "iTXt": true,
	"bKGD": true, "hIST": true, "pHYs": true, "sPLT": true, "eXIf": true, "tIME": true,
	"acTL": true, "fcTL": true, "fdAT": true,
}

// Chunk is one PNG chunk. CRCs are recomputed on encode.
type Chunk struct {
	Type string
	Data []byte

	removed bool
}

func isText(t string) bool { return t == "tEXt" || t == "zTXt" || t == "iTXt" }

// Document is a PNG stream as an ordered list of chunks.
type Document struct {
	FilePath string
	Chunks   []*Chunk
}

// Parse splits data into chunks, checking each CRC.
func Parse(name string, data []byte) (*Document, error) {
	if !bytes.HasPrefix(data, signature) {
		return nil, ErrFormat
	}
	doc := &Document{FilePath: name}
	pos := len(signature)
	for pos < len(data) {
		if pos+12 > len(data) {
			return nil, fmt.Errorf("%w: truncated chunk at %d", ErrFormat, pos)
		}
		size := int(binary.BigEndian.Uint32(data[pos:]))
		end := pos + 8 + size
		if size < 0 || end+4 > len(data) {
			return nil, fmt.Errorf("%w: chunk at %d overruns data", ErrFormat, pos)
		}
		typ := string(data[pos+4 : pos+8])
		body := data[pos+8 : end]
		if crc32.ChecksumIEEE(data[pos+4:end]) != binary.BigEndian.Uint32(data[end:]) {
			return nil, fmt.Errorf("%w: bad CRC on %s chunk", ErrFormat, typ)
		}
		doc.Chunks = append(doc.Chunks, &Chunk{Type: typ, Data: append([]byte(nil), body...)})
		pos = end + 4
		if typ == "IEND" {
			break
		}
	}
	return doc, nil
}

// Scrub applies remove-private-chunks.
func (d *Document) Scrub(fp *profile.FormatProfile) error {
	if !fp.RemovePrivateChunks {
		return nil
	}
	for _, c := range d.Chunks {
		if !publicChunks[c.Type] {
			c.removed = true
		}
	}
	return nil
}

func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(signature)
	var word [4]byte
	for _, c := range d.Chunks {
		if c.removed {
			continue
		}
		binary.BigEndian.PutUint32(word[:], uint32(len(c.Data)))
		buf.Write(word[:])
		start := buf.Len()
		buf.WriteString(c.Type)
		buf.Write(c.Data)
		binary.BigEndian.PutUint32(word[:], crc32.ChecksumIEEE(buf.Bytes()[start:]))
		buf.Write(word[:])
	}
	return buf.Bytes(), nil
}

// nodes returns the live chunks, each numbered within its type.
func (d *Document) nodes() []*chunkNode {
	var out []*chunkNode
	seen := make(map[string]int)
	for _, c := range d.Chunks {
		if c.removed {
			continue
		}
		out = append(out, &chunkNode{chunk: c, index: seen[c.Type]})
		seen[c.Type]++
	}
	return out
}

// Root resolves 4-character chunk types to the group of all chunks of that
// type, and text keywords to the group of text chunks carrying them.
func (d *Document) Root() document.Node { return &rootNode{doc: d} }

type rootNode struct {
	doc *Document
}

func (n *rootNode) Name() string              { return "" }
func (n *rootNode) Path() string              { return "" }
func (n *rootNode) Kind() document.ValueKind  { return document.KindString }
func (n *rootNode) Values() ([]string, error) { return nil, document.ErrNotScalar }
func (n *rootNode) SetValues([]string) error  { return document.ErrNotScalar }
func (n *rootNode) Remove() error             { return document.ErrNotScalar }
func (n *rootNode) Items() []document.Node    { return nil }

func (n *rootNode) Child(seg document.Segment) (document.Node, bool) {
	if seg.Kind != document.SegmentName {
		return nil, false
	}
	var members []document.Node
	nodes := n.doc.nodes()
	for _, cn := range nodes {
		if cn.chunk.Type == seg.Name {
			members = append(members, cn)
		}
	}
	if len(members) == 0 {
		for _, cn := range nodes {
			if isText(cn.chunk.Type) && textKeyword(cn.chunk.Data) == seg.Name {
				members = append(members, cn)
			}
		}
	}
	if len(members) == 0 {
		return nil, false
	}
	return document.NewGroup(seg.Name, seg.Name, members), true
}

// Fields lists chunk types, then text keywords, in first-appearance order.
func (n *rootNode) Fields() []document.Node {
	var types, keywords []string
	byName := make(map[string][]document.Node)
	for _, node := range n.doc.nodes() {
		c := node.chunk
		if _, seen := byName[c.Type]; !seen {
			types = append(types, c.Type)
		}
		byName[c.Type] = append(byName[c.Type], node)
		if isText(c.Type) {
			kw := textKeyword(c.Data)
			key := "keyword:" + kw
			if _, seen := byName[key]; !seen {
				keywords = append(keywords, kw)
			}
			byName[key] = append(byName[key], node)
		}
	}

	out := make([]document.Node, 0, len(types)+len(keywords))
	for _, t := range types {
		out = append(out, document.NewGroup(t, t, byName[t]))
	}
	for _, kw := range keywords {
		if _, clash := byName[kw]; clash {
			continue
		}
		out = append(out, document.NewGroup(kw, kw, byName["keyword:"+kw]))
	}
	return out
}

// chunkNode is one chunk. Text chunks expose their decoded text; any other
// chunk exposes its raw payload.
type chunkNode struct {
	chunk *Chunk
	index int
}

func (n *chunkNode) Name() string                                 { return n.chunk.Type }
func (n *chunkNode) Path() string                                 { return fmt.Sprintf("%s[%d]", n.chunk.Type, n.index) }
func (n *chunkNode) Child(document.Segment) (document.Node, bool) { return nil, false }
func (n *chunkNode) Items() []document.Node                       { return nil }
func (n *chunkNode) Fields() []document.Node                      { return nil }

func (n *chunkNode) Kind() document.ValueKind {
	if isText(n.chunk.Type) || n.chunk.Type == "tIME" {
		return document.KindString
	}
	return document.KindBinary
}

func (n *chunkNode) Values() ([]string, error) {
	switch n.chunk.Type {
	case "tEXt", "zTXt", "iTXt":
		t, err := decodeText(n.chunk)
		if err != nil {
			return nil, err
		}
		return []string{t.value}, nil
	}
	return []string{string(n.chunk.Data)}, nil
}

func (n *chunkNode) SetValues(values []string) error {
	v := ""
	if len(values) > 0 {
		v = values[0]
	}
	if !isText(n.chunk.Type) {
		n.chunk.Data = []byte(v)
		return nil
	}
	t, err := decodeText(n.chunk)
	if err != nil {
		return err
	}
	t.value = v
	data, err := t.encode()
	if err != nil {
		return err
	}
	n.chunk.Data = data
	return nil
}

func (n *chunkNode) Remove() error {
	if n.chunk.Type == "IHDR" || n.chunk.Type == "IDAT" || n.chunk.Type == "IEND" {
		return fmt.Errorf("cannot remove critical chunk %s", n.chunk.Type)
	}
	n.chunk.removed = true
	return nil
}

// text is a decoded tEXt, zTXt or iTXt chunk.
type text struct {
	typ        string
	keyword    string
	compressed bool
	language   string
	translated string
	value      string
}

func textKeyword(data []byte) string {
	kw, _, _ := bytes.Cut(data, []byte{0})
	return string(kw)
}

func decodeText(c *Chunk) (*text, error) {
	kw, rest, ok := bytes.Cut(c.Data, []byte{0})
	if !ok {
		return nil, fmt.Errorf("%s chunk has no keyword separator", c.Type)
	}
	t := &text{typ: c.Type, keyword: string(kw)}

	switch c.Type {
	case "tEXt":
		t.value = string(rest)
	case "zTXt":
		if len(rest) < 1 {
			return nil, fmt.Errorf("zTXt chunk %q is truncated", t.keyword)
		}
		v, err := inflate(rest[1:])
		if err != nil {
			return nil, err
		}
		t.compressed, t.value = true, string(v)
	case "iTXt":
		if len(rest) < 2 {
			return nil, fmt.Errorf("iTXt chunk %q is truncated", t.keyword)
		}
		t.compressed = rest[0] == 1
		lang, rest, _ := bytes.Cut(rest[2:], []byte{0})
		translated, body, _ := bytes.Cut(rest, []byte{0})
		t.language, t.translated = string(lang), string(translated)
		if t.compressed {
			v, err := inflate(body)
			if err != nil {
				return nil, err
			}
			body = v
		}
		t.value = string(body)
	}
	return t, nil
}

func (t *text) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(t.keyword)
	buf.WriteByte(0)
	switch t.typ {
	case "tEXt":
		buf.WriteString(t.value)
	case "zTXt":
		buf.WriteByte(0)
		if err := deflate(&buf, t.value); err != nil {
			return nil, err
		}
	case "iTXt":
		if t.compressed {
			buf.Write([]byte{1, 0})
		} else {
			buf.Write([]byte{0, 0})
		}
		buf.WriteString(t.language)
		buf.WriteByte(0)
		buf.WriteString(t.translated)
		buf.WriteByte(0)
		if t.compressed {
			if err := deflate(&buf, t.value); err != nil {
				return nil, err
			}
		} else {
			buf.WriteString(t.value)
		}
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not inflate text chunk: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not inflate text chunk: %w", err)
	}
	return out, nil
}

func deflate(w io.Writer, s string) error {
	zw := zlib.NewWriter(w)
	if _, err := io.WriteString(zw, s); err != nil {
		return err
	}
	return zw.Close()
}

// Adapter opens PNG files as documents.
type Adapter struct{}

func (Adapter) Kind() profile.Kind      { return profile.KindPNG }
func (Adapter) DefaultFilter() []string { return PNGPatterns }
func (Adapter) Sniff(data []byte) bool  { return bytes.HasPrefix(data, signature) }

func (Adapter) Open(name string, data []byte) (document.Document, error) {
	return Parse(name, data)
}
