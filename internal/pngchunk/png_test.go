package pngchunk

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deid-export/internal/action"
	"deid-export/internal/document"
	"deid-export/internal/identity"
	"deid-export/internal/profile"
)

func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], uint32(len(data)))
	buf.Write(word[:])
	body := append([]byte(typ), data...)
	buf.Write(body)
	binary.BigEndian.PutUint32(word[:], crc32.ChecksumIEEE(body))
	buf.Write(word[:])
}

func compressed(s string) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte(s))
	zw.Close()
	return buf.Bytes()
}

// samplePNG is a 1x1 image carrying one chunk of each text flavour and a
// private chunk.
func samplePNG() []byte {
	var buf bytes.Buffer
	buf.Write(signature)
	writeChunk(&buf, "IHDR", []byte{0, 0, 0, 1, 0, 0, 0, 1, 8, 0, 0, 0, 0})
	writeChunk(&buf, "tEXt", []byte("Author\x00Jane Doe"))
	writeChunk(&buf, "zTXt", append([]byte("Comment\x00\x00"), compressed("scan of MRN-4471")...))
	writeChunk(&buf, "iTXt", []byte("Title\x00\x00\x00en\x00Titel\x00Chest X-ray"))
	writeChunk(&buf, "prVt", []byte("vendor"))
	writeChunk(&buf, "IDAT", compressed("\x00\x00"))
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes()
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

func chunkTypes(doc *Document) []string {
	var out []string
	for _, c := range doc.Chunks {
		out = append(out, c.Type)
	}
	return out
}

func TestParse(t *testing.T) {
	doc, err := Parse("image.png", samplePNG())
	require.NoError(t, err)

	assert.Equal(t, []string{"IHDR", "tEXt", "zTXt", "iTXt", "prVt", "IDAT", "IEND"}, chunkTypes(doc))
	assert.Equal(t, []string{"Jane Doe"}, values(t, doc, "Author"))
	assert.Equal(t, []string{"scan of MRN-4471"}, values(t, doc, "Comment"))
	assert.Equal(t, []string{"Chest X-ray"}, values(t, doc, "Title"))
	assert.Equal(t, []string{"Jane Doe"}, values(t, doc, "tEXt"))
	assert.Equal(t, []string{"vendor"}, values(t, doc, "prVt"))
}

func TestEncodeUnchanged(t *testing.T) {
	doc, err := Parse("image.png", samplePNG())
	require.NoError(t, err)
	out, err := doc.Encode()
	require.NoError(t, err)
	assert.Equal(t, samplePNG(), out)
}

func TestParseRejects(t *testing.T) {
	_, err := Parse("x.png", []byte("GIF89a"))
	assert.ErrorIs(t, err, ErrFormat)

	data := samplePNG()
	data[len(signature)+10] ^= 0xFF
	_, err = Parse("x.png", data)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = Parse("x.png", samplePNG()[:len(signature)+6])
	assert.ErrorIs(t, err, ErrFormat)
}

func TestScrubPrivateChunks(t *testing.T) {
	doc, err := Parse("image.png", samplePNG())
	require.NoError(t, err)
	require.NoError(t, doc.Scrub(&profile.FormatProfile{RemovePrivateChunks: true}))

	out, err := doc.Encode()
	require.NoError(t, err)
	again, err := Parse("image.png", out)
	require.NoError(t, err)
	assert.Equal(t, []string{"IHDR", "tEXt", "zTXt", "iTXt", "IDAT", "IEND"}, chunkTypes(again))
}

func TestRules(t *testing.T) {
	p, err := profile.Load([]byte(`
png:
  fields:
    - name: Author
      replace-with: SUBJ-3
    - name: Comment
      hash: true
    - name: Title
      replace-with: Redacted
`))
	require.NoError(t, err)
	fp := p.Format(profile.KindPNG)

	doc, err := Parse("image.png", samplePNG())
	require.NoError(t, err)
	require.NoError(t, action.New(identity.NewHashState("salt")).ApplyRules(doc, fp))

	out, err := doc.Encode()
	require.NoError(t, err)
	again, err := Parse("image.png", out)
	require.NoError(t, err)

	assert.Equal(t, []string{"SUBJ-3"}, values(t, again, "Author"))
	assert.Equal(t, []string{"Redacted"}, values(t, again, "Title"))
	comment := values(t, again, "Comment")
	require.Len(t, comment, 1)
	assert.Len(t, comment[0], 16)
	assert.NotContains(t, string(out), "Jane")

	title, err := decodeText(again.Chunks[3])
	require.NoError(t, err)
	assert.Equal(t, "en", title.language)
	assert.Equal(t, "Titel", title.translated)
}

func TestRemoveTextChunk(t *testing.T) {
	doc, err := Parse("image.png", samplePNG())
	require.NoError(t, err)

	slots, err := document.Locate(doc, "Comment")
	require.NoError(t, err)
	require.NoError(t, slots[0].Remove())

	_, err = document.Locate(doc, "zTXt")
	var miss *document.ResolutionError
	assert.ErrorAs(t, err, &miss)

	slots, err = document.Locate(doc, "IHDR")
	require.NoError(t, err)
	assert.Error(t, slots[0].Remove())
}

func TestFields(t *testing.T) {
	doc, err := Parse("image.png", samplePNG())
	require.NoError(t, err)

	var names []string
	for _, f := range doc.Root().Fields() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"IHDR", "tEXt", "zTXt", "iTXt", "prVt", "IDAT", "IEND", "Author", "Comment", "Title"}, names)
}

func TestSniff(t *testing.T) {
	assert.True(t, Adapter{}.Sniff(samplePNG()))
	assert.False(t, Adapter{}.Sniff([]byte{0xFF, 0xD8}))
}
