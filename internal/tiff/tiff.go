// Package tiff de-identifies TIFF files by rewriting their directory
// entries.
package tiff

import (
	"deid-export/internal/document"
	"deid-export/internal/ifd"
	"deid-export/internal/profile"
)

// TIFFPatterns are the default file-filter globs.
var TIFFPatterns = []string{"*.tif", "*.tiff", "*.TIF", "*.TIFF"}

// privateTagStart is the first tag number reserved for private use.
const privateTagStart = 32768

// Document is a parsed TIFF file.
type Document struct {
	FilePath string
	file     *ifd.File
}

// Parse decodes data as a TIFF file.
func Parse(name string, data []byte) (*Document, error) {
	f, err := ifd.Parse(data)
	if err != nil {
		return nil, err
	}
	return &Document{FilePath: name, file: f}, nil
}

func (d *Document) Root() document.Node { return d.file.Root() }

// Scrub applies the remove-private-tags and remove-gps options. Private
// tags that point at the Exif or GPS directories are kept unless GPS removal
// was asked for, since they carry standard metadata.
func (d *Document) Scrub(fp *profile.FormatProfile) error {
	d.file.Walk(func(dir *ifd.IFD) {
		if fp.RemoveGPS {
			dir.RemoveTag(ifd.TagGPSIFD)
		}
		if !fp.RemovePrivateTags {
			return
		}
		for _, e := range append([]*ifd.Entry(nil), dir.Entries...) {
			if e.Tag < privateTagStart || ifd.Structural(e.Tag) {
				continue
			}
			dir.RemoveTag(e.Tag)
		}
	})
	return nil
}

func (d *Document) Encode() ([]byte, error) { return d.file.Encode(), nil }

// Adapter opens TIFF files as documents.
type Adapter struct{}

func (Adapter) Kind() profile.Kind      { return profile.KindTIFF }
func (Adapter) DefaultFilter() []string { return TIFFPatterns }

// Sniff recognises both byte-order headers.
func (Adapter) Sniff(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	h := string(data[:4])
	return h == "II*\x00" || h == "MM\x00*"
}

func (Adapter) Open(name string, data []byte) (document.Document, error) {
	return Parse(name, data)
}
