package deid

import (
	"deid-export/internal/dicom"
	"deid-export/internal/document"
	"deid-export/internal/exif"
	"deid-export/internal/pngchunk"
	"deid-export/internal/profile"
	"deid-export/internal/tiff"
	"deid-export/internal/xmldoc"
)

// Adapter opens files of one kind as documents.
type Adapter interface {
	Kind() profile.Kind
	DefaultFilter() []string
	Open(name string, data []byte) (document.Document, error)
}

// Sniffer is implemented by adapters that recognise their format from
// content, for files whose names carry no known extension.
type Sniffer interface {
	Sniff(data []byte) bool
}

// Scrubber is implemented by documents with format-wide options that run
// before field rules (private tags, GPS, private chunks).
type Scrubber interface {
	Scrub(fp *profile.FormatProfile) error
}

// Deriver is implemented by documents with fields computed after field
// rules from values captured at open.
type Deriver interface {
	Derive(fp *profile.FormatProfile) error
}

// DefaultAdapters returns one adapter per supported file kind.
func DefaultAdapters() []Adapter {
	return []Adapter{
		dicom.Adapter{},
		exif.Adapter{},
		tiff.Adapter{},
		xmldoc.Adapter{},
		pngchunk.Adapter{},
	}
}
