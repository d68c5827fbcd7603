package dicom

import (
	"bytes"
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"deid-export/internal/document"
)

// Document is a parsed DICOM dataset opened for de-identification.
//
// Removals are recorded rather than applied immediately so that item and
// value indices stay stable while one rule fans out over a sequence; they
// are applied when the document is encoded.
type Document struct {
	Data     dicom.Dataset
	FilePath string

	removed      map[*dicom.Element]bool
	removedItems map[*dicom.SequenceItemValue]bool

	// Captured before any rule runs, for derived fields.
	birthDate string
	studyDate string
}

// Parse reads a DICOM file from memory.
func Parse(name string, data []byte) (*Document, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	d := &Document{
		Data:         ds,
		FilePath:     name,
		removed:      make(map[*dicom.Element]bool),
		removedItems: make(map[*dicom.SequenceItemValue]bool),
	}
	d.birthDate = d.GetString(tag.PatientBirthDate)
	for _, t := range []tag.Tag{tag.StudyDate, tag.SeriesDate, tag.AcquisitionDate, tag.ContentDate} {
		if v := d.GetString(t); v != "" {
			d.studyDate = v
			break
		}
	}
	return d, nil
}

// GetString returns the first string value of a top-level tag, or empty
// string if it is absent or removed.
func (d *Document) GetString(t tag.Tag) string {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil || elem.Value == nil || d.removed[elem] {
		return ""
	}

	switch v := elem.Value.GetValue().(type) {
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case string:
		return v
	}
	return ""
}

// Root returns the top-level dataset node.
func (d *Document) Root() document.Node {
	return &datasetNode{doc: d, list: func() []*dicom.Element { return d.Data.Elements }}
}
