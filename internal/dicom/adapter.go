package dicom

import (
	"deid-export/internal/document"
	"deid-export/internal/profile"
)

// DicomPatterns are the default file-filter globs for DICOM files.
var DicomPatterns = []string{"*.dcm", "*.DCM", "*.dicom", "*.DICOM"}

// HasMagicBytes checks for the DICOM preamble marker ("DICM" at offset 128).
func HasMagicBytes(data []byte) bool {
	return len(data) >= 132 && string(data[128:132]) == "DICM"
}

// Adapter opens DICOM files as documents.
type Adapter struct{}

// Kind returns the profile kind served by this adapter.
func (Adapter) Kind() profile.Kind { return profile.KindDICOM }

// DefaultFilter returns the default file-filter globs.
func (Adapter) DefaultFilter() []string { return DicomPatterns }

// Sniff recognises DICOM content whose name carries no DICOM extension.
func (Adapter) Sniff(data []byte) bool { return HasMagicBytes(data) }

// Open parses data as a DICOM document.
func (Adapter) Open(name string, data []byte) (document.Document, error) {
	return Parse(name, data)
}
