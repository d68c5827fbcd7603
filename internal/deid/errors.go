package deid

import (
	"errors"
	"fmt"

	"deid-export/internal/profile"
)

// ErrUnclassified is returned for a file no configured kind accepts.
var ErrUnclassified = errors.New("no profile block matches file")

// ErrArchiveDepth is returned for a ZIP nested more than MaxArchiveDepth
// levels deep.
var ErrArchiveDepth = errors.New("archive nesting too deep")

// FileError attaches the file and its kind to a per-file failure. The
// wrapped error is one of *document.ResolutionError, *action.Error,
// *filename.NoMatchError, *archive.ValidationError or an adapter error.
type FileError struct {
	Name string
	Kind profile.Kind
	Err  error
}

func (e *FileError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Name, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
