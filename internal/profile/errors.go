package profile

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPath is returned by Set for paths outside the profile schema.
	ErrUnknownPath = errors.New("unknown profile path")
	// ErrUnknownKind is returned for a top-level key that names no file kind.
	ErrUnknownKind = errors.New("unknown file kind")
)

// ParseError reports malformed profile syntax, an unknown action or a
// missing action parameter.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("profile parse error: %v", e.Err)
	}
	return fmt.Sprintf("profile parse error at %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConfigError reports internally inconsistent profile options.
type ConfigError struct {
	Kind   Kind
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("profile config error in %s.%s: %s", e.Kind, e.Option, e.Reason)
}

func parseErrorf(path, format string, args ...any) error {
	return &ParseError{Path: path, Err: fmt.Errorf(format, args...)}
}
