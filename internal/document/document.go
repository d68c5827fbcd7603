// Package document defines the format-neutral view every adapter exposes
// over its native encoding, and resolves field addresses against it.
package document

import (
	"errors"
	"fmt"
)

// ValueKind is the scalar type underlying a slot.
type ValueKind int

const (
	KindString ValueKind = iota
	KindDate
	KindDateTime
	KindTime
	KindUID
	KindNumeric
	KindBinary
)

func (k ValueKind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindTime:
		return "time"
	case KindUID:
		return "uid"
	case KindNumeric:
		return "numeric"
	case KindBinary:
		return "binary"
	default:
		return "string"
	}
}

// ErrNotScalar is returned when a value operation targets a container.
var ErrNotScalar = errors.New("not a scalar field")

// Slot is one addressable value location in a document.
type Slot interface {
	Path() string
	Kind() ValueKind
	Values() ([]string, error)
	SetValues(values []string) error
	Remove() error
}

// Limited is implemented by slots whose encoding caps value length.
type Limited interface {
	MaxLength() int
}

// MaxLength returns the slot's value length cap, or 0 when unbounded.
func MaxLength(s Slot) int {
	if l, ok := s.(Limited); ok {
		return l.MaxLength()
	}
	return 0
}

// Node is a slot that can also be descended into.
type Node interface {
	Slot
	Name() string
	Child(seg Segment) (Node, bool)
	Items() []Node
	Fields() []Node
}

// Document is an opened file ready for mutation and re-encoding.
type Document interface {
	Root() Node
	Encode() ([]byte, error)
}

// Querier is implemented by documents addressed through their own query
// language instead of dotted paths.
type Querier interface {
	Query(q string) ([]Slot, error)
}

// ResolutionError reports a non-wildcard address that matched nothing.
type ResolutionError struct {
	Address string
	Segment string
}

func (e *ResolutionError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("field %q not found", e.Address)
	}
	return fmt.Sprintf("field %q not found (no match for %q)", e.Address, e.Segment)
}

// FirstValue returns the first value of the first slot at addr, if any.
func FirstValue(doc Document, addr string) (string, bool) {
	slots, err := Locate(doc, addr)
	if err != nil || len(slots) == 0 {
		return "", false
	}
	values, err := slots[0].Values()
	if err != nil || len(values) == 0 {
		return "", false
	}
	return values[0], true
}
