// Package override merges a per-subject CSV table into a base profile.
package override

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"deid-export/internal/profile"
)

const (
	// DefaultKeyColumn identifies the subject of each row.
	DefaultKeyColumn = "subject.code"
	// DefaultSubjectField is the rule whose replacement value names the
	// subject when the row gives no explicit code.
	DefaultSubjectField = "dicom.fields.PatientID.replace-with"
	// SubjectCodePath holds the destination subject identifier.
	SubjectCodePath = "export.subject.code"
)

var (
	ErrMissingKeyColumn = errors.New("key column missing from table")
	ErrEmptyKey         = errors.New("empty subject key")
	ErrDuplicateKey     = errors.New("duplicate subject key")
)

// MergeError reports a subject whose effective profile could not be built.
// It only affects that subject.
type MergeError struct {
	Key    string
	Line   int
	Column string
	Err    error
}

func (e *MergeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "override row %d", e.Line)
	if e.Key != "" {
		fmt.Fprintf(&b, " (subject %s)", e.Key)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %s", e.Column)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *MergeError) Unwrap() error { return e.Err }

// Row is one subject's overrides. Cells holds every non-key column.
type Row struct {
	Key   string
	Line  int
	Cells map[string]string
}

// Table is a parsed override table.
type Table struct {
	KeyColumn string
	// Columns lists the non-key columns in header order.
	Columns []string
	Rows    []Row
	HasKey  bool
}

// ReadTable parses CSV with one header row. An empty keyColumn means
// DefaultKeyColumn. A missing key column is reported per row by MergeAll.
func ReadTable(r io.Reader, keyColumn string) (*Table, error) {
	if keyColumn == "" {
		keyColumn = DefaultKeyColumn
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read override header: %w", err)
	}

	t := &Table{KeyColumn: keyColumn}
	keyIdx := -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		header[i] = h
		if h == keyColumn {
			keyIdx = i
			continue
		}
		t.Columns = append(t.Columns, h)
	}
	t.HasKey = keyIdx >= 0

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read override table: %w", err)
		}
		line, _ := cr.FieldPos(0)
		row := Row{Line: line, Cells: make(map[string]string, len(rec))}
		for i, v := range rec {
			if i == keyIdx {
				row.Key = strings.TrimSpace(v)
				continue
			}
			row.Cells[header[i]] = strings.TrimSpace(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Merger builds effective per-subject profiles.
type Merger struct {
	// SubjectField is the profile path of the subject rule's replacement
	// value. Empty means DefaultSubjectField.
	SubjectField string
}

// Merge applies row to a deep copy of base. Empty cells leave the base
// value untouched.
func Merge(base *profile.Profile, row Row) (*profile.Profile, error) {
	return Merger{}.Merge(base, row, nil)
}

// Merge applies row to a deep copy of base, setting columns in the given
// order (or sorted map order when columns is nil).
//
// The destination subject code is taken from an explicit export.subject.code
// cell, which is also written to the subject rule unless the row sets that
// rule itself. Without such a cell the subject rule's effective replacement
// is used, and failing that the row key.
func (m Merger) Merge(base *profile.Profile, row Row, columns []string) (*profile.Profile, error) {
	subjectField := m.SubjectField
	if subjectField == "" {
		subjectField = DefaultSubjectField
	}
	if columns == nil {
		columns = sortedKeys(row.Cells)
	}

	p := base.Clone()
	for _, col := range columns {
		v := row.Cells[col]
		if v == "" {
			continue
		}
		if err := p.Set(col, v); err != nil {
			return nil, &MergeError{Key: row.Key, Line: row.Line, Column: col, Err: err}
		}
	}

	code := row.Cells[SubjectCodePath]
	switch {
	case code != "":
		if row.Cells[subjectField] == "" {
			if _, ok := p.Get(subjectField); ok {
				if err := p.Set(subjectField, code); err != nil {
					return nil, &MergeError{Key: row.Key, Line: row.Line, Column: subjectField, Err: err}
				}
			}
		}
	default:
		code = row.Key
		if v, ok := p.Get(subjectField); ok && v != "" {
			code = v
		}
		if err := p.Set(SubjectCodePath, code); err != nil {
			return nil, &MergeError{Key: row.Key, Line: row.Line, Column: SubjectCodePath, Err: err}
		}
	}

	if err := p.Validate(); err != nil {
		return nil, &MergeError{Key: row.Key, Line: row.Line, Err: err}
	}
	return p, nil
}

// MergeAll merges every row of t. Rows that fail produce a *MergeError and
// no profile; the remaining subjects are unaffected.
func (m Merger) MergeAll(base *profile.Profile, t *Table) (map[string]*profile.Profile, []error) {
	out := make(map[string]*profile.Profile)
	var errs []error

	if !t.HasKey {
		for _, row := range t.Rows {
			errs = append(errs, &MergeError{Line: row.Line, Column: t.KeyColumn, Err: ErrMissingKeyColumn})
		}
		return out, errs
	}

	counts := make(map[string]int)
	for _, row := range t.Rows {
		counts[row.Key]++
	}

	for _, row := range t.Rows {
		switch {
		case row.Key == "":
			errs = append(errs, &MergeError{Line: row.Line, Column: t.KeyColumn, Err: ErrEmptyKey})
			continue
		case counts[row.Key] > 1:
			errs = append(errs, &MergeError{Key: row.Key, Line: row.Line, Column: t.KeyColumn, Err: ErrDuplicateKey})
			continue
		}
		p, err := m.Merge(base, row, t.Columns)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[row.Key] = p
	}
	return out, errs
}

// SubjectCode returns the destination subject identifier of a merged
// profile.
func SubjectCode(p *profile.Profile) (string, bool) {
	return p.Get(SubjectCodePath)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
