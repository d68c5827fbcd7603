package dicom

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"deid-export/internal/document"
	"deid-export/internal/profile"
)

func elementValues(e *dicom.Element) ([]string, error) {
	if e.Value == nil {
		return nil, nil
	}

	switch v := e.Value.GetValue().(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out, nil
	case []float64:
		out := make([]string, len(v))
		for i, f := range v {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return out, nil
	case []byte:
		return []string{string(v)}, nil
	}
	return nil, document.ErrNotScalar
}

// setElementValues replaces an element's value, keeping its value type.
func setElementValues(e *dicom.Element, values []string) error {
	if e.Value == nil {
		return fmt.Errorf("element %s has no value", keyword(e.Tag))
	}

	var data any
	length := -1
	switch e.Value.ValueType() {
	case dicom.Strings:
		data = values
		length = len(strings.Join(values, "\\"))
		if length%2 == 1 {
			length++
		}
	case dicom.Ints:
		ints := make([]int, len(values))
		for i, s := range values {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("%q is not an integer", s)
			}
			ints[i] = n
		}
		data = ints
	case dicom.Floats:
		floats := make([]float64, len(values))
		for i, s := range values {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return fmt.Errorf("%q is not a number", s)
			}
			floats[i] = f
		}
		data = floats
	case dicom.Bytes:
		b := []byte(strings.Join(values, ""))
		data = b
		length = len(b)
	default:
		return document.ErrNotScalar
	}

	v, err := dicom.NewValue(data)
	if err != nil {
		return fmt.Errorf("could not create value: %w", err)
	}
	e.Value = v
	if length >= 0 {
		e.ValueLength = uint32(length)
	}
	return nil
}

// Scrub applies dataset-wide options that run before field rules.
func (d *Document) Scrub(fp *profile.FormatProfile) error {
	if fp.RemovePrivateTags {
		d.removePrivate(d.Data.Elements)
	}
	return nil
}

// removePrivate marks every element in an odd group, at any depth.
func (d *Document) removePrivate(elems []*dicom.Element) {
	for _, e := range elems {
		if e.Tag.Group%2 == 1 {
			d.removed[e] = true
			continue
		}
		if e.Value == nil || e.Value.ValueType() != dicom.Sequences {
			continue
		}
		items, _ := e.Value.GetValue().([]*dicom.SequenceItemValue)
		for _, item := range items {
			children, _ := item.GetValue().([]*dicom.Element)
			d.removePrivate(children)
		}
	}
}

// Derive computes fields that depend on the outcome of the field rules.
func (d *Document) Derive(fp *profile.FormatProfile) error {
	if !fp.PatientAgeFromBirthdate {
		return nil
	}
	age, ok := patientAge(d.birthDate, d.studyDate, fp.PatientAgeUnits)
	if !ok {
		return nil
	}

	if e, err := d.Data.FindElementByTag(tag.PatientAge); err == nil && !d.removed[e] {
		return setElementValues(e, []string{age})
	}

	e, err := dicom.NewElement(tag.PatientAge, []string{age})
	if err != nil {
		return fmt.Errorf("could not create PatientAge: %w", err)
	}
	d.Data.Elements = insertSorted(d.Data.Elements, e)
	return nil
}

func insertSorted(elems []*dicom.Element, e *dicom.Element) []*dicom.Element {
	i := len(elems)
	for j, cur := range elems {
		if tagLess(e.Tag, cur.Tag) {
			i = j
			break
		}
	}
	elems = append(elems, nil)
	copy(elems[i+1:], elems[i:])
	elems[i] = e
	return elems
}

func tagLess(a, b tag.Tag) bool {
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Element < b.Element
}

// Encode serializes the dataset with all recorded removals applied.
func (d *Document) Encode() ([]byte, error) {
	elems, err := d.prune(d.Data.Elements)
	if err != nil {
		return nil, err
	}
	d.Data.Elements = elems
	d.removed = make(map[*dicom.Element]bool)
	d.removedItems = make(map[*dicom.SequenceItemValue]bool)

	var buf bytes.Buffer
	// Relaxed verification: many real-world files do not strictly follow
	// their declared VRs.
	if err := dicom.Write(&buf, d.Data,
		dicom.SkipVRVerification(),
		dicom.SkipValueTypeVerification(),
		dicom.DefaultMissingTransferSyntax(),
	); err != nil {
		return nil, fmt.Errorf("could not write DICOM: %w", err)
	}
	return buf.Bytes(), nil
}

// prune drops removed elements and items, rebuilding every sequence so its
// length is recomputed on write.
func (d *Document) prune(elems []*dicom.Element) ([]*dicom.Element, error) {
	out := make([]*dicom.Element, 0, len(elems))
	for _, e := range elems {
		if d.removed[e] {
			continue
		}
		if e.Value != nil && e.Value.ValueType() == dicom.Sequences {
			items, _ := e.Value.GetValue().([]*dicom.SequenceItemValue)
			rows := make([][]*dicom.Element, 0, len(items))
			for _, item := range items {
				if d.removedItems[item] {
					continue
				}
				children, _ := item.GetValue().([]*dicom.Element)
				kept, err := d.prune(children)
				if err != nil {
					return nil, err
				}
				rows = append(rows, kept)
			}
			v, err := dicom.NewValue(rows)
			if err != nil {
				return nil, fmt.Errorf("could not rebuild %s: %w", keyword(e.Tag), err)
			}
			e.Value = v
			e.ValueLength = tag.VLUndefinedLength
		}
		out = append(out, e)
	}
	return out, nil
}
