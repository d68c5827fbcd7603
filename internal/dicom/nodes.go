package dicom

import (
	"fmt"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"deid-export/internal/document"
)

// datasetNode is the root dataset or one sequence item.
type datasetNode struct {
	doc  *Document
	list func() []*dicom.Element
	item *dicom.SequenceItemValue
	path string
}

func (n *datasetNode) Name() string               { return n.path }
func (n *datasetNode) Path() string               { return n.path }
func (n *datasetNode) Kind() document.ValueKind   { return document.KindString }
func (n *datasetNode) Values() ([]string, error)  { return nil, document.ErrNotScalar }
func (n *datasetNode) SetValues(_ []string) error { return document.ErrNotScalar }
func (n *datasetNode) Items() []document.Node     { return nil }

func (n *datasetNode) Remove() error {
	if n.item == nil {
		return fmt.Errorf("cannot remove the dataset root")
	}
	n.doc.removedItems[n.item] = true
	return nil
}

func (n *datasetNode) Child(seg document.Segment) (document.Node, bool) {
	t, ok := resolveTag(seg)
	if !ok {
		return nil, false
	}
	for _, e := range n.list() {
		if e.Tag == t && !n.doc.removed[e] {
			return n.element(e), true
		}
	}
	return nil, false
}

func (n *datasetNode) Fields() []document.Node {
	var out []document.Node
	for _, e := range n.list() {
		if !n.doc.removed[e] {
			out = append(out, n.element(e))
		}
	}
	return out
}

func (n *datasetNode) element(e *dicom.Element) *elementNode {
	p := keyword(e.Tag)
	if n.path != "" {
		p = n.path + "." + p
	}
	return &elementNode{doc: n.doc, elem: e, path: p}
}

// elementNode is one data element.
type elementNode struct {
	doc  *Document
	elem *dicom.Element
	path string
}

func (n *elementNode) Name() string             { return keyword(n.elem.Tag) }
func (n *elementNode) Path() string             { return n.path }
func (n *elementNode) Kind() document.ValueKind { return vrKind(n.elem.RawValueRepresentation) }
func (n *elementNode) MaxLength() int           { return vrMaxLength(n.elem.RawValueRepresentation) }
func (n *elementNode) Fields() []document.Node  { return nil }

func (n *elementNode) Child(document.Segment) (document.Node, bool) {
	return nil, false
}

func (n *elementNode) Values() ([]string, error) {
	return elementValues(n.elem)
}

func (n *elementNode) SetValues(values []string) error {
	return setElementValues(n.elem, values)
}

func (n *elementNode) Remove() error {
	n.doc.removed[n.elem] = true
	return nil
}

// Items returns sequence items for SQ elements, and one node per value for
// multi-valued elements.
func (n *elementNode) Items() []document.Node {
	if n.elem.Value == nil {
		return nil
	}

	if n.elem.Value.ValueType() == dicom.Sequences {
		items, _ := n.elem.Value.GetValue().([]*dicom.SequenceItemValue)
		var out []document.Node
		for _, item := range items {
			if n.doc.removedItems[item] {
				continue
			}
			out = append(out, &datasetNode{
				doc:  n.doc,
				item: item,
				path: n.path + "." + strconv.Itoa(len(out)),
				list: func() []*dicom.Element {
					elems, _ := item.GetValue().([]*dicom.Element)
					return elems
				},
			})
		}
		return out
	}

	values, err := elementValues(n.elem)
	if err != nil {
		return nil
	}
	out := make([]document.Node, len(values))
	for i := range values {
		out[i] = &valueNode{el: n, index: i}
	}
	return out
}

// valueNode is one value of a multi-valued element.
type valueNode struct {
	el    *elementNode
	index int
}

func (n *valueNode) Name() string                                 { return n.el.Name() }
func (n *valueNode) Path() string                                 { return n.el.path + "." + strconv.Itoa(n.index) }
func (n *valueNode) Kind() document.ValueKind                     { return n.el.Kind() }
func (n *valueNode) MaxLength() int                               { return n.el.MaxLength() }
func (n *valueNode) Child(document.Segment) (document.Node, bool) { return nil, false }
func (n *valueNode) Items() []document.Node                       { return nil }
func (n *valueNode) Fields() []document.Node                      { return nil }

func (n *valueNode) Values() ([]string, error) {
	values, err := elementValues(n.el.elem)
	if err != nil {
		return nil, err
	}
	if n.index >= len(values) {
		return nil, nil
	}
	return values[n.index : n.index+1], nil
}

func (n *valueNode) SetValues(values []string) error {
	all, err := elementValues(n.el.elem)
	if err != nil {
		return err
	}
	if n.index >= len(all) {
		return fmt.Errorf("%s: value %d no longer present", n.el.path, n.index)
	}
	v := ""
	if len(values) > 0 {
		v = values[0]
	}
	all[n.index] = v
	return setElementValues(n.el.elem, all)
}

// Remove blanks the value; positions of the remaining values are kept.
func (n *valueNode) Remove() error {
	return n.SetValues([]string{""})
}

func resolveTag(seg document.Segment) (tag.Tag, bool) {
	switch seg.Kind {
	case document.SegmentName:
		info, err := tag.FindByName(seg.Name)
		if err != nil {
			return tag.Tag{}, false
		}
		return info.Tag, true
	case document.SegmentTag:
		return tag.Tag{Group: uint16(seg.Tag >> 16), Element: uint16(seg.Tag)}, true
	}
	return tag.Tag{}, false
}

// keyword returns the dictionary keyword for t, or its hex form.
func keyword(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil && info.Name != "" {
		return info.Name
	}
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

func vrKind(vr string) document.ValueKind {
	switch vr {
	case "DA":
		return document.KindDate
	case "DT":
		return document.KindDateTime
	case "TM":
		return document.KindTime
	case "UI":
		return document.KindUID
	case "IS", "DS", "US", "SS", "UL", "SL", "FL", "FD", "UV", "SV":
		return document.KindNumeric
	case "OB", "OW", "OF", "OD", "OL", "OV", "UN":
		return document.KindBinary
	}
	return document.KindString
}

var vrLengths = map[string]int{
	"AE": 16,
	"AS": 4,
	"CS": 16,
	"DA": 8,
	"DS": 16,
	"DT": 26,
	"IS": 12,
	"LO": 64,
	"LT": 10240,
	"PN": 64,
	"SH": 16,
	"ST": 1024,
	"TM": 14,
	"UI": 64,
}

func vrMaxLength(vr string) int {
	return vrLengths[vr]
}
