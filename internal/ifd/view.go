package ifd

import (
	"deid-export/internal/document"
)

// Root exposes the file's content entries, across every directory, as one
// flat keyword namespace. A keyword present in several directories resolves
// to a group over all occurrences. Layout entries (offsets, byte counts,
// directory pointers) are not addressable.
func (f *File) Root() document.Node {
	return &rootNode{f: f}
}

type rootNode struct {
	f *File
}

func (n *rootNode) Name() string              { return "" }
func (n *rootNode) Path() string              { return "" }
func (n *rootNode) Kind() document.ValueKind  { return document.KindString }
func (n *rootNode) Values() ([]string, error) { return nil, document.ErrNotScalar }
func (n *rootNode) SetValues([]string) error  { return document.ErrNotScalar }
func (n *rootNode) Remove() error             { return document.ErrNotScalar }
func (n *rootNode) Items() []document.Node    { return nil }

func (n *rootNode) entries() []*entryNode {
	var out []*entryNode
	n.f.Walk(func(d *IFD) {
		for _, e := range d.Entries {
			if Structural(e.Tag) {
				continue
			}
			out = append(out, &entryNode{f: n.f, dir: d, e: e, name: Keyword(d.Class, e.Tag)})
		}
	})
	return out
}

func (n *rootNode) Child(seg document.Segment) (document.Node, bool) {
	var members []document.Node
	name := ""
	for _, en := range n.entries() {
		match := false
		switch seg.Kind {
		case document.SegmentName:
			match = en.name == seg.Name
		case document.SegmentTag:
			match = seg.Tag <= 0xFFFF && uint32(en.e.Tag) == seg.Tag
		}
		if match {
			members = append(members, en)
			name = en.name
		}
	}
	if len(members) == 0 {
		return nil, false
	}
	return document.NewGroup(name, name, members), true
}

func (n *rootNode) Fields() []document.Node {
	var order []string
	groups := make(map[string][]document.Node)
	for _, en := range n.entries() {
		if _, seen := groups[en.name]; !seen {
			order = append(order, en.name)
		}
		groups[en.name] = append(groups[en.name], en)
	}

	out := make([]document.Node, len(order))
	for i, name := range order {
		out[i] = document.NewGroup(name, name, groups[name])
	}
	return out
}

type entryNode struct {
	f    *File
	dir  *IFD
	e    *Entry
	name string
}

func (n *entryNode) Name() string                                 { return n.name }
func (n *entryNode) Path() string                                 { return n.name }
func (n *entryNode) Child(document.Segment) (document.Node, bool) { return nil, false }
func (n *entryNode) Items() []document.Node                       { return nil }
func (n *entryNode) Fields() []document.Node                      { return nil }

func (n *entryNode) Kind() document.ValueKind {
	switch {
	case dateTimeTags[n.name]:
		return document.KindDateTime
	case n.name == "GPSDateStamp":
		return document.KindDate
	}
	switch n.e.Type {
	case TypeASCII, TypeByte, TypeUndefined:
		return document.KindString
	}
	return document.KindNumeric
}

func (n *entryNode) Values() ([]string, error) {
	return n.e.Strings(n.f.Order), nil
}

func (n *entryNode) SetValues(values []string) error {
	return n.e.SetStrings(n.f.Order, values)
}

func (n *entryNode) Remove() error {
	n.dir.Remove(n.e)
	return nil
}
