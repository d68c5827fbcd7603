// Package xmldoc de-identifies XML files. Fields are addressed with path
// queries evaluated against the element tree.
package xmldoc

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"deid-export/internal/document"
	"deid-export/internal/profile"
)

// XMLPatterns are the default file-filter globs.
var XMLPatterns = []string{"*.xml", "*.XML"}

// Document is a parsed XML file.
type Document struct {
	FilePath string
	tree     *etree.Document
}

// Parse reads data into an element tree.
func Parse(name string, data []byte) (*Document, error) {
	tree := etree.NewDocument()
	tree.ReadSettings.PreserveCData = true
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("could not parse XML: %w", err)
	}
	if tree.Root() == nil {
		return nil, fmt.Errorf("could not parse XML: no root element")
	}
	return &Document{FilePath: name, tree: tree}, nil
}

// Query evaluates a path query and returns one slot per matched element,
// or per matched attribute for queries ending in "/@name".
func (d *Document) Query(raw string) ([]document.Slot, error) {
	q, err := document.ParseQuery(raw)
	if err != nil {
		return nil, err
	}

	var slots []document.Slot
	for _, el := range d.tree.FindElementsPath(q.Path) {
		if q.Attr == "" {
			slots = append(slots, &textNode{el: el})
			continue
		}
		if el.SelectAttr(q.Attr) != nil {
			slots = append(slots, &attrSlot{el: el, key: q.Attr})
		}
	}
	return slots, nil
}

// Root exposes leaf elements by tag name, which is what regex rules match
// against. A tag occurring more than once is a repeating group.
func (d *Document) Root() document.Node {
	return &rootNode{tree: d.tree}
}

func (d *Document) Encode() ([]byte, error) {
	out, err := d.tree.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("could not encode XML: %w", err)
	}
	return out, nil
}

type rootNode struct {
	tree *etree.Document
}

func (n *rootNode) Name() string              { return "" }
func (n *rootNode) Path() string              { return "/" }
func (n *rootNode) Kind() document.ValueKind  { return document.KindString }
func (n *rootNode) Values() ([]string, error) { return nil, document.ErrNotScalar }
func (n *rootNode) SetValues([]string) error  { return document.ErrNotScalar }
func (n *rootNode) Remove() error             { return document.ErrNotScalar }
func (n *rootNode) Items() []document.Node    { return nil }

func (n *rootNode) groups() ([]string, map[string][]document.Node) {
	var order []string
	byName := make(map[string][]document.Node)
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		children := el.ChildElements()
		if len(children) == 0 {
			if _, seen := byName[el.Tag]; !seen {
				order = append(order, el.Tag)
			}
			byName[el.Tag] = append(byName[el.Tag], &textNode{el: el})
			return
		}
		for _, c := range children {
			walk(c)
		}
	}
	if root := n.tree.Root(); root != nil {
		walk(root)
	}
	return order, byName
}

func (n *rootNode) Child(seg document.Segment) (document.Node, bool) {
	if seg.Kind != document.SegmentName {
		return nil, false
	}
	_, byName := n.groups()
	members := byName[seg.Name]
	if len(members) == 0 {
		return nil, false
	}
	return document.NewGroup(seg.Name, "//"+seg.Name, members), true
}

func (n *rootNode) Fields() []document.Node {
	order, byName := n.groups()
	out := make([]document.Node, len(order))
	for i, name := range order {
		out[i] = document.NewGroup(name, "//"+name, byName[name])
	}
	return out
}

// textNode is the character data of one element.
type textNode struct {
	el *etree.Element
}

func (n *textNode) Name() string                                 { return n.el.Tag }
func (n *textNode) Path() string                                 { return n.el.GetPath() }
func (n *textNode) Kind() document.ValueKind                     { return document.KindString }
func (n *textNode) Child(document.Segment) (document.Node, bool) { return nil, false }
func (n *textNode) Items() []document.Node                       { return nil }
func (n *textNode) Fields() []document.Node                      { return nil }

func (n *textNode) Values() ([]string, error) {
	return []string{strings.TrimSpace(n.el.Text())}, nil
}

func (n *textNode) SetValues(values []string) error {
	n.el.SetText(strings.Join(values, " "))
	return nil
}

func (n *textNode) Remove() error {
	if parent := n.el.Parent(); parent != nil {
		parent.RemoveChild(n.el)
	}
	return nil
}

type attrSlot struct {
	el  *etree.Element
	key string
}

func (s *attrSlot) Path() string             { return s.el.GetPath() + "/@" + s.key }
func (s *attrSlot) Kind() document.ValueKind { return document.KindString }

func (s *attrSlot) Values() ([]string, error) {
	if a := s.el.SelectAttr(s.key); a != nil {
		return []string{a.Value}, nil
	}
	return nil, nil
}

func (s *attrSlot) SetValues(values []string) error {
	s.el.CreateAttr(s.key, strings.Join(values, " "))
	return nil
}

func (s *attrSlot) Remove() error {
	s.el.RemoveAttr(s.key)
	return nil
}

// Adapter opens XML files as documents.
type Adapter struct{}

func (Adapter) Kind() profile.Kind      { return profile.KindXML }
func (Adapter) DefaultFilter() []string { return XMLPatterns }

func (Adapter) Open(name string, data []byte) (document.Document, error) {
	return Parse(name, data)
}
