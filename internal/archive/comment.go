package archive

import (
	"deid-export/internal/document"
)

const commentField = "comment"

// comment exposes the archive comment as a document with a single field.
type comment struct {
	slot *document.TextSlot
}

func newComment(text string) *comment {
	return &comment{slot: &document.TextSlot{Name: commentField, Value: text}}
}

func (c *comment) text() string {
	if c.slot.Removed {
		return ""
	}
	return c.slot.Value
}

func (c *comment) Root() document.Node { return commentRoot{c} }

func (c *comment) Encode() ([]byte, error) { return []byte(c.text()), nil }

type commentRoot struct {
	c *comment
}

func (r commentRoot) Name() string              { return "" }
func (r commentRoot) Path() string              { return "" }
func (r commentRoot) Kind() document.ValueKind  { return document.KindString }
func (r commentRoot) Values() ([]string, error) { return nil, document.ErrNotScalar }
func (r commentRoot) SetValues([]string) error  { return document.ErrNotScalar }
func (r commentRoot) Remove() error             { return document.ErrNotScalar }
func (r commentRoot) Items() []document.Node    { return nil }

func (r commentRoot) Child(seg document.Segment) (document.Node, bool) {
	if seg.Kind != document.SegmentName || seg.Name != commentField {
		return nil, false
	}
	return commentNode{r.c.slot}, true
}

func (r commentRoot) Fields() []document.Node {
	return []document.Node{commentNode{r.c.slot}}
}

type commentNode struct {
	*document.TextSlot
}

func (n commentNode) Name() string                                 { return commentField }
func (n commentNode) Child(document.Segment) (document.Node, bool) { return nil, false }
func (n commentNode) Items() []document.Node                       { return nil }
func (n commentNode) Fields() []document.Node                      { return nil }
