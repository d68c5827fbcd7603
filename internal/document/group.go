package document

import "fmt"

// Group is a repeating field: every occurrence of one name in a flat
// namespace (all IFD entries for a tag, all PNG chunks of a type). Indexing
// selects one occurrence; addressing the group itself selects all of them.
type Group struct {
	name    string
	path    string
	members []Node
}

// NewGroup creates a group over members, which must be non-empty.
func NewGroup(name, path string, members []Node) *Group {
	return &Group{name: name, path: path, members: members}
}

func (g *Group) Name() string { return g.name }
func (g *Group) Path() string { return g.path }

func (g *Group) Kind() ValueKind {
	if len(g.members) == 0 {
		return KindString
	}
	return g.members[0].Kind()
}

// Values returns the values of every member in order.
func (g *Group) Values() ([]string, error) {
	var out []string
	for _, m := range g.members {
		v, err := m.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, v...)
	}
	return out, nil
}

// SetValues assigns one value per member, or one value to all members.
func (g *Group) SetValues(values []string) error {
	switch len(values) {
	case len(g.members):
		for i, m := range g.members {
			if err := m.SetValues(values[i : i+1]); err != nil {
				return err
			}
		}
	case 1:
		for _, m := range g.members {
			if err := m.SetValues(values); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: %d values for %d occurrences", g.path, len(values), len(g.members))
	}
	return nil
}

func (g *Group) Remove() error {
	for _, m := range g.members {
		if err := m.Remove(); err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) Child(seg Segment) (Node, bool) {
	if len(g.members) == 1 {
		return g.members[0].Child(seg)
	}
	return nil, false
}

func (g *Group) Items() []Node  { return g.members }
func (g *Group) Fields() []Node { return nil }

// Members returns the occurrences in document order.
func (g *Group) Members() []Node { return g.members }

func flatten(nodes []Node) []Slot {
	var slots []Slot
	for _, n := range nodes {
		if g, ok := n.(*Group); ok {
			for _, m := range g.members {
				slots = append(slots, m)
			}
			continue
		}
		slots = append(slots, n)
	}
	return slots
}

// TextSlot is a standalone in-memory slot, used for values that live outside
// any document such as filename fragments.
type TextSlot struct {
	Name    string
	Value   string
	Type    ValueKind
	Limit   int
	Removed bool
}

func (t *TextSlot) Path() string    { return t.Name }
func (t *TextSlot) Kind() ValueKind { return t.Type }
func (t *TextSlot) MaxLength() int  { return t.Limit }

func (t *TextSlot) Values() ([]string, error) {
	if t.Removed {
		return nil, nil
	}
	return []string{t.Value}, nil
}

func (t *TextSlot) SetValues(values []string) error {
	t.Removed = false
	t.Value = ""
	if len(values) > 0 {
		t.Value = values[0]
	}
	return nil
}

func (t *TextSlot) Remove() error {
	t.Removed = true
	t.Value = ""
	return nil
}
