package document

import (
	"regexp"
)

// Locate resolves address against doc, returning every matching slot in
// document order.
//
// A non-wildcard address that matches nothing returns a *ResolutionError
// together with zero slots; callers decide whether that is fatal. An address
// containing a wildcard never reports a miss.
func Locate(doc Document, address string) ([]Slot, error) {
	if q, ok := doc.(Querier); ok {
		slots, err := q.Query(address)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			return nil, &ResolutionError{Address: address}
		}
		return slots, nil
	}

	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	return LocateAddress(doc.Root(), addr)
}

// LocateAddress walks a parsed address down from root.
func LocateAddress(root Node, addr Address) ([]Slot, error) {
	current := []Node{root}

	for _, seg := range addr.Segments {
		var next []Node
		for _, n := range current {
			switch seg.Kind {
			case SegmentName, SegmentTag:
				if child, ok := n.Child(seg); ok {
					next = append(next, child)
				}
			case SegmentIndex:
				items := n.Items()
				if seg.Index < len(items) {
					next = append(next, items[seg.Index])
				}
			case SegmentWildcard:
				next = append(next, n.Items()...)
			}
		}

		if len(next) == 0 {
			if addr.HasWildcard() {
				return nil, nil
			}
			return nil, &ResolutionError{Address: addr.Raw, Segment: seg.String()}
		}
		current = next
	}

	return flatten(current), nil
}

// Match returns the top-level fields whose names match re.
func Match(doc Document, re *regexp.Regexp) []Slot {
	var matched []Node
	for _, f := range doc.Root().Fields() {
		if re.MatchString(f.Name()) {
			matched = append(matched, f)
		}
	}
	return flatten(matched)
}
