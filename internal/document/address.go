package document

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind identifies how an address segment selects its target.
type SegmentKind int

const (
	SegmentName SegmentKind = iota
	SegmentTag
	SegmentIndex
	SegmentWildcard
)

// Segment is one dot-separated component of an address.
type Segment struct {
	Kind  SegmentKind
	Name  string
	Tag   uint32
	Index int
}

// String renders the segment the way it would appear in a profile.
func (s Segment) String() string {
	switch s.Kind {
	case SegmentTag:
		if s.Tag <= 0xFFFF && strings.HasPrefix(strings.ToLower(s.Name), "0x") {
			return fmt.Sprintf("0x%04X", s.Tag)
		}
		return fmt.Sprintf("%08X", s.Tag)
	case SegmentIndex:
		return strconv.Itoa(s.Index)
	case SegmentWildcard:
		return "*"
	default:
		return s.Name
	}
}

// Address is a parsed field address.
type Address struct {
	Raw      string
	Segments []Segment
}

// HasWildcard reports whether any segment fans out over every present index.
func (a Address) HasWildcard() bool {
	for _, s := range a.Segments {
		if s.Kind == SegmentWildcard {
			return true
		}
	}
	return false
}

func (a Address) String() string {
	return a.Raw
}

// ParseAddress parses a dotted field address.
//
// Each segment is a symbolic name, a tag (8 hex digits, "gggg,eeee",
// "(gggg,eeee)" or a 16-bit "0xNNNN"), a non-negative index, or "*".
// Index and wildcard segments must follow a name or tag segment.
func ParseAddress(raw string) (Address, error) {
	addr := Address{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return addr, fmt.Errorf("empty address")
	}

	for i, part := range splitAddress(raw) {
		seg, err := parseSegment(part)
		if err != nil {
			return addr, fmt.Errorf("address %q: %w", raw, err)
		}
		if seg.Kind == SegmentIndex || seg.Kind == SegmentWildcard {
			if i == 0 {
				return addr, fmt.Errorf("address %q: %q cannot start an address", raw, part)
			}
			prev := addr.Segments[i-1]
			if prev.Kind != SegmentName && prev.Kind != SegmentTag {
				return addr, fmt.Errorf("address %q: %q must follow a field segment", raw, part)
			}
		}
		addr.Segments = append(addr.Segments, seg)
	}

	return addr, nil
}

// splitAddress splits on dots outside parentheses.
func splitAddress(raw string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range raw {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case '.':
			if depth == 0 {
				parts = append(parts, raw[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, raw[start:])
}

func parseSegment(part string) (Segment, error) {
	part = strings.TrimSpace(part)
	if part == "" {
		return Segment{}, fmt.Errorf("empty segment")
	}
	if part == "*" {
		return Segment{Kind: SegmentWildcard}, nil
	}

	if t, ok := parseTag(part); ok {
		return Segment{Kind: SegmentTag, Name: part, Tag: t}, nil
	}

	if isDigits(part) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Segment{}, fmt.Errorf("invalid index %q", part)
		}
		return Segment{Kind: SegmentIndex, Index: n}, nil
	}

	if strings.ContainsAny(part, "()*,") {
		return Segment{}, fmt.Errorf("invalid segment %q", part)
	}
	return Segment{Kind: SegmentName, Name: part}, nil
}

func parseTag(part string) (uint32, bool) {
	s := part
	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return 0, false
		}
		s = s[1 : len(s)-1]
	}

	if group, elem, found := strings.Cut(s, ","); found {
		g, gok := parseHex(strings.TrimSpace(group), 4)
		e, eok := parseHex(strings.TrimSpace(elem), 4)
		if !gok || !eok {
			return 0, false
		}
		return g<<16 | e, true
	}

	if s != part {
		return 0, false
	}

	if len(s) == 6 && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return parseHex(s[2:], 4)
	}
	if len(s) == 8 {
		return parseHex(s, 8)
	}
	return 0, false
}

func parseHex(s string, width int) (uint32, bool) {
	if len(s) != width {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
