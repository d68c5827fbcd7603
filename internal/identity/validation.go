package identity

import (
	"errors"
	"fmt"
	"strings"
)

// MaxUIDLength is the longest UID the derived form may take.
const MaxUIDLength = 64

// ErrInvalidUID is returned when a value is not a dotted-numeric UID.
var ErrInvalidUID = errors.New("invalid UID")

// UIDPolicy controls which leading components of a UID survive hashuid.
//
// With Root empty the first PrefixFields components of the original UID are
// kept. With Root set they are replaced by Root, which must itself have
// exactly PrefixFields components.
type UIDPolicy struct {
	PrefixFields int
	Root         string
}

// Validate checks that a numeric root agrees with the prefix length.
func (p UIDPolicy) Validate() error {
	if p.PrefixFields < 0 {
		return fmt.Errorf("prefix field count %d is negative", p.PrefixFields)
	}
	if p.Root == "" {
		return nil
	}
	parts, err := SplitUID(p.Root)
	if err != nil {
		return fmt.Errorf("root %q: %w", p.Root, err)
	}
	if len(parts) != p.PrefixFields {
		return fmt.Errorf("root %q has %d components, uid-prefix-fields is %d",
			p.Root, len(parts), p.PrefixFields)
	}
	return nil
}

func (p UIDPolicy) key() string {
	if p.Root != "" {
		return "hashuid:root:" + p.Root
	}
	return fmt.Sprintf("hashuid:prefix:%d", p.PrefixFields)
}

// SplitUID splits a UID into components, checking each is numeric.
func SplitUID(uid string) ([]string, error) {
	uid = strings.TrimRight(strings.TrimSpace(uid), "\x00")
	if uid == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidUID)
	}
	parts := strings.Split(uid, ".")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty component in %q", ErrInvalidUID, uid)
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return nil, fmt.Errorf("%w: non-numeric component %q", ErrInvalidUID, part)
			}
		}
	}
	return parts, nil
}
