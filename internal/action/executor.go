// Package action applies field-rule actions to resolved document slots.
package action

import (
	"fmt"
	"strconv"
	"strings"

	"deid-export/internal/document"
	"deid-export/internal/identity"
	"deid-export/internal/profile"
)

// Error reports an action that could not be applied to a slot.
type Error struct {
	Address string
	Action  profile.ActionType
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Action, e.Address, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Executor applies actions, deriving hashes through a shared HashState.
type Executor struct {
	hashes *identity.HashState
}

// New creates an executor bound to the run's hash state.
func New(hashes *identity.HashState) *Executor {
	return &Executor{hashes: hashes}
}

// Apply runs rule's action against slot. Options such as the date increment
// and the UID prefix policy come from fp. Disabled rules and keep are no-ops.
func (e *Executor) Apply(slot document.Slot, rule *profile.FieldRule, fp *profile.FormatProfile) error {
	if rule.Disabled || rule.Action == profile.ActionKeep {
		return nil
	}

	if rule.Action == profile.ActionRemove {
		if err := slot.Remove(); err != nil {
			return &Error{Address: slot.Path(), Action: rule.Action, Err: err}
		}
		return nil
	}

	if rule.Action == profile.ActionReplaceWith {
		v, err := coerce(slot.Kind(), rule.Value)
		if err == nil {
			err = slot.SetValues([]string{v})
		}
		if err != nil {
			return &Error{Address: slot.Path(), Action: rule.Action, Err: err}
		}
		return nil
	}

	values, err := slot.Values()
	if err != nil {
		return &Error{Address: slot.Path(), Action: rule.Action, Err: err}
	}
	if len(values) == 0 {
		return nil
	}

	out := make([]string, len(values))
	for i, v := range values {
		out[i], err = e.transform(slot, rule.Action, v, fp)
		if err != nil {
			return &Error{Address: slot.Path(), Action: rule.Action, Err: err}
		}
	}

	if err := slot.SetValues(out); err != nil {
		return &Error{Address: slot.Path(), Action: rule.Action, Err: err}
	}
	return nil
}

func (e *Executor) transform(slot document.Slot, a profile.ActionType, value string, fp *profile.FormatProfile) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value, nil
	}

	switch a {
	case profile.ActionIncrementDate:
		return shiftDate(trimmed, fp.DateIncrement)
	case profile.ActionIncrementDateTime:
		return shiftDateTime(trimmed, fp.DateIncrement)
	case profile.ActionHash:
		switch k := slot.Kind(); k {
		case document.KindUID:
			return "", fmt.Errorf("a hex digest is not a valid uid, use hashuid")
		case document.KindDate, document.KindDateTime, document.KindTime, document.KindNumeric:
			return "", fmt.Errorf("a hex digest is not a valid %s value", k)
		}
		return e.hashes.Hash(trimmed, document.MaxLength(slot)), nil
	case profile.ActionHashUID:
		return e.hashes.HashUID(trimmed, fp.UIDPolicy())
	default:
		return "", fmt.Errorf("unsupported action %q", a)
	}
}

// coerce checks a replacement literal against the slot's scalar kind.
func coerce(kind document.ValueKind, value string) (string, error) {
	if value == "" {
		return value, nil
	}
	switch kind {
	case document.KindNumeric:
		if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
			return "", fmt.Errorf("replacement %q is not numeric", value)
		}
		return strings.TrimSpace(value), nil
	case document.KindDate:
		if _, err := shiftDate(strings.TrimSpace(value), 0); err != nil {
			return "", fmt.Errorf("replacement %q is not a date", value)
		}
		return strings.TrimSpace(value), nil
	case document.KindUID:
		if _, err := identity.SplitUID(value); err != nil {
			return "", fmt.Errorf("replacement %q: %w", value, err)
		}
	}
	return value, nil
}
