package identity

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const actionHash = "hash"

// derivedKey identifies one derivation: the original value under one action.
type derivedKey struct {
	value  string
	action string
}

// HashState maps original values to their derived replacements for the
// lifetime of one run. The same value under the same action always yields the
// same result, across fields, files and workers, so identifiers shared
// between files stay linked after de-identification.
//
// A HashState is never persisted; discard it when the run ends.
type HashState struct {
	mu      sync.Mutex
	salt    string
	derived map[derivedKey]string
}

// NewHashState creates a hash state. An empty salt is replaced by a random
// per-run salt.
func NewHashState(salt string) *HashState {
	if salt == "" {
		salt = uuid.NewString()
	}
	return &HashState{
		salt:    salt,
		derived: make(map[derivedKey]string),
	}
}

// derive returns the cached result for (value, action) or computes it under
// the lock, so concurrent callers never compute diverging results.
func (h *HashState) derive(value, action string, compute func(sum [32]byte) (string, error)) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := derivedKey{value: value, action: action}
	if v, ok := h.derived[k]; ok {
		return v, nil
	}

	v, err := compute(digest(h.salt, action, value))
	if err != nil {
		return "", err
	}
	h.derived[k] = v
	return v, nil
}

// Len returns the number of distinct derivations made so far.
func (h *HashState) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.derived)
}

// Hash returns the deterministic one-way digest of value, cut to limit
// characters (DefaultHashLength when limit is 0).
func (h *HashState) Hash(value string, limit int) string {
	full, _ := h.derive(value, actionHash, func(sum [32]byte) (string, error) {
		return hexDigest(sum), nil
	})
	return Truncate(full, limit)
}

// HashUID derives a replacement UID under policy. Preserved prefix
// components are copied (or replaced by the policy root); the remaining
// components are derived from the digest with the same lengths as the
// originals, without leading zeros, and the result never exceeds
// MaxUIDLength.
func (h *HashState) HashUID(uid string, policy UIDPolicy) (string, error) {
	parts, err := SplitUID(uid)
	if err != nil {
		return "", err
	}

	return h.derive(strings.Join(parts, "."), policy.key(), func(sum [32]byte) (string, error) {
		n := policy.PrefixFields
		if n > len(parts) {
			n = len(parts)
		}

		prefix := parts[:n]
		if policy.Root != "" {
			prefix, err = SplitUID(policy.Root)
			if err != nil {
				return "", err
			}
		}

		rest := parts[n:]
		if len(rest) == 0 {
			rest = []string{"1000000000"}
		}

		digits := newDigitStream(sum)
		out := append([]string(nil), prefix...)
		for _, original := range rest {
			c := digits.take(len(original))
			if len(c) > 1 && c[0] == '0' {
				c = "1" + c[1:]
			}
			out = append(out, c)
		}
		return fitUID(out, len(prefix)), nil
	})
}

// fitUID joins components, trimming derived components from the end until
// the UID fits MaxUIDLength. Prefix components are never trimmed.
func fitUID(components []string, keep int) string {
	for {
		uid := strings.Join(components, ".")
		excess := len(uid) - MaxUIDLength
		if excess <= 0 {
			return uid
		}

		last := len(components) - 1
		switch {
		case len(components[last]) > excess:
			components[last] = components[last][:len(components[last])-excess]
		case last > keep:
			components = components[:last]
		default:
			return strings.TrimRight(uid[:MaxUIDLength], ".")
		}
	}
}
