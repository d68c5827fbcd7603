package identity

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	h := NewHashState("test-salt")

	a := h.Hash("PATIENT-001", 0)
	b := h.Hash("PATIENT-001", 0)
	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultHashLength)
	assert.NotEqual(t, a, h.Hash("PATIENT-002", 0))

	short := h.Hash("PATIENT-001", 8)
	assert.Equal(t, a[:8], short, "truncation keeps the prefix of the full digest")
}

func TestHashDependsOnSalt(t *testing.T) {
	a := NewHashState("salt-a").Hash("PATIENT-001", 0)
	b := NewHashState("salt-b").Hash("PATIENT-001", 0)
	assert.NotEqual(t, a, b)

	// Two runs with the same explicit salt agree.
	assert.Equal(t, a, NewHashState("salt-a").Hash("PATIENT-001", 0))
}

func TestHashRandomSalt(t *testing.T) {
	a := NewHashState("").Hash("PATIENT-001", 0)
	b := NewHashState("").Hash("PATIENT-001", 0)
	assert.NotEqual(t, a, b)
}

func TestHashConcurrent(t *testing.T) {
	h := NewHashState("salt")
	const workers = 32

	results := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.Hash("shared", 0)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, 1, h.Len())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		value string
		limit int
		want  string
	}{
		{"0123456789ABCDEF0123", 0, "0123456789ABCDEF"},
		{"0123456789ABCDEF0123", 4, "0123"},
		{"0123456789ABCDEF0123", 64, "0123456789ABCDEF"},
		{"ABC", 8, "ABC"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.value, tt.limit); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.value, tt.limit, got, tt.want)
		}
	}
}

func TestHashUIDPreservesPrefix(t *testing.T) {
	h := NewHashState("salt")
	uid := "1.2.840.10008.5.1.4.1.1.2.12345"

	got, err := h.HashUID(uid, UIDPolicy{PrefixFields: 4})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "1.2.840.10008."), got)
	assert.NotEqual(t, uid, got)

	orig := strings.Split(uid, ".")
	parts := strings.Split(got, ".")
	require.Len(t, parts, len(orig))
	for i := 4; i < len(parts); i++ {
		assert.Len(t, parts[i], len(orig[i]), "component %d", i)
		if len(parts[i]) > 1 {
			assert.NotEqual(t, byte('0'), parts[i][0], "component %d has a leading zero", i)
		}
	}

	again, err := h.HashUID(uid, UIDPolicy{PrefixFields: 4})
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestHashUIDRoot(t *testing.T) {
	h := NewHashState("salt")
	got, err := h.HashUID("1.2.840.113619.2.55.3", UIDPolicy{PrefixFields: 3, Root: "2.25.999"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "2.25.999."), got)
}

func TestHashUIDLength(t *testing.T) {
	h := NewHashState("salt")
	uid := "1.2.3.4." + strings.Repeat("9", 30) + "." + strings.Repeat("8", 30)
	got, err := h.HashUID(uid, UIDPolicy{PrefixFields: 4})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), MaxUIDLength)
	assert.True(t, strings.HasPrefix(got, "1.2.3.4."))
	assert.False(t, strings.HasSuffix(got, "."))
}

func TestHashUIDRejectsNonNumeric(t *testing.T) {
	h := NewHashState("salt")
	_, err := h.HashUID("1.2.abc", UIDPolicy{PrefixFields: 1})
	assert.True(t, errors.Is(err, ErrInvalidUID))

	_, err = h.HashUID("1..2", UIDPolicy{PrefixFields: 1})
	assert.True(t, errors.Is(err, ErrInvalidUID))
}

func TestUIDPolicyValidate(t *testing.T) {
	assert.NoError(t, UIDPolicy{PrefixFields: 4}.Validate())
	assert.NoError(t, UIDPolicy{PrefixFields: 3, Root: "1.2.3"}.Validate())
	assert.Error(t, UIDPolicy{PrefixFields: 4, Root: "1.2.3"}.Validate())
	assert.Error(t, UIDPolicy{PrefixFields: 2, Root: "1.x"}.Validate())
	assert.Error(t, UIDPolicy{PrefixFields: -1}.Validate())
}

func TestHashAndHashUIDDoNotCollide(t *testing.T) {
	h := NewHashState("salt")
	h.Hash("1.2.3.4.5", 0)
	_, err := h.HashUID("1.2.3.4.5", UIDPolicy{PrefixFields: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())
}
