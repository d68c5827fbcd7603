package action

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deid-export/internal/document"
	"deid-export/internal/identity"
	"deid-export/internal/profile"
)

func loadFormat(t *testing.T, yaml string) *profile.FormatProfile {
	t.Helper()
	p, err := profile.Load([]byte(yaml))
	require.NoError(t, err)
	fp := p.Format(profile.KindDICOM)
	require.NotNil(t, fp)
	return fp
}

func TestShiftDate(t *testing.T) {
	tests := []struct {
		in   string
		days int
		want string
	}{
		{"20240115", 10, "20240125"},
		{"20240225", 5, "20240301"},
		{"2024-01-15", -15, "2023-12-31"},
		{"2024:01:15", 1, "2024:01:16"},
		{"2024/12/31", 1, "2025/01/01"},
		{"2024.03.01", -1, "2024.02.29"},
	}
	for _, tt := range tests {
		got, err := shiftDate(tt.in, tt.days)
		if err != nil {
			t.Errorf("shiftDate(%q, %d) error: %v", tt.in, tt.days, err)
			continue
		}
		if got != tt.want {
			t.Errorf("shiftDate(%q, %d) = %q, want %q", tt.in, tt.days, got, tt.want)
		}
	}

	for _, bad := range []string{"yesterday", "2024-01-15T10:00", "2024-13-01", "2024-01/15"} {
		if _, err := shiftDate(bad, 1); err == nil {
			t.Errorf("shiftDate(%q) succeeded, want error", bad)
		}
	}
}

func TestShiftDateTime(t *testing.T) {
	tests := []struct {
		in   string
		days int
		want string
	}{
		{"20240115103000.123456+0100", 1, "20240116103000.123456+0100"},
		{"2024-01-31T23:59:59Z", 1, "2024-02-01T23:59:59Z"},
		{"2024:01:15 08:30:00", -15, "2023:12:31 08:30:00"},
		{"20240115", 2, "20240117"},
	}
	for _, tt := range tests {
		got, err := shiftDateTime(tt.in, tt.days)
		if err != nil {
			t.Errorf("shiftDateTime(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("shiftDateTime(%q, %d) = %q, want %q", tt.in, tt.days, got, tt.want)
		}
	}

	_, err := shiftDateTime("10:30:00", 1)
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	fp := loadFormat(t, `
dicom:
  date-increment: 10
  fields:
    - name: PatientName
      remove: true
    - name: PatientID
      replace-with: SUBJ-001
    - name: StudyDate
      increment-date: true
    - name: AcquisitionDateTime
      increment-datetime: true
    - name: AccessionNumber
      hash: true
    - name: StudyInstanceUID
      hashuid: true
    - name: Modality
      keep: true
    - name: OtherPatientIDs
      hash: false
`)
	exec := New(identity.NewHashState("salt"))

	tests := []struct {
		rule  int
		slot  *document.TextSlot
		check func(t *testing.T, s *document.TextSlot)
	}{
		{0, &document.TextSlot{Value: "Doe^John"}, func(t *testing.T, s *document.TextSlot) {
			assert.True(t, s.Removed)
		}},
		{1, &document.TextSlot{Value: "12345"}, func(t *testing.T, s *document.TextSlot) {
			assert.Equal(t, "SUBJ-001", s.Value)
		}},
		{2, &document.TextSlot{Value: "20240115", Type: document.KindDate}, func(t *testing.T, s *document.TextSlot) {
			assert.Equal(t, "20240125", s.Value)
		}},
		{3, &document.TextSlot{Value: "20240115101500.5", Type: document.KindDateTime}, func(t *testing.T, s *document.TextSlot) {
			assert.Equal(t, "20240125101500.5", s.Value)
		}},
		{4, &document.TextSlot{Value: "ACC-42", Limit: 8}, func(t *testing.T, s *document.TextSlot) {
			assert.Len(t, s.Value, 8)
			assert.NotEqual(t, "ACC-42", s.Value)
		}},
		{5, &document.TextSlot{Value: "1.2.840.10008.1.2.3.4", Type: document.KindUID}, func(t *testing.T, s *document.TextSlot) {
			assert.True(t, strings.HasPrefix(s.Value, "1.2.840.10008."), s.Value)
			assert.NotEqual(t, "1.2.840.10008.1.2.3.4", s.Value)
		}},
		{6, &document.TextSlot{Value: "CT"}, func(t *testing.T, s *document.TextSlot) {
			assert.Equal(t, "CT", s.Value)
		}},
		{7, &document.TextSlot{Value: "OTHER"}, func(t *testing.T, s *document.TextSlot) {
			assert.Equal(t, "OTHER", s.Value, "disabled rules leave the value alone")
		}},
	}

	for _, tt := range tests {
		rule := &fp.Fields[tt.rule]
		t.Run(rule.Address(), func(t *testing.T) {
			require.NoError(t, exec.Apply(tt.slot, rule, fp))
			tt.check(t, tt.slot)
		})
	}
}

func TestApplyHashRejectsTypedValues(t *testing.T) {
	fp := loadFormat(t, "dicom:\n  fields:\n    - name: StudyInstanceUID\n      hash: true\n")
	exec := New(identity.NewHashState("salt"))
	rule := &fp.Fields[0]

	tests := []struct {
		slot *document.TextSlot
		want string
	}{
		{&document.TextSlot{Name: "uid", Value: "1.2.840.10008.1.2.3.4", Type: document.KindUID}, "use hashuid"},
		{&document.TextSlot{Name: "date", Value: "20240115", Type: document.KindDate}, "date"},
		{&document.TextSlot{Name: "datetime", Value: "20240115101500", Type: document.KindDateTime}, "datetime"},
		{&document.TextSlot{Name: "numeric", Value: "42", Type: document.KindNumeric}, "numeric"},
	}
	for _, tt := range tests {
		t.Run(tt.slot.Type.String(), func(t *testing.T) {
			before := tt.slot.Value
			err := exec.Apply(tt.slot, rule, fp)
			var actionErr *Error
			require.ErrorAs(t, err, &actionErr)
			assert.Equal(t, profile.ActionHash, actionErr.Action)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, before, tt.slot.Value, "a rejected hash leaves the value alone")
		})
	}
}

func TestApplySharedHashes(t *testing.T) {
	fp := loadFormat(t, "dicom:\n  fields:\n    - name: PatientID\n      hash: true\n")
	exec := New(identity.NewHashState("salt"))

	a := &document.TextSlot{Value: "P-1"}
	b := &document.TextSlot{Value: "P-1"}
	require.NoError(t, exec.Apply(a, &fp.Fields[0], fp))
	require.NoError(t, exec.Apply(b, &fp.Fields[0], fp))
	assert.Equal(t, a.Value, b.Value)
}

func TestApplyErrors(t *testing.T) {
	fp := loadFormat(t, `
dicom:
  fields:
    - name: StudyDate
      increment-date: true
    - name: Rows
      replace-with: many
    - name: SOPInstanceUID
      hashuid: true
`)
	exec := New(identity.NewHashState("salt"))

	tests := []struct {
		rule int
		slot *document.TextSlot
	}{
		{0, &document.TextSlot{Name: "StudyDate", Value: "not a date"}},
		{1, &document.TextSlot{Name: "Rows", Value: "512", Type: document.KindNumeric}},
		{2, &document.TextSlot{Name: "SOPInstanceUID", Value: "abc.def"}},
	}
	for _, tt := range tests {
		err := exec.Apply(tt.slot, &fp.Fields[tt.rule], fp)
		var ae *Error
		require.True(t, errors.As(err, &ae), "rule %d: %v", tt.rule, err)
		assert.Equal(t, tt.slot.Name, ae.Address)
		assert.Equal(t, fp.Fields[tt.rule].Action, ae.Action)
	}
}

func TestApplyEmptyValue(t *testing.T) {
	fp := loadFormat(t, "dicom:\n  fields:\n    - name: StudyDate\n      increment-date: true\n")
	exec := New(identity.NewHashState("salt"))

	s := &document.TextSlot{Value: ""}
	require.NoError(t, exec.Apply(s, &fp.Fields[0], fp))
	assert.Equal(t, "", s.Value)
}
