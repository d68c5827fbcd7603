package profile

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"deid-export/internal/identity"
)

// Unmatched filename policies.
const (
	UnmatchedKeep = "keep"
	UnmatchedFail = "fail"
)

// DefaultUIDPrefixFields is the number of leading UID components kept by
// hashuid when the profile does not say otherwise.
const DefaultUIDPrefixFields = 4

// FormatProfile is the sub-profile for one file kind.
type FormatProfile struct {
	Kind Kind

	DateIncrement      int
	UIDPrefixFields    *int
	UIDNumericName     string
	Strict             bool
	UnmatchedFilenames string

	RemovePrivateTags       bool
	PatientAgeFromBirthdate bool
	PatientAgeUnits         string
	RemoveGPS               bool
	RemoveEXIF              bool
	RemovePrivateChunks     bool
	ValidateZipMembers      *bool
	HashSubdirectories      bool

	FileFilter Filter
	Fields     []FieldRule
	Filenames  []FilenameRule
}

// PrefixFields returns the effective uid-prefix-fields value.
func (fp *FormatProfile) PrefixFields() int {
	if fp.UIDPrefixFields == nil {
		return DefaultUIDPrefixFields
	}
	return *fp.UIDPrefixFields
}

// UIDPolicy returns the hashuid prefix policy.
func (fp *FormatProfile) UIDPolicy() identity.UIDPolicy {
	return identity.UIDPolicy{PrefixFields: fp.PrefixFields(), Root: fp.UIDNumericName}
}

// ValidatesZipMembers reports whether a failing archive member aborts the
// whole archive. Defaults to true.
func (fp *FormatProfile) ValidatesZipMembers() bool {
	return fp.ValidateZipMembers == nil || *fp.ValidateZipMembers
}

// FailsUnmatchedFilenames reports whether an unmatched filename is an error.
func (fp *FormatProfile) FailsUnmatchedFilenames() bool {
	return fp.UnmatchedFilenames == UnmatchedFail
}

// FieldsNamed returns pointers to every rule addressed exactly by name.
func (fp *FormatProfile) FieldsNamed(name string) []*FieldRule {
	var out []*FieldRule
	for i := range fp.Fields {
		if fp.Fields[i].Name == name {
			out = append(out, &fp.Fields[i])
		}
	}
	return out
}

// Filter is a set of filename globs. An explicitly configured filter, even
// an empty one, fully replaces the adapter defaults.
type Filter struct {
	Patterns []string
	Set      bool
}

// Matches reports whether name is selected by the filter, falling back to
// defaults when the filter was not configured.
func (f Filter) Matches(name string, defaults []string) bool {
	patterns := defaults
	if f.Set {
		patterns = f.Patterns
	}
	return MatchGlobs(patterns, name)
}

// MatchGlobs matches name, or its base name, against any of patterns.
func MatchGlobs(patterns []string, name string) bool {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	for _, p := range patterns {
		if ok, _ := path.Match(p, base); ok {
			return true
		}
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// option describes one scalar format option: the kinds accepting it and how
// to assign it from text.
type option struct {
	kinds []Kind
	set   func(fp *FormatProfile, raw string) error
	get   func(fp *FormatProfile) (any, bool)
}

func (o option) allows(k Kind) bool {
	for _, allowed := range o.kinds {
		if allowed == k {
			return true
		}
	}
	return false
}

var allKinds = []Kind{KindDICOM, KindJPG, KindTIFF, KindXML, KindPNG, KindZIP}

// optionOrder fixes the marshal order of options.
var optionOrder = []string{
	"date-increment",
	"uid-prefix-fields",
	"uid-numeric-name",
	"strict",
	"unmatched-filenames",
	"remove-private-tags",
	"patient-age-from-birthdate",
	"patient-age-units",
	"remove-gps",
	"remove-exif",
	"remove-private-chunks",
	"validate-zip-members",
	"hash-subdirectories",
}

var options = map[string]option{
	"date-increment": {
		kinds: allKinds,
		set:   func(fp *FormatProfile, raw string) error { return setInt(&fp.DateIncrement, raw) },
		get:   func(fp *FormatProfile) (any, bool) { return fp.DateIncrement, fp.DateIncrement != 0 },
	},
	"uid-prefix-fields": {
		kinds: []Kind{KindDICOM, KindXML},
		set: func(fp *FormatProfile, raw string) error {
			var n int
			if err := setInt(&n, raw); err != nil {
				return err
			}
			if n < 0 {
				return fmt.Errorf("must not be negative")
			}
			fp.UIDPrefixFields = &n
			return nil
		},
		get: func(fp *FormatProfile) (any, bool) {
			return fp.PrefixFields(), fp.UIDPrefixFields != nil
		},
	},
	"uid-numeric-name": {
		kinds: []Kind{KindDICOM, KindXML},
		set:   func(fp *FormatProfile, raw string) error { fp.UIDNumericName = raw; return nil },
		get:   func(fp *FormatProfile) (any, bool) { return fp.UIDNumericName, fp.UIDNumericName != "" },
	},
	"strict": {
		kinds: allKinds,
		set:   func(fp *FormatProfile, raw string) error { return setBool(&fp.Strict, raw) },
		get:   func(fp *FormatProfile) (any, bool) { return fp.Strict, fp.Strict },
	},
	"unmatched-filenames": {
		kinds: allKinds,
		set: func(fp *FormatProfile, raw string) error {
			switch raw {
			case UnmatchedKeep, UnmatchedFail:
				fp.UnmatchedFilenames = raw
				return nil
			}
			return fmt.Errorf("expected %q or %q, got %q", UnmatchedKeep, UnmatchedFail, raw)
		},
		get: func(fp *FormatProfile) (any, bool) { return fp.UnmatchedFilenames, fp.UnmatchedFilenames != "" },
	},
	"remove-private-tags": {
		kinds: []Kind{KindDICOM, KindTIFF},
		set:   func(fp *FormatProfile, raw string) error { return setBool(&fp.RemovePrivateTags, raw) },
		get:   func(fp *FormatProfile) (any, bool) { return fp.RemovePrivateTags, fp.RemovePrivateTags },
	},
	"patient-age-from-birthdate": {
		kinds: []Kind{KindDICOM},
		set:   func(fp *FormatProfile, raw string) error { return setBool(&fp.PatientAgeFromBirthdate, raw) },
		get:   func(fp *FormatProfile) (any, bool) { return fp.PatientAgeFromBirthdate, fp.PatientAgeFromBirthdate },
	},
	"patient-age-units": {
		kinds: []Kind{KindDICOM},
		set: func(fp *FormatProfile, raw string) error {
			switch raw {
			case "Y", "M", "D":
				fp.PatientAgeUnits = raw
				return nil
			}
			return fmt.Errorf("expected Y, M or D, got %q", raw)
		},
		get: func(fp *FormatProfile) (any, bool) { return fp.PatientAgeUnits, fp.PatientAgeUnits != "" },
	},
	"remove-gps": {
		kinds: []Kind{KindJPG, KindTIFF},
		set:   func(fp *FormatProfile, raw string) error { return setBool(&fp.RemoveGPS, raw) },
		get:   func(fp *FormatProfile) (any, bool) { return fp.RemoveGPS, fp.RemoveGPS },
	},
	"remove-exif": {
		kinds: []Kind{KindJPG},
		set:   func(fp *FormatProfile, raw string) error { return setBool(&fp.RemoveEXIF, raw) },
		get:   func(fp *FormatProfile) (any, bool) { return fp.RemoveEXIF, fp.RemoveEXIF },
	},
	"remove-private-chunks": {
		kinds: []Kind{KindPNG},
		set:   func(fp *FormatProfile, raw string) error { return setBool(&fp.RemovePrivateChunks, raw) },
		get:   func(fp *FormatProfile) (any, bool) { return fp.RemovePrivateChunks, fp.RemovePrivateChunks },
	},
	"validate-zip-members": {
		kinds: []Kind{KindZIP},
		set: func(fp *FormatProfile, raw string) error {
			var b bool
			if err := setBool(&b, raw); err != nil {
				return err
			}
			fp.ValidateZipMembers = &b
			return nil
		},
		get: func(fp *FormatProfile) (any, bool) {
			return fp.ValidatesZipMembers(), fp.ValidateZipMembers != nil
		},
	},
	"hash-subdirectories": {
		kinds: []Kind{KindZIP},
		set:   func(fp *FormatProfile, raw string) error { return setBool(&fp.HashSubdirectories, raw) },
		get:   func(fp *FormatProfile) (any, bool) { return fp.HashSubdirectories, fp.HashSubdirectories },
	},
}

func setInt(dst *int, raw string) error {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("expected an integer, got %q", raw)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, raw string) error {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", raw)
	}
	*dst = b
	return nil
}

// setOption assigns a named scalar option, enforcing the kinds it is valid for.
func (fp *FormatProfile) setOption(name, raw string) error {
	opt, ok := options[name]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownPath, fp.Kind, name)
	}
	if !opt.allows(fp.Kind) {
		return fmt.Errorf("option %s is not valid for %s", name, fp.Kind)
	}
	if err := opt.set(fp, raw); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
