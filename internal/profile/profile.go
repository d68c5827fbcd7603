// Package profile holds the declarative de-identification profile: one
// sub-profile per file kind with its options, field rules and filename rules.
package profile

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"deid-export/internal/document"
)

// Kind is a file kind handled by a format adapter.
type Kind string

const (
	KindDICOM Kind = "dicom"
	KindJPG   Kind = "jpg"
	KindTIFF  Kind = "tiff"
	KindXML   Kind = "xml"
	KindPNG   Kind = "png"
	KindZIP   Kind = "zip"
)

// Kinds lists the file kinds in profile order.
var Kinds = allKinds

// ParseKind maps a profile key to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Profile is a parsed de-identification profile.
type Profile struct {
	Name               string
	Description        string
	OnlyConfigProfiles bool
	Formats            map[Kind]*FormatProfile
	// Export is carried through untouched for the platform export layer.
	Export map[string]any
}

// Format returns the sub-profile for kind, or nil.
func (p *Profile) Format(kind Kind) *FormatProfile {
	if p == nil {
		return nil
	}
	return p.Formats[kind]
}

// LoadFile reads and parses a YAML or JSON profile from disk.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read profile: %w", err)
	}
	return Load(data)
}

// Load parses and validates a YAML or JSON profile.
func Load(data []byte) (*Profile, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Err: err}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, parseErrorf("", "empty profile")
	}

	p, err := decodeProfile(root.Content[0])
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeProfile(node *yaml.Node) (*Profile, error) {
	if node.Kind != yaml.MappingNode {
		return nil, parseErrorf("", "line %d: profile must be a mapping", node.Line)
	}

	p := &Profile{Formats: make(map[Kind]*FormatProfile)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		switch key.Value {
		case "name":
			p.Name = val.Value
		case "description":
			p.Description = val.Value
		case "only-config-profiles":
			if err := setBool(&p.OnlyConfigProfiles, val.Value); err != nil {
				return nil, &ParseError{Path: key.Value, Err: err}
			}
		case "export":
			if err := val.Decode(&p.Export); err != nil {
				return nil, &ParseError{Path: key.Value, Err: err}
			}
		default:
			kind, ok := ParseKind(key.Value)
			if !ok {
				return nil, &ParseError{Path: key.Value, Err: fmt.Errorf("%w %q", ErrUnknownKind, key.Value)}
			}
			if _, dup := p.Formats[kind]; dup {
				return nil, parseErrorf(key.Value, "duplicate %s block", kind)
			}
			fp, err := decodeFormat(kind, val)
			if err != nil {
				return nil, err
			}
			p.Formats[kind] = fp
		}
	}
	return p, nil
}

func decodeFormat(kind Kind, node *yaml.Node) (*FormatProfile, error) {
	fp := &FormatProfile{Kind: kind}
	if node.Tag == "!!null" {
		return fp, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, parseErrorf(string(kind), "line %d: must be a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		path := string(kind) + "." + key.Value

		var err error
		switch key.Value {
		case "fields":
			err = val.Decode(&fp.Fields)
		case "filenames":
			err = val.Decode(&fp.Filenames)
		case "file-filter":
			err = decodeFilter(&fp.FileFilter, val)
		default:
			if val.Kind != yaml.ScalarNode {
				err = fmt.Errorf("line %d: must be a scalar", val.Line)
			} else {
				err = fp.setOption(key.Value, val.Value)
			}
		}
		if err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
	}

	for i := range fp.Fields {
		if err := checkAddress(kind, &fp.Fields[i]); err != nil {
			return nil, &ParseError{Path: fmt.Sprintf("%s.fields[%d]", kind, i), Err: err}
		}
	}
	return fp, nil
}

func decodeFilter(f *Filter, node *yaml.Node) error {
	f.Set = true
	f.Patterns = nil
	switch {
	case node.Tag == "!!null":
		return nil
	case node.Kind == yaml.ScalarNode:
		f.Patterns = []string{node.Value}
		return nil
	default:
		return node.Decode(&f.Patterns)
	}
}

// checkAddress validates a named rule's address in the syntax its kind uses.
func checkAddress(kind Kind, r *FieldRule) error {
	if r.Name == "" {
		return nil
	}
	if kind == KindXML {
		_, err := document.ParseQuery(r.Name)
		return err
	}
	_, err := document.ParseAddress(r.Name)
	return err
}

// Validate checks option consistency that single options cannot express.
func (p *Profile) Validate() error {
	for _, kind := range Kinds {
		fp := p.Formats[kind]
		if fp == nil {
			continue
		}
		if fp.UIDNumericName != "" {
			if err := fp.UIDPolicy().Validate(); err != nil {
				return &ConfigError{Kind: kind, Option: "uid-numeric-name", Reason: err.Error()}
			}
		}
		if fp.PatientAgeUnits != "" && !fp.PatientAgeFromBirthdate {
			return &ConfigError{Kind: kind, Option: "patient-age-units", Reason: "requires patient-age-from-birthdate"}
		}
	}
	return nil
}

// Marshal writes the profile as YAML.
func (p *Profile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("could not encode profile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("could not encode profile: %w", err)
	}
	return buf.Bytes(), nil
}

// MarshalYAML builds the profile document in a stable key order.
func (p *Profile) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	if p.Name != "" {
		n.Content = append(n.Content, strNode("name"), strNode(p.Name))
	}
	if p.Description != "" {
		n.Content = append(n.Content, strNode("description"), strNode(p.Description))
	}
	if p.OnlyConfigProfiles {
		n.Content = append(n.Content, strNode("only-config-profiles"), boolNode(true))
	}

	for _, kind := range Kinds {
		fp := p.Formats[kind]
		if fp == nil {
			continue
		}
		fn, err := fp.node()
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, strNode(string(kind)), fn)
	}

	if p.Export != nil {
		var en yaml.Node
		if err := en.Encode(p.Export); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, strNode("export"), &en)
	}
	return n, nil
}

func (fp *FormatProfile) node() (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range optionOrder {
		v, ok := options[name].get(fp)
		if !ok {
			continue
		}
		var vn *yaml.Node
		switch x := v.(type) {
		case int:
			vn = intNode(x)
		case bool:
			vn = boolNode(x)
		default:
			vn = strNode(fmt.Sprint(x))
		}
		n.Content = append(n.Content, strNode(name), vn)
	}

	add := func(key string, v any) error {
		var vn yaml.Node
		if err := vn.Encode(v); err != nil {
			return fmt.Errorf("%s.%s: %w", fp.Kind, key, err)
		}
		n.Content = append(n.Content, strNode(key), &vn)
		return nil
	}
	if fp.FileFilter.Set {
		patterns := fp.FileFilter.Patterns
		if patterns == nil {
			patterns = []string{}
		}
		if err := add("file-filter", patterns); err != nil {
			return nil, err
		}
	}
	if len(fp.Fields) > 0 {
		if err := add("fields", fp.Fields); err != nil {
			return nil, err
		}
	}
	if len(fp.Filenames) > 0 {
		if err := add("filenames", fp.Filenames); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	c := &Profile{
		Name:               p.Name,
		Description:        p.Description,
		OnlyConfigProfiles: p.OnlyConfigProfiles,
		Formats:            make(map[Kind]*FormatProfile, len(p.Formats)),
	}
	for k, fp := range p.Formats {
		c.Formats[k] = fp.Clone()
	}
	if p.Export != nil {
		c.Export = cloneValue(p.Export).(map[string]any)
	}
	return c
}

// Clone returns a deep copy of the sub-profile.
func (fp *FormatProfile) Clone() *FormatProfile {
	c := *fp
	if fp.UIDPrefixFields != nil {
		n := *fp.UIDPrefixFields
		c.UIDPrefixFields = &n
	}
	if fp.ValidateZipMembers != nil {
		b := *fp.ValidateZipMembers
		c.ValidateZipMembers = &b
	}
	c.FileFilter.Patterns = append([]string(nil), fp.FileFilter.Patterns...)
	c.Fields = append([]FieldRule(nil), fp.Fields...)
	c.Filenames = make([]FilenameRule, len(fp.Filenames))
	for i, r := range fp.Filenames {
		r.Groups = append([]FieldRule(nil), r.Groups...)
		c.Filenames[i] = r
	}
	return &c
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
