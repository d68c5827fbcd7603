package profile

import (
	"fmt"
	"strconv"
	"strings"
)

// Set assigns value at a dotted profile path such as
// "dicom.fields.PatientID.replace-with", "dicom.date-increment",
// "dicom.filenames[0].groups[0].increment-date" or "export.subject.code".
//
// Values arrive as text and are parsed into the type of their destination.
// Paths that do not name an existing schema location are rejected with
// ErrUnknownPath; nothing is created implicitly except below "export", which
// is opaque passthrough data.
func (p *Profile) Set(path, value string) error {
	head, rest, _ := strings.Cut(path, ".")

	switch head {
	case "name", "description":
		if rest != "" {
			return unknownPath(path)
		}
		if head == "name" {
			p.Name = value
		} else {
			p.Description = value
		}
		return nil
	case "export":
		if rest == "" {
			return unknownPath(path)
		}
		if p.Export == nil {
			p.Export = make(map[string]any)
		}
		return setExport(p.Export, strings.Split(rest, "."), value)
	}

	kind, ok := ParseKind(head)
	if !ok || rest == "" {
		return unknownPath(path)
	}
	fp := p.Formats[kind]
	if fp == nil {
		return fmt.Errorf("%w: %s (profile has no %s block)", ErrUnknownPath, path, kind)
	}
	if err := fp.set(rest, value); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Get returns the current text value at path, mirroring Set.
func (p *Profile) Get(path string) (string, bool) {
	head, rest, _ := strings.Cut(path, ".")
	if head == "export" {
		v, ok := lookupExport(p.Export, strings.Split(rest, "."))
		if !ok {
			return "", false
		}
		return fmt.Sprint(v), true
	}
	kind, ok := ParseKind(head)
	if !ok || p.Formats[kind] == nil {
		return "", false
	}
	fp := p.Formats[kind]

	field, index, hasIndex, tail, err := splitHead(rest)
	if err != nil {
		return "", false
	}
	switch field {
	case "fields":
		rules := selectRules(fp.Fields, index, hasIndex, &tail)
		key := tail
		if len(rules) == 0 {
			return "", false
		}
		r := rules[0]
		if string(r.Action) != key {
			return "", false
		}
		if r.Action == ActionReplaceWith {
			return r.Value, true
		}
		return strconv.FormatBool(!r.Disabled), true
	default:
		opt, ok := options[field]
		if !ok || tail != "" || hasIndex {
			return "", false
		}
		v, set := opt.get(fp)
		if !set {
			return "", false
		}
		return fmt.Sprint(v), true
	}
}

func (fp *FormatProfile) set(path, value string) error {
	field, index, hasIndex, rest, err := splitHead(path)
	if err != nil {
		return err
	}

	switch field {
	case "fields":
		return setRules(fp.Fields, index, hasIndex, rest, value)
	case "filenames":
		if !hasIndex {
			seg, tail, _ := strings.Cut(rest, ".")
			n, convErr := strconv.Atoi(seg)
			if convErr != nil {
				return fmt.Errorf("%w: filenames needs an index", ErrUnknownPath)
			}
			index, rest = n, tail
		}
		if index < 0 || index >= len(fp.Filenames) {
			return fmt.Errorf("%w: filenames[%d] does not exist", ErrUnknownPath, index)
		}
		return fp.Filenames[index].set(rest, value)
	case "file-filter":
		if hasIndex || rest != "" {
			return unknownPath(path)
		}
		fp.FileFilter = Filter{Set: true, Patterns: splitList(value)}
		return nil
	default:
		if hasIndex || rest != "" {
			return unknownPath(path)
		}
		return fp.setOption(field, value)
	}
}

func (r *FilenameRule) set(path, value string) error {
	field, index, hasIndex, rest, err := splitHead(path)
	if err != nil {
		return err
	}

	switch field {
	case "output", "input-regex":
		if hasIndex || rest != "" {
			return unknownPath(path)
		}
		if field == "output" {
			r.Output = value
		} else {
			r.InputRegex = value
		}
	case "groups":
		if err := setRules(r.Groups, index, hasIndex, rest, value); err != nil {
			return err
		}
	default:
		return unknownPath(path)
	}
	return r.compile()
}

// setRules applies an action assignment to the rules selected by either an
// index ("[2].hash") or a field name ("PatientID.replace-with"). Names may
// themselves contain dots; the action key is the last segment.
func setRules(rules []FieldRule, index int, hasIndex bool, rest, value string) error {
	selected := selectRules(rules, index, hasIndex, &rest)
	if len(selected) == 0 {
		return fmt.Errorf("%w: no field rule matches", ErrUnknownPath)
	}

	a, ok := parseAction(rest)
	if !ok {
		return fmt.Errorf("%w: %q is not an action", ErrUnknownPath, rest)
	}
	for _, r := range selected {
		if err := r.setAction(a, value, false); err != nil {
			return err
		}
	}
	return nil
}

// selectRules resolves the rule part of a path and leaves the action key in
// *rest.
func selectRules(rules []FieldRule, index int, hasIndex bool, rest *string) []*FieldRule {
	if hasIndex {
		if index < 0 || index >= len(rules) {
			return nil
		}
		return []*FieldRule{&rules[index]}
	}

	i := strings.LastIndex(*rest, ".")
	if i < 0 {
		return nil
	}
	name, key := (*rest)[:i], (*rest)[i+1:]
	*rest = key

	var out []*FieldRule
	for j := range rules {
		if rules[j].Name == name {
			out = append(out, &rules[j])
		}
	}
	if len(out) == 0 {
		if n, err := strconv.Atoi(name); err == nil && n >= 0 && n < len(rules) {
			out = append(out, &rules[n])
		}
	}
	return out
}

// splitHead splits "fields[3].rest" into ("fields", 3, true, "rest").
func splitHead(path string) (field string, index int, hasIndex bool, rest string, err error) {
	end := strings.IndexAny(path, ".[")
	if end < 0 {
		return path, 0, false, "", nil
	}
	field = path[:end]
	if path[end] == '.' {
		return field, 0, false, path[end+1:], nil
	}

	closeIdx := strings.IndexByte(path[end:], ']')
	if closeIdx < 0 {
		return "", 0, false, "", fmt.Errorf("%w: unterminated index in %q", ErrUnknownPath, path)
	}
	closeIdx += end
	index, convErr := strconv.Atoi(path[end+1 : closeIdx])
	if convErr != nil {
		return "", 0, false, "", fmt.Errorf("%w: bad index in %q", ErrUnknownPath, path)
	}
	rest = strings.TrimPrefix(path[closeIdx+1:], ".")
	return field, index, true, rest, nil
}

func setExport(m map[string]any, keys []string, value string) error {
	key := keys[0]
	if key == "" {
		return fmt.Errorf("%w: empty export key", ErrUnknownPath)
	}
	if len(keys) == 1 {
		m[key] = coerceLike(m[key], value)
		return nil
	}

	child, ok := m[key].(map[string]any)
	if !ok {
		if _, exists := m[key]; exists {
			return fmt.Errorf("%w: export.%s is not a mapping", ErrUnknownPath, key)
		}
		child = make(map[string]any)
		m[key] = child
	}
	return setExport(child, keys[1:], value)
}

func lookupExport(m map[string]any, keys []string) (any, bool) {
	var cur any = m
	for _, k := range keys {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// coerceLike parses value into the type of the value it replaces.
func coerceLike(old any, value string) any {
	switch old.(type) {
	case int:
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	case float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case bool:
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case []any:
		items := splitList(value)
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func unknownPath(path string) error {
	return fmt.Errorf("%w: %s", ErrUnknownPath, path)
}
