// Package filename computes output filenames from ordered regex rules.
package filename

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"deid-export/internal/action"
	"deid-export/internal/document"
	"deid-export/internal/profile"
)

// NoMatchError is returned when no filename rule matches and the profile
// asks for unmatched names to fail.
type NoMatchError struct {
	Name string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no filename rule matches %q", e.Name)
}

// FieldSource supplies values for placeholders that are not capture groups.
type FieldSource interface {
	Value(name string) (string, bool)
}

// DocumentSource reads placeholder values from a de-identified document.
type DocumentSource struct {
	Doc document.Document
}

func (s DocumentSource) Value(name string) (string, bool) {
	if s.Doc == nil {
		return "", false
	}
	return document.FirstValue(s.Doc, name)
}

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// Rewriter applies filename rules, running group actions through the shared
// executor so captured identifiers hash like the fields they came from.
type Rewriter struct {
	exec *action.Executor
}

// New creates a rewriter.
func New(exec *action.Executor) *Rewriter {
	return &Rewriter{exec: exec}
}

// Rewrite returns the output name for original. The first rule whose
// input-regex matches wins. When nothing matches, the original name is
// returned unless fp fails unmatched names.
func (r *Rewriter) Rewrite(original string, fp *profile.FormatProfile, source FieldSource) (string, error) {
	if fp == nil || len(fp.Filenames) == 0 {
		return original, nil
	}

	for i := range fp.Filenames {
		rule := &fp.Filenames[i]
		m := rule.Pattern().FindStringSubmatch(original)
		if m == nil {
			continue
		}

		groups := make(map[string]string)
		for gi, name := range rule.Pattern().SubexpNames() {
			if name != "" {
				groups[name] = m[gi]
			}
		}
		for gi := range rule.Groups {
			g := &rule.Groups[gi]
			value, err := r.applyGroup(groups[g.Name], g, fp)
			if err != nil {
				return "", fmt.Errorf("could not rewrite %q: group %s: %w", original, g.Name, err)
			}
			groups[g.Name] = value
		}

		out, err := Expand(rule.Output, groups, source)
		if err != nil {
			return "", fmt.Errorf("could not rewrite %q: %w", original, err)
		}
		return Safe(out), nil
	}

	if fp.FailsUnmatchedFilenames() {
		return "", &NoMatchError{Name: original}
	}
	return original, nil
}

func (r *Rewriter) applyGroup(value string, rule *profile.FieldRule, fp *profile.FormatProfile) (string, error) {
	slot := &document.TextSlot{Name: rule.Name, Value: value}
	if err := r.exec.Apply(slot, rule, fp); err != nil {
		return "", err
	}
	if slot.Removed {
		return "", nil
	}
	return slot.Value, nil
}

// Expand substitutes {placeholders} in template, looking in groups first
// and then in source.
func Expand(template string, groups map[string]string, source FieldSource) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := groups[name]; ok {
			return v
		}
		if source != nil {
			if v, ok := source.Value(name); ok {
				return v
			}
		}
		missing = append(missing, name)
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("no value for placeholder %s", strings.Join(missing, ", "))
	}
	return out, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Safe transliterates name to ASCII and drops every character outside
// [A-Za-z0-9._-].
func Safe(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = name
	}
	return unsafeChars.ReplaceAllString(ascii, "")
}
