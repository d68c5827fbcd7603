package profile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionType is one of the supported field transformations.
type ActionType string

const (
	ActionRemove            ActionType = "remove"
	ActionReplaceWith       ActionType = "replace-with"
	ActionIncrementDate     ActionType = "increment-date"
	ActionIncrementDateTime ActionType = "increment-datetime"
	ActionHash              ActionType = "hash"
	ActionHashUID           ActionType = "hashuid"
	// ActionKeep annotates a field without changing it.
	ActionKeep ActionType = "keep"
)

// Actions lists every action key accepted in a field rule.
var Actions = []ActionType{
	ActionRemove,
	ActionReplaceWith,
	ActionIncrementDate,
	ActionIncrementDateTime,
	ActionHash,
	ActionHashUID,
	ActionKeep,
}

func parseAction(key string) (ActionType, bool) {
	for _, a := range Actions {
		if string(a) == key {
			return a, true
		}
	}
	return "", false
}

// FieldRule names one addressable value and the action applied to it.
// Exactly one of Name and Regex is set.
type FieldRule struct {
	Name     string
	Regex    string
	Action   ActionType
	Value    string
	Disabled bool

	re *regexp.Regexp
}

// Pattern returns the compiled regex for regex rules, nil otherwise.
func (r *FieldRule) Pattern() *regexp.Regexp {
	return r.re
}

// Address returns the rule's address for use in error reports.
func (r *FieldRule) Address() string {
	if r.Regex != "" {
		return "regex:" + r.Regex
	}
	return r.Name
}

// setAction assigns action a with its raw parameter. Boolean actions set to
// false keep their place in the profile but are skipped when applied.
func (r *FieldRule) setAction(a ActionType, raw string, null bool) error {
	if a == ActionReplaceWith {
		if null {
			return fmt.Errorf("%s requires a value", a)
		}
		r.Action = a
		r.Value = raw
		r.Disabled = false
		return nil
	}

	enabled := true
	if !null && raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", a, raw)
		}
		enabled = b
	}
	r.Action = a
	r.Value = ""
	r.Disabled = !enabled
	return nil
}

func (r *FieldRule) compile() error {
	switch {
	case r.Name == "" && r.Regex == "":
		return fmt.Errorf("rule needs a name or regex")
	case r.Name != "" && r.Regex != "":
		return fmt.Errorf("rule %q has both name and regex", r.Name)
	case r.Regex != "":
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return fmt.Errorf("invalid regex %q: %w", r.Regex, err)
		}
		r.re = re
	}
	return nil
}

// UnmarshalYAML decodes {name|regex: ..., <action>: <param>}.
func (r *FieldRule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: field rule must be a mapping", node.Line)
	}

	var actions []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: %s must be a scalar", val.Line, key.Value)
		}

		switch key.Value {
		case "name":
			r.Name = val.Value
		case "regex":
			r.Regex = val.Value
		default:
			a, ok := parseAction(key.Value)
			if !ok {
				return fmt.Errorf("line %d: unknown action %q", key.Line, key.Value)
			}
			actions = append(actions, key.Value)
			if err := r.setAction(a, val.Value, val.Tag == "!!null"); err != nil {
				return fmt.Errorf("line %d: %w", val.Line, err)
			}
		}
	}

	if len(actions) != 1 {
		return fmt.Errorf("line %d: rule %q must have exactly one action, found %d (%s)",
			node.Line, r.Address(), len(actions), strings.Join(actions, ", "))
	}
	if err := r.compile(); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// MarshalYAML writes the rule back in profile form.
func (r FieldRule) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	if r.Regex != "" {
		n.Content = append(n.Content, strNode("regex"), strNode(r.Regex))
	} else {
		n.Content = append(n.Content, strNode("name"), strNode(r.Name))
	}

	if r.Action == ActionReplaceWith {
		n.Content = append(n.Content, strNode(string(r.Action)), strNode(r.Value))
	} else {
		n.Content = append(n.Content, strNode(string(r.Action)), boolNode(!r.Disabled))
	}
	return n, nil
}

// FilenameRule rewrites an output filename from named regex captures.
type FilenameRule struct {
	Output     string      `yaml:"output"`
	InputRegex string      `yaml:"input-regex"`
	Groups     []FieldRule `yaml:"groups,omitempty"`

	re *regexp.Regexp
}

// Pattern returns the compiled input regex.
func (r *FilenameRule) Pattern() *regexp.Regexp {
	return r.re
}

func (r *FilenameRule) compile() error {
	if r.Output == "" {
		return fmt.Errorf("filename rule needs an output template")
	}
	re, err := regexp.Compile(r.InputRegex)
	if err != nil {
		return fmt.Errorf("invalid input-regex %q: %w", r.InputRegex, err)
	}
	r.re = re

	for _, g := range r.Groups {
		if g.Name == "" {
			return fmt.Errorf("filename group rules must name a capture group")
		}
		if re.SubexpIndex(g.Name) < 0 {
			return fmt.Errorf("group %q is not captured by %q", g.Name, r.InputRegex)
		}
	}
	return nil
}

// UnmarshalYAML decodes and compiles a filename rule.
func (r *FilenameRule) UnmarshalYAML(node *yaml.Node) error {
	type plain FilenameRule
	if err := node.Decode((*plain)(r)); err != nil {
		return err
	}
	if err := r.compile(); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

func strNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func boolNode(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
}

func intNode(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}
