package document

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Query is a compiled XML path query. A trailing "/@name" step selects an
// attribute of each matched element instead of its text.
type Query struct {
	Raw  string
	Path etree.Path
	Attr string
}

// ParseQuery compiles an XML path query such as "//PatientID",
// "./Study/Date" or "//Patient/@id".
func ParseQuery(raw string) (Query, error) {
	q := Query{Raw: raw}
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return q, fmt.Errorf("empty query")
	}

	if i := strings.LastIndex(expr, "/@"); i >= 0 {
		attr := expr[i+2:]
		if attr == "" || strings.ContainsAny(attr, "/[]()=") {
			return q, fmt.Errorf("query %q: invalid attribute step", raw)
		}
		q.Attr = attr
		expr = expr[:i]
		switch {
		case expr == "":
			expr = "./*"
		case strings.HasSuffix(expr, "/"):
			expr += "/*"
		}
	}

	path, err := etree.CompilePath(expr)
	if err != nil {
		return q, fmt.Errorf("query %q: %w", raw, err)
	}
	q.Path = path
	return q, nil
}
