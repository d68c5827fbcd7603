package action

import (
	"errors"

	"deid-export/internal/document"
	"deid-export/internal/profile"
)

// ApplyRules runs fp's field rules against doc in declared order. Regex
// rules act on every top-level field whose name matches. A named rule that
// resolves to nothing is skipped unless fp is strict, in which case the
// *document.ResolutionError is returned.
func (e *Executor) ApplyRules(doc document.Document, fp *profile.FormatProfile) error {
	for i := range fp.Fields {
		rule := &fp.Fields[i]
		if rule.Disabled {
			continue
		}

		var slots []document.Slot
		if re := rule.Pattern(); re != nil {
			slots = document.Match(doc, re)
		} else {
			var err error
			slots, err = document.Locate(doc, rule.Name)
			if err != nil {
				var miss *document.ResolutionError
				if errors.As(err, &miss) && !fp.Strict {
					continue
				}
				return err
			}
		}

		for _, s := range slots {
			if err := e.Apply(s, rule, fp); err != nil {
				return err
			}
		}
	}
	return nil
}
