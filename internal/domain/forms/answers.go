package forms

// AnswerSet maps a field label to its current value. Values are string, int
// (scale) or []string (checkbox_group).
type AnswerSet map[string]any

// BuildAnswerSet keeps only answers whose label belongs to fields, converted
// to each field's canonical shape. Stale keys are dropped, and so are
// stored values the field no longer accepts: out of range scale values
// and unknown choices. Checkbox groups keep their valid, distinct options.
func BuildAnswerSet(fields []Field, raw map[string]any) AnswerSet {
	out := make(AnswerSet, len(fields))
	for _, f := range fields {
		v, ok := raw[f.Label()]
		if !ok {
			continue
		}
		if g, isGroup := f.(CheckboxGroupField); isGroup {
			if list, ok := Normalize(g, v); ok {
				out[f.Label()] = keepOptions(g, list.([]string))
			}
			continue
		}
		if nv, err := CheckAnswer(f, v); err == nil {
			out[f.Label()] = nv
		}
	}
	return out
}

// keepOptions filters list down to the field's options, first occurrence
// only.
func keepOptions(f CheckboxGroupField, list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if contains(f.Options, item) && !contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

// Clone returns a deep copy; list values are copied too.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		if list, ok := v.([]string); ok {
			v = copyStrings(list)
		}
		out[k] = v
	}
	return out
}
