package forms

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Default scale bounds used when a scale field omits min or max.
const (
	DefaultScaleMin = 0
	DefaultScaleMax = 10
)

// MaxScaleButtons bounds the number of values a scale field offers. Wider
// ranges are truncated at Min+MaxScaleButtons-1.
const MaxScaleButtons = 101

// DefaultCheckboxOptions is offered by a checkbox field without options.
var DefaultCheckboxOptions = []string{"Yes", "No"}

// Field is the decoded, typed form of a FieldSpec. The concrete types below
// are the only implementations.
type Field interface {
	Label() string
	Type() FieldType
	isField()
}

type fieldLabel string

func (l fieldLabel) Label() string { return string(l) }
func (fieldLabel) isField()        {}

type TextField struct{ fieldLabel }

func (TextField) Type() FieldType { return FieldText }

type TextareaField struct{ fieldLabel }

func (TextareaField) Type() FieldType { return FieldTextarea }

type NumberField struct{ fieldLabel }

func (NumberField) Type() FieldType { return FieldNumber }

type DateField struct{ fieldLabel }

func (DateField) Type() FieldType { return FieldDate }

type CheckboxField struct {
	fieldLabel
	Options []string
}

func (CheckboxField) Type() FieldType { return FieldCheckbox }

type CheckboxGroupField struct {
	fieldLabel
	Options []string
}

func (CheckboxGroupField) Type() FieldType { return FieldCheckboxGroup }

type SelectField struct {
	fieldLabel
	Options []string
}

func (SelectField) Type() FieldType { return FieldSelect }

type ScaleField struct {
	fieldLabel
	Min, Max int
}

func (ScaleField) Type() FieldType { return FieldScale }

type SignatureField struct{ fieldLabel }

func (SignatureField) Type() FieldType { return FieldSignature }

// UnknownField carries a field whose declared type the engine does not
// recognise. It is rendered and stored like a text field.
type UnknownField struct {
	fieldLabel
	Declared FieldType
}

func (f UnknownField) Type() FieldType { return f.Declared }

// DecodeField maps a backend field specification onto its typed variant.
// It never fails: unrecognised types decode to UnknownField.
func DecodeField(spec FieldSpec) Field {
	label := fieldLabel(spec.Label)
	switch spec.Type {
	case FieldText:
		return TextField{label}
	case FieldTextarea:
		return TextareaField{label}
	case FieldNumber:
		return NumberField{label}
	case FieldDate:
		return DateField{label}
	case FieldCheckbox:
		opts := spec.Options
		if len(opts) == 0 {
			opts = DefaultCheckboxOptions
		}
		return CheckboxField{label, copyStrings(opts)}
	case FieldCheckboxGroup:
		return CheckboxGroupField{label, copyStrings(spec.Options)}
	case FieldSelect:
		return SelectField{label, copyStrings(spec.Options)}
	case FieldScale:
		lo, hi := DefaultScaleMin, DefaultScaleMax
		if spec.Min != nil {
			lo = *spec.Min
		}
		if spec.Max != nil {
			hi = *spec.Max
		}
		if hi < lo {
			hi = lo
		}
		if scaleSpan(lo, hi) > MaxScaleButtons-1 {
			hi = lo + MaxScaleButtons - 1
		}
		return ScaleField{label, lo, hi}
	case FieldSignature:
		return SignatureField{label}
	default:
		return UnknownField{label, spec.Type}
	}
}

// DecodeFields decodes an ordered field list, preserving order.
func DecodeFields(specs []FieldSpec) []Field {
	out := make([]Field, 0, len(specs))
	for _, s := range specs {
		out = append(out, DecodeField(s))
	}
	return out
}

// Normalize converts a loosely typed answer (typically fresh from JSON) into
// the canonical value shape for f: string, int for scale, []string for
// checkbox_group. ok is false when v is absent or cannot be interpreted.
func Normalize(f Field, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch f.(type) {
	case ScaleField:
		n, ok := toInt(v)
		return n, ok
	case CheckboxGroupField:
		list, ok := toStrings(v)
		return list, ok
	default:
		s, ok := toString(v)
		return s, ok
	}
}

// CheckAnswer normalizes v for f and checks it against the field's
// constraints: scale values must lie in [Min, Max], checkbox and select
// values must be one of the options, and checkbox_group values must be
// distinct options. An empty checkbox or select value means unanswered
// and is accepted.
func CheckAnswer(f Field, v any) (any, error) {
	nv, ok := Normalize(f, v)
	if !ok {
		return nil, fmt.Errorf("%s: cannot use %T as %s answer", f.Label(), v, f.Type())
	}
	switch ff := f.(type) {
	case ScaleField:
		n := nv.(int)
		if n < ff.Min || n > ff.Max {
			return nil, fmt.Errorf("%s: %w: %d not in [%d,%d]", ff.Label(), ErrOutOfRange, n, ff.Min, ff.Max)
		}
	case CheckboxField:
		if err := checkChoice(ff.Label(), ff.Options, nv.(string)); err != nil {
			return nil, err
		}
	case SelectField:
		if err := checkChoice(ff.Label(), ff.Options, nv.(string)); err != nil {
			return nil, err
		}
	case CheckboxGroupField:
		list := nv.([]string)
		seen := make(map[string]bool, len(list))
		for _, item := range list {
			if !contains(ff.Options, item) {
				return nil, fmt.Errorf("%s: %w: %q", ff.Label(), ErrInvalidOption, item)
			}
			if seen[item] {
				return nil, fmt.Errorf("%s: %w: %q", ff.Label(), ErrDuplicateOption, item)
			}
			seen[item] = true
		}
	}
	return nv, nil
}

func checkChoice(label string, options []string, v string) error {
	if v == "" || contains(options, v) {
		return nil
	}
	return fmt.Errorf("%s: %w: %q", label, ErrInvalidOption, v)
}

// scaleSpan returns hi-lo for hi >= lo without overflowing.
func scaleSpan(lo, hi int) uint64 {
	if hi < lo {
		return 0
	}
	return uint64(hi) - uint64(lo)
}

// ParseInput interprets a raw text entry for f, as typed on a command line.
// Checkbox groups take a comma separated list.
func ParseInput(f Field, raw string) (any, error) {
	switch ff := f.(type) {
	case ScaleField:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a whole number", ff.Label(), raw)
		}
		return n, nil
	case CheckboxGroupField:
		list := []string{}
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				list = append(list, p)
			}
		}
		return list, nil
	default:
		return raw, nil
	}
}

// ValidateTemplate returns human readable warnings about a field list. It
// does not reject anything; duplicate labels are reported because answers
// are keyed by label and would overwrite each other.
func ValidateTemplate(specs []FieldSpec) []string {
	var warnings []string
	seen := make(map[string]int, len(specs))
	for i, s := range specs {
		if strings.TrimSpace(s.Label) == "" {
			warnings = append(warnings, fmt.Sprintf("field %d has an empty label", i+1))
		}
		if prev, ok := seen[s.Label]; ok {
			warnings = append(warnings, fmt.Sprintf("field %d reuses label %q from field %d", i+1, s.Label, prev+1))
		} else {
			seen[s.Label] = i
		}
		switch s.Type {
		case FieldSelect, FieldCheckboxGroup:
			if len(s.Options) == 0 {
				warnings = append(warnings, fmt.Sprintf("field %q (%s) has no options", s.Label, s.Type))
			}
		case FieldScale:
			if s.Min != nil && s.Max != nil && *s.Max < *s.Min {
				warnings = append(warnings, fmt.Sprintf("field %q has max %d below min %d", s.Label, *s.Max, *s.Min))
			}
			lo, hi := DefaultScaleMin, DefaultScaleMax
			if s.Min != nil {
				lo = *s.Min
			}
			if s.Max != nil {
				hi = *s.Max
			}
			if scaleSpan(lo, hi) > MaxScaleButtons-1 {
				warnings = append(warnings, fmt.Sprintf("field %q spans more than %d values and will be truncated", s.Label, MaxScaleButtons))
			}
		}
		if !isKnownType(s.Type) {
			warnings = append(warnings, fmt.Sprintf("field %q has unknown type %q and will render as text", s.Label, s.Type))
		}
	}
	return warnings
}

func isKnownType(t FieldType) bool {
	for _, k := range KnownFieldTypes {
		if k == t {
			return true
		}
	}
	return false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return floatToInt(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return floatToInt(f)
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	r := math.Round(f)
	if r < math.MinInt32 || r > math.MaxInt32 {
		return 0, false
	}
	return int(r), true
}

func toStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return copyStrings(list), true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := toString(item)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		if list == "" {
			return []string{}, true
		}
		return []string{list}, true
	}
	return nil, false
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case json.Number:
		return s.String(), true
	case bool:
		if s {
			return "Yes", true
		}
		return "No", true
	}
	return "", false
}

func copyStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
