package forms

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOption is returned when a choice is not among a control's options.
var ErrInvalidOption = errors.New("option not offered by field")

// ErrOutOfRange is returned when a scale value lies outside [min, max].
var ErrOutOfRange = errors.New("value outside scale range")

// ErrDuplicateOption is returned when a checkbox_group answer lists an
// option twice.
var ErrDuplicateOption = errors.New("option selected more than once")

// Control is an interactive input bound to one field. Edits made through a
// control update its own value and are reported through the onChange
// callback given to RenderField.
type Control interface {
	Field() Field
	Value() any
}

// ChangeFunc receives the new canonical value after every edit.
type ChangeFunc func(value any)

// TextInput is a free-text control. Kind is the HTML-style input kind:
// "text", "textarea", "number" or "date".
type TextInput struct {
	field    Field
	Kind     string
	value    string
	onChange ChangeFunc
}

func (c *TextInput) Field() Field { return c.field }
func (c *TextInput) Value() any   { return c.value }
func (c *TextInput) Text() string { return c.value }

// SetText replaces the whole value.
func (c *TextInput) SetText(s string) {
	c.value = s
	c.onChange(s)
}

// ChoiceInput selects exactly one value among Options. Checkbox fields use it
// as a toggle row, select fields as a dropdown.
type ChoiceInput struct {
	field    Field
	Options  []string
	Toggle   bool
	value    string
	onChange ChangeFunc
}

func (c *ChoiceInput) Field() Field     { return c.field }
func (c *ChoiceInput) Value() any       { return c.value }
func (c *ChoiceInput) Selected() string { return c.value }

// Choose replaces the selection with option.
func (c *ChoiceInput) Choose(option string) error {
	if !contains(c.Options, option) {
		return fmt.Errorf("%s: %w: %q", c.field.Label(), ErrInvalidOption, option)
	}
	c.value = option
	c.onChange(option)
	return nil
}

// MultiChoiceInput keeps an ordered selection of options; newly checked
// options are appended.
type MultiChoiceInput struct {
	field    Field
	Options  []string
	selected []string
	onChange ChangeFunc
}

func (c *MultiChoiceInput) Field() Field { return c.field }
func (c *MultiChoiceInput) Value() any   { return copyStrings(c.selected) }

// Checked reports whether option is currently selected.
func (c *MultiChoiceInput) Checked(option string) bool {
	return contains(c.selected, option)
}

// Toggle adds option to the selection, or removes it if already present.
func (c *MultiChoiceInput) Toggle(option string) error {
	if !contains(c.Options, option) {
		return fmt.Errorf("%s: %w: %q", c.field.Label(), ErrInvalidOption, option)
	}
	if c.Checked(option) {
		next := make([]string, 0, len(c.selected))
		for _, s := range c.selected {
			if s != option {
				next = append(next, s)
			}
		}
		c.selected = next
	} else {
		c.selected = append(copyStrings(c.selected), option)
	}
	c.onChange(copyStrings(c.selected))
	return nil
}

// ScaleInput is a grid of integer buttons from Min to Max inclusive.
type ScaleInput struct {
	field    Field
	Min, Max int
	value    *int
	onChange ChangeFunc
}

func (c *ScaleInput) Field() Field { return c.field }

func (c *ScaleInput) Value() any {
	if c.value == nil {
		return nil
	}
	return *c.value
}

// Buttons returns the button values in display order, at most
// MaxScaleButtons of them.
func (c *ScaleInput) Buttons() []int {
	if c.Max < c.Min {
		return []int{}
	}
	n := MaxScaleButtons
	if span := scaleSpan(c.Min, c.Max); span < MaxScaleButtons-1 {
		n = int(span) + 1
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.Min+i)
	}
	return out
}

// Press selects the button labelled n.
func (c *ScaleInput) Press(n int) error {
	if n < c.Min || n > c.Max {
		return fmt.Errorf("%s: %w: %d not in [%d,%d]", c.field.Label(), ErrOutOfRange, n, c.Min, c.Max)
	}
	v := n
	c.value = &v
	c.onChange(n)
	return nil
}

// SignatureInput takes a typed full name. The date shown next to a signed
// field is display only and is not stored with the answer.
type SignatureInput struct {
	field    Field
	value    string
	now      func() time.Time
	onChange ChangeFunc
}

func (c *SignatureInput) Field() Field { return c.field }
func (c *SignatureInput) Value() any   { return c.value }
func (c *SignatureInput) Name() string { return c.value }
func (c *SignatureInput) Signed() bool { return c.value != "" }

// Sign replaces the typed name. An empty name clears the signature.
func (c *SignatureInput) Sign(name string) {
	c.value = name
	c.onChange(name)
}

// SignedOn returns today's date for display while signed, or "".
func (c *SignatureInput) SignedOn() string {
	if !c.Signed() {
		return ""
	}
	return c.now().Format("January 2, 2006")
}

// RenderField maps a field and its current answer onto a control. Every
// variant has a dedicated arm; anything else gets a plain text input.
func RenderField(f Field, current any, onChange ChangeFunc) Control {
	if onChange == nil {
		onChange = func(any) {}
	}
	switch ff := f.(type) {
	case TextField:
		return newTextInput(ff, "text", current, onChange)
	case TextareaField:
		return newTextInput(ff, "textarea", current, onChange)
	case NumberField:
		return newTextInput(ff, "number", current, onChange)
	case DateField:
		return newTextInput(ff, "date", current, onChange)
	case CheckboxField:
		s, _ := CheckAnswer(ff, current)
		v, _ := s.(string)
		return &ChoiceInput{field: ff, Options: copyStrings(ff.Options), Toggle: true, value: v, onChange: onChange}
	case SelectField:
		s, _ := CheckAnswer(ff, current)
		v, _ := s.(string)
		return &ChoiceInput{field: ff, Options: copyStrings(ff.Options), value: v, onChange: onChange}
	case CheckboxGroupField:
		selected := []string{}
		if list, ok := Normalize(ff, current); ok {
			selected = keepOptions(ff, list.([]string))
		}
		return &MultiChoiceInput{field: ff, Options: copyStrings(ff.Options), selected: selected, onChange: onChange}
	case ScaleField:
		c := &ScaleInput{field: ff, Min: ff.Min, Max: ff.Max, onChange: onChange}
		if n, err := CheckAnswer(ff, current); err == nil {
			v := n.(int)
			c.value = &v
		}
		return c
	case SignatureField:
		s, _ := Normalize(ff, current)
		v, _ := s.(string)
		return &SignatureInput{field: ff, value: v, now: time.Now, onChange: onChange}
	default:
		return newTextInput(f, "text", current, onChange)
	}
}

func newTextInput(f Field, kind string, current any, onChange ChangeFunc) *TextInput {
	s, _ := Normalize(f, current)
	v, _ := s.(string)
	return &TextInput{field: f, Kind: kind, value: v, onChange: onChange}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
