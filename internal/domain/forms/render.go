package forms

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RenderText writes a plain-text view of the controls, one per line, as used
// by the command line client.
func RenderText(w io.Writer, controls []Control) error {
	if len(controls) == 0 {
		_, err := fmt.Fprintln(w, "This form has no fields.")
		return err
	}
	for i, c := range controls {
		if _, err := fmt.Fprintf(w, "%2d. %s\n", i+1, describe(c)); err != nil {
			return err
		}
	}
	return nil
}

func describe(c Control) string {
	label := c.Field().Label()
	switch cc := c.(type) {
	case *TextInput:
		return fmt.Sprintf("%s [%s]: %s", label, cc.Kind, quoteOrDash(cc.Text()))
	case *ChoiceInput:
		opts := make([]string, len(cc.Options))
		for i, o := range cc.Options {
			mark := " "
			if o == cc.Selected() {
				mark = "x"
			}
			opts[i] = fmt.Sprintf("(%s) %s", mark, o)
		}
		return fmt.Sprintf("%s: %s", label, strings.Join(opts, "  "))
	case *MultiChoiceInput:
		opts := make([]string, len(cc.Options))
		for i, o := range cc.Options {
			mark := " "
			if cc.Checked(o) {
				mark = "x"
			}
			opts[i] = fmt.Sprintf("[%s] %s", mark, o)
		}
		return fmt.Sprintf("%s: %s", label, strings.Join(opts, "  "))
	case *ScaleInput:
		buttons := cc.Buttons()
		btns := make([]string, 0, len(buttons))
		for _, n := range buttons {
			s := strconv.Itoa(n)
			if v, ok := cc.Value().(int); ok && v == n {
				s = "<" + s + ">"
			}
			btns = append(btns, s)
		}
		return fmt.Sprintf("%s: %s", label, strings.Join(btns, " "))
	case *SignatureInput:
		if !cc.Signed() {
			return fmt.Sprintf("%s [signature]: unsigned", label)
		}
		return fmt.Sprintf("%s [signature]: signed by %s on %s", label, cc.Name(), cc.SignedOn())
	default:
		return fmt.Sprintf("%s: %v", label, c.Value())
	}
}

func quoteOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return strconv.Quote(s)
}
