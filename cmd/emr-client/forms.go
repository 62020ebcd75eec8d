package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/mhemr/internal/domain/forms"
)

func formsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forms",
		Short: "Fill in patient forms",
	}
	cmd.AddCommand(
		formsListCmd(a),
		formsShowCmd(a),
		formsNewCmd(a),
		formsSetCmd(a),
		formsFinishCmd(a, "save", "Save a form as draft"),
		formsFinishCmd(a, "complete", "Mark a form completed"),
		formsDeleteCmd(a),
	)
	return cmd
}

func formsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <patient>",
		Short: "List a patient's forms, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			list, err := c.ListPatientForms(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, 0, len(list))
			for _, s := range list {
				updated := "-"
				if s.UpdatedAt != nil {
					updated = s.UpdatedAt.Local().Format("2006-01-02 15:04")
				}
				rows = append(rows, []string{
					strconv.FormatInt(s.ID, 10), deref(s.TemplateName), deref(s.TemplateCategory),
					string(s.Status), deref(s.FilledByName), updated,
				})
			}
			return table(cmd.OutOrStdout(), []string{"ID", "TEMPLATE", "CATEGORY", "STATUS", "FILLED BY", "UPDATED"}, rows)
		},
	}
}

// openEditor loads one form into a fresh editor.
func (a *app) openEditor(ctx context.Context, patientID, formArg string) (*forms.Editor, error) {
	formID, err := parseID(formArg)
	if err != nil {
		return nil, err
	}
	c, err := a.authedClient()
	if err != nil {
		return nil, err
	}
	ed := forms.NewEditor(c, a.logger)
	if _, err := ed.Load(ctx, patientID, formID); err != nil {
		return nil, err
	}
	return ed, nil
}

func renderEditor(w io.Writer, ed *forms.Editor) error {
	sub := ed.Submission()
	fmt.Fprintf(w, "form %d  %s  [%s]\n", sub.ID, deref(sub.TemplateName), sub.Status)
	if sub.FilledByName != nil {
		fmt.Fprintf(w, "filled by %s\n", *sub.FilledByName)
	}
	return forms.RenderText(w, ed.Controls())
}

func formsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <patient> <form-id>",
		Short: "Show a form with its answers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ed, err := a.openEditor(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), ed.Submission())
			}
			return renderEditor(cmd.OutOrStdout(), ed)
		},
	}
}

func formsNewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new <patient> <template-id>",
		Short: "Start an empty draft from a template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			templateID, err := parseID(args[1])
			if err != nil {
				return err
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			ed := forms.NewEditor(c, a.logger)
			if _, err := ed.Create(cmd.Context(), args[0], templateID); err != nil {
				return err
			}
			return renderEditor(cmd.OutOrStdout(), ed)
		},
	}
}

func formsSetCmd(a *app) *cobra.Command {
	var complete bool
	cmd := &cobra.Command{
		Use:   "set <patient> <form-id> <label>=<value>...",
		Short: "Answer fields and save the draft",
		Long: "Answer one or more fields by label and save. Scale fields take a whole\n" +
			"number and checkbox groups a comma separated list.",
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ed, err := a.openEditor(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !ed.Editable() {
				return fmt.Errorf("form %s is completed and read-only", args[1])
			}
			for _, kv := range args[2:] {
				label, raw, err := splitAssignment(kv)
				if err != nil {
					return err
				}
				if err := setAnswer(ed, label, raw); err != nil {
					return err
				}
			}
			save := ed.SaveDraft
			if complete {
				save = ed.Complete
			}
			if _, err := save(cmd.Context()); err != nil {
				return err
			}
			return renderEditor(cmd.OutOrStdout(), ed)
		},
	}
	cmd.Flags().BoolVar(&complete, "complete", false, "mark the form completed after answering")
	return cmd
}

func splitAssignment(kv string) (string, string, error) {
	label, value, ok := strings.Cut(kv, "=")
	if !ok || label == "" {
		return "", "", fmt.Errorf("expected <label>=<value>, got %q", kv)
	}
	return label, value, nil
}

func setAnswer(ed *forms.Editor, label, raw string) error {
	for _, f := range ed.Fields() {
		if f.Label() != label {
			continue
		}
		v, err := forms.ParseInput(f, raw)
		if err != nil {
			return err
		}
		// Reject the whole value before any control sees part of it.
		if v, err = forms.CheckAnswer(f, v); err != nil {
			return err
		}
		if c, ok := ed.Control(label); ok {
			return applyToControl(c, v)
		}
		return ed.Set(label, v)
	}
	return fmt.Errorf("%w: %q", forms.ErrUnknownField, label)
}

// applyToControl routes a parsed value through the field's control so the
// control's own checks (options, scale range) apply before the answer is
// stored.
func applyToControl(c forms.Control, v any) error {
	switch ctl := c.(type) {
	case *forms.ScaleInput:
		return ctl.Press(v.(int))
	case *forms.ChoiceInput:
		return ctl.Choose(v.(string))
	case *forms.MultiChoiceInput:
		for _, opt := range v.([]string) {
			if !ctl.Checked(opt) {
				if err := ctl.Toggle(opt); err != nil {
					return err
				}
			}
		}
		for _, opt := range ctl.Value().([]string) {
			if !containsString(v.([]string), opt) {
				if err := ctl.Toggle(opt); err != nil {
					return err
				}
			}
		}
		return nil
	case *forms.SignatureInput:
		ctl.Sign(v.(string))
		return nil
	case *forms.TextInput:
		ctl.SetText(v.(string))
		return nil
	}
	return fmt.Errorf("unsupported control %T", c)
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func formsFinishCmd(a *app, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <patient> <form-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ed, err := a.openEditor(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			var sub *forms.Submission
			if verb == "complete" {
				sub, err = ed.Complete(cmd.Context())
			} else {
				sub, err = ed.SaveDraft(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "form %d saved (%s)\n", sub.ID, sub.Status)
			return nil
		},
	}
}

func formsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <patient> <form-id>",
		Short: "Delete a form (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formID, err := parseID(args[1])
			if err != nil {
				return err
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			if err := c.DeletePatientForm(cmd.Context(), args[0], formID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "form %d deleted\n", formID)
			return nil
		},
	}
}
