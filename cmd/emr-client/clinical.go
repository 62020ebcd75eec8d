package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/mhemr/internal/domain/clinical"
)

func notesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Read and write a patient's clinical notes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <patient>",
		Short: "List notes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			notes, err := c.ListNotes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), notes)
			}
			rows := make([][]string, 0, len(notes))
			for _, n := range notes {
				rows = append(rows, []string{
					strconv.FormatInt(n.ID, 10), n.Date.Local().Format(time.DateTime),
					deref(n.ProviderName), n.Type, n.Status, deref(n.Summary),
				})
			}
			return table(cmd.OutOrStdout(), []string{"ID", "DATE", "PROVIDER", "TYPE", "STATUS", "SUMMARY"}, rows)
		},
	})

	var req clinical.NoteRequest
	addCmd := &cobra.Command{
		Use:   "add <patient>",
		Short: "Write a note; the patient's risk level is rescored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			n, err := c.CreateNote(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "note %d saved (%s, %s)\n", n.ID, n.Type, n.Status)
			return nil
		},
	}
	f := addCmd.Flags()
	f.StringVar(&req.Summary, "summary", "", "note text")
	f.StringVar(&req.Diagnosis, "diagnosis", "", "working diagnosis")
	f.StringVar(&req.Type, "type", "", "note type (default progress)")
	f.StringVar(&req.Status, "status", "", "draft or signed")
	cmd.AddCommand(addCmd)
	return cmd
}

func planCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show or set a patient's treatment plan",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <patient>",
		Short: "Show the treatment plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			p, err := c.GetTreatmentPlan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.asJSON {
				return printJSON(out, p)
			}
			if p == nil {
				fmt.Fprintln(out, "no treatment plan")
				return nil
			}
			return table(out, []string{"FIELD", "VALUE"}, [][]string{
				{"status", p.Status},
				{"start", deref(p.StartDate)},
				{"review", deref(p.ReviewDate)},
				{"goals", string(p.Goals)},
				{"updated", p.UpdatedAt.Local().Format(time.DateTime)},
			})
		},
	})

	var (
		req   clinical.PlanRequest
		goals []string
	)
	setCmd := &cobra.Command{
		Use:   "set <patient>",
		Short: "Create or replace the treatment plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(goals) > 0 {
				raw, err := json.Marshal(goals)
				if err != nil {
					return err
				}
				req.Goals = raw
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			res, err := c.UpsertTreatmentPlan(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			verb := "updated"
			if res.Created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "treatment plan %s (%s)\n", verb, res.Plan.Status)
			return nil
		},
	}
	f := setCmd.Flags()
	f.StringVar(&req.StartDate, "start", "", "start date, YYYY-MM-DD")
	f.StringVar(&req.ReviewDate, "review", "", "review date, YYYY-MM-DD")
	f.StringVar(&req.Status, "status", "", "active or archived")
	f.StringArrayVar(&goals, "goal", nil, "treatment goal (repeatable)")
	cmd.AddCommand(setCmd)
	return cmd
}

func riskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "risk <patient>",
		Short: "Score a patient's current risk level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			r, err := c.PatientRisk(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), r)
			}
			flagged := "-"
			if len(r.Flagged) > 0 {
				flagged = strings.Join(r.Flagged, ", ")
			}
			return table(cmd.OutOrStdout(), []string{"LEVEL", "DIAGNOSIS", "FREQUENCY", "RECENT NOTES", "FLAGGED"}, [][]string{
				{r.Level, r.DiagnosisLevel, r.FrequencyLevel, strconv.Itoa(r.RecentNotes), flagged},
			})
		},
	}
}

func usersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Administer user accounts (admin only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List accounts with their lockout state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			users, err := c.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), users)
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				last := "-"
				if u.LastLogin != nil {
					last = u.LastLogin.Local().Format(time.DateTime)
				}
				rows = append(rows, []string{
					strconv.FormatInt(u.ID, 10), u.Username, u.Role, u.FullName,
					strconv.Itoa(u.FailedAttempts), strconv.FormatBool(u.IsLocked), last,
				})
			}
			return table(cmd.OutOrStdout(), []string{"ID", "USERNAME", "ROLE", "NAME", "FAILED", "LOCKED", "LAST LOGIN"}, rows)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unlock <user-id>",
		Short: "Clear failed logins and any lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			u, err := c.UnlockUser(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", u.Username)
			return nil
		},
	})

	var password string
	resetCmd := &cobra.Command{
		Use:   "reset-password <user-id>",
		Short: "Set a new password and clear any lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			if err := c.ResetUserPassword(cmd.Context(), id, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password reset for user %d\n", id)
			return nil
		},
	}
	resetCmd.Flags().StringVar(&password, "password", "", "new password (prompted when omitted)")
	cmd.AddCommand(resetCmd)
	return cmd
}
