package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/mhemr/internal/domain/audit"
	"github.com/ehr/mhemr/internal/domain/forms"
	"github.com/ehr/mhemr/internal/platform/sandbox"
)

func templatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage form templates",
	}

	var status string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			list, err := c.ListTemplates(cmd.Context(), status)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, 0, len(list))
			for _, t := range list {
				rows = append(rows, []string{
					strconv.FormatInt(t.ID, 10), t.Name, t.Category, t.Status,
					strconv.Itoa(len(t.Fields)), strconv.Itoa(t.InstanceCount),
					strings.Join(t.AllowedRoles, ","),
				})
			}
			return table(cmd.OutOrStdout(), []string{"ID", "NAME", "CATEGORY", "STATUS", "FIELDS", "FORMS", "ROLES"}, rows)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "active or archived")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template and its fields",
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
			t, err := c.GetTemplate(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), t)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s [%s] %s\n", t.Name, t.Category, t.Status)
			if t.Description != nil {
				fmt.Fprintln(out, *t.Description)
			}
			for _, w := range forms.ValidateTemplate(t.Fields) {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			rows := make([][]string, 0, len(t.Fields))
			for i, f := range t.Fields {
				rows = append(rows, []string{strconv.Itoa(i + 1), f.Label, string(f.Type), strings.Join(f.Options, ", ")})
			}
			return table(out, []string{"#", "LABEL", "TYPE", "OPTIONS"}, rows)
		},
	}

	var file string
	createCmd := &cobra.Command{
		Use:   "create -f <template.yaml>",
		Short: "Create a template from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadTemplateFile(file)
			if err != nil {
				return err
			}
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			t, err := c.CreateTemplate(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created template %d %q\n", t.ID, t.Name)
			return nil
		},
	}
	createCmd.Flags().StringVarP(&file, "file", "f", "", "template definition")
	_ = createCmd.MarkFlagRequired("file")

	cmd.AddCommand(listCmd, showCmd, createCmd,
		templateStatusCmd(a, "archive", forms.TemplateArchived),
		templateStatusCmd(a, "activate", forms.TemplateActive),
	)
	return cmd
}

func templateStatusCmd(a *app, verb, status string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: "Mark a template " + status,
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
			s := status
			t, err := c.UpdateTemplate(cmd.Context(), id, forms.TemplatePatch{Status: &s})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template %d is %s\n", t.ID, t.Status)
			return nil
		},
	}
}

// loadTemplateFile reads a template definition in the same shape as the
// templates section of a sandbox seed file.
func loadTemplateFile(path string) (forms.TemplateRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return forms.TemplateRequest{}, fmt.Errorf("open template file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var st sandbox.SeedTemplate
	if err := dec.Decode(&st); err != nil {
		return forms.TemplateRequest{}, fmt.Errorf("decode %s: %w", path, err)
	}
	req := forms.TemplateRequest{
		Name:         st.Name,
		Category:     st.Category,
		Fields:       st.Fields,
		AllowedRoles: st.AllowedRoles,
	}
	if st.Description != "" {
		req.Description = &st.Description
	}
	return req, nil
}

func patientsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Browse patients",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the patients you can access",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			list, err := c.ListPatients(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, 0, len(list))
			for _, p := range list {
				rows = append(rows, []string{strconv.FormatInt(p.ID, 10), p.Code, p.FullName(), p.DateOfBirth})
			}
			return table(cmd.OutOrStdout(), []string{"ID", "CODE", "NAME", "BORN"}, rows)
		},
	})
	return cmd
}

func auditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the access audit trail (admin only)",
	}

	var q audit.Query
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "List audit entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			page, err := c.AuditLogs(cmd.Context(), q)
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}
			rows := make([][]string, 0, len(page.Data))
			for _, e := range page.Data {
				rows = append(rows, []string{
					e.Timestamp.Local().Format(time.DateTime), deref(e.Username), e.Action,
					e.Resource, e.Status, e.IPAddress, e.Description,
				})
			}
			out := cmd.OutOrStdout()
			if err := table(out, []string{"TIME", "USER", "ACTION", "RESOURCE", "STATUS", "IP", "DESCRIPTION"}, rows); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d of %d", len(page.Data), page.Total)
			if page.HasMore {
				fmt.Fprintf(out, " (next: --offset %d)", page.Offset+len(page.Data))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	f := logsCmd.Flags()
	f.Int64Var(&q.UserID, "user-id", 0, "only entries of this user")
	f.StringVar(&q.Action, "action", "", "only this action, e.g. LOGIN")
	f.StringVar(&q.Status, "status", "", "success or failure")
	f.StringVar(&q.DateFrom, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&q.DateTo, "to", "", "last day, YYYY-MM-DD")
	f.IntVar(&q.Limit, "limit", 50, "page size")
	f.IntVar(&q.Offset, "offset", 0, "entries to skip")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show today's access statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			st, err := c.AuditStats(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			return table(cmd.OutOrStdout(), []string{"METRIC", "COUNT"}, [][]string{
				{"logins today", strconv.Itoa(st.TotalLoginsToday)},
				{"failed logins today", strconv.Itoa(st.FailedAttemptsToday)},
				{"denied requests today", strconv.Itoa(st.UnauthorizedAttemptsToday)},
				{"unauthenticated requests today", strconv.Itoa(st.NotAuthenticatedToday)},
				{"active sessions", strconv.Itoa(st.ActiveSessions)},
			})
		},
	}

	cmd.AddCommand(logsCmd, statsCmd)
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
