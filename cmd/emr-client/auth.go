package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func healthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ok, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("backend at %s reports unhealthy", a.cfg.APIBaseURL)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", a.cfg.APIBaseURL)
			return nil
		},
	}
}

func loginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and save the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = p
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			if err := writeToken(a.tokenFile, res.SessionID); err != nil {
				return err
			}
			a.logger.Debug().Str("token_file", a.tokenFile).Msg("session token saved")
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", res.Username, res.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

// readPassword prompts without echo on a terminal and otherwise reads the
// first line of in, so the password can be piped.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if c.Tokens().Present() {
				if err := c.Logout(cmd.Context()); err != nil {
					a.logger.Warn().Err(err).Msg("logout request failed, removing token anyway")
				}
			}
			if err := removeToken(a.tokenFile); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			me, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return printJSON(cmd.OutOrStdout(), me)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d, %s)\n", me.Username, me.UserID, me.Role)
			return nil
		},
	}
}
