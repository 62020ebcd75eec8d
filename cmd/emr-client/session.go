package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehr/mhemr/internal/domain/session"
)

func sessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inactivity monitoring for the current login",
	}

	var timeoutMinutes, warningSeconds int
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive while you type",
		Long: "Every line read from stdin counts as activity. When the expiry warning\n" +
			"shows, enter c to continue the session or q to sign out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := a.cfg.SessionOptions()
			if timeoutMinutes > 0 {
				opts.TimeoutMinutes = timeoutMinutes
			}
			if warningSeconds > 0 {
				opts.WarningSeconds = warningSeconds
			}
			return a.watchSession(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	watch.Flags().IntVar(&timeoutMinutes, "timeout-minutes", 0, "override SESSION_TIMEOUT_MINUTES")
	watch.Flags().IntVar(&warningSeconds, "warning-seconds", 0, "override SESSION_WARNING_SECONDS")

	cmd.AddCommand(watch)
	return cmd
}

func (a *app) watchSession(ctx context.Context, in io.Reader, out io.Writer, opts session.Options) error {
	c, err := a.authedClient()
	if err != nil {
		return err
	}

	expired := make(chan struct{})
	var (
		mu   sync.Mutex
		last session.State
	)
	opts.OnChange = func(st session.Status) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case st.WarningVisible:
			fmt.Fprintf(out, "session expires in %ds. c = continue, q = sign out\n", st.SecondsRemaining)
		case st.State == session.StateActive && last == session.StateWarning:
			fmt.Fprintln(out, "session continued")
		}
		last = st.State
	}
	opts.OnTimeout = func() {
		close(expired)
	}

	m := session.NewMonitor(c, c.Tokens(), opts, a.logger)
	events := make(chan session.Activity, 16)
	m.Start()
	m.Listen(events)
	defer m.Stop()
	fmt.Fprintf(out, "watching session: warning after %s of inactivity\n", opts.WarningDelay())

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "stopped watching; session left open")
			return nil
		case <-expired:
			fmt.Fprintln(out, "session ended, signed out")
			return removeToken(a.tokenFile)
		case line := <-lines:
			switch strings.ToLower(line) {
			case "c":
				if err := m.Continue(ctx); err != nil {
					a.logger.Debug().Err(err).Msg("continue ignored")
				}
			case "q":
				if err := m.SignOut(ctx); err != nil {
					a.logger.Debug().Err(err).Msg("sign out ignored")
				}
			default:
				select {
				case events <- session.KeyDown:
				default:
				}
			}
		}
	}
}
