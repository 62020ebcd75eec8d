package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/mhemr/internal/config"
	"github.com/ehr/mhemr/internal/platform/apiclient"
)

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every command needs once the root has loaded config.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	tokenFile string
	apiURL    string
	verbose   bool
	asJSON    bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "emr-client",
		Short:        "Mental health EMR client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "backend base URL (overrides API_BASE_URL)")
	root.PersistentFlags().StringVar(&a.tokenFile, "token-file", "", "where the session token is kept")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every API request")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print raw JSON")

	root.AddCommand(healthCmd(a))
	root.AddCommand(loginCmd(a))
	root.AddCommand(logoutCmd(a))
	root.AddCommand(whoamiCmd(a))
	root.AddCommand(templatesCmd(a))
	root.AddCommand(patientsCmd(a))
	root.AddCommand(formsCmd(a))
	root.AddCommand(notesCmd(a))
	root.AddCommand(planCmd(a))
	root.AddCommand(riskCmd(a))
	root.AddCommand(usersCmd(a))
	root.AddCommand(auditCmd(a))
	root.AddCommand(sessionCmd(a))
	root.AddCommand(sandboxCmd(a))
	return root
}

func (a *app) init(logOut io.Writer) error {
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.cfg = cfg
	}
	if a.apiURL != "" {
		a.cfg.APIBaseURL = a.apiURL
	}

	level := zerolog.InfoLevel
	if a.verbose {
		level = zerolog.DebugLevel
	}
	a.logger = zerolog.New(logOut).With().Timestamp().Logger().Level(level)
	if a.cfg.IsDev() {
		a.logger = zerolog.New(zerolog.ConsoleWriter{Out: logOut, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger().Level(level)
	}

	if a.tokenFile == "" {
		path, err := defaultTokenFile()
		if err != nil {
			return err
		}
		a.tokenFile = path
	}
	return a.cfg.Validate()
}

// client builds an API client whose token comes from API_TOKEN or, failing
// that, the token file written by login.
func (a *app) client() (*apiclient.Client, error) {
	token := a.cfg.APIToken
	if token == "" {
		saved, err := readToken(a.tokenFile)
		if err != nil {
			return nil, err
		}
		token = saved
	}
	return apiclient.New(a.cfg.APIBaseURL, apiclient.NewTokenStore(token),
		apiclient.WithTimeout(a.cfg.APITimeout),
		apiclient.WithLogger(a.logger),
	), nil
}

// authedClient is client for commands that make no sense without a login.
func (a *app) authedClient() (*apiclient.Client, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	if !c.Tokens().Present() {
		return nil, fmt.Errorf("not logged in; run emr-client login")
	}
	return c, nil
}
