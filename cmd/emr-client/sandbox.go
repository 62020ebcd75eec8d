package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehr/mhemr/internal/platform/sandbox"
)

func sandboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "In-memory backend for local development",
	}

	var port, seedFile string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the sandbox backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.SandboxPort = port
			}
			if seedFile != "" {
				a.cfg.SandboxSeedFile = seedFile
			}
			return runSandbox(a)
		},
	}
	serve.Flags().StringVar(&port, "port", "", "override SANDBOX_PORT")
	serve.Flags().StringVar(&seedFile, "seed", "", "override SANDBOX_SEED_FILE")

	var count int
	generate := &cobra.Command{
		Use:   "generate-patients",
		Short: "Add synthetic patients to a running sandbox (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			n, err := c.GeneratePatients(cmd.Context(), count)
			if err != nil {
				return err
			}
			a.logger.Info().Int("patients", n).Msg("synthetic patients added")
			return nil
		},
	}
	generate.Flags().IntVar(&count, "count", 10, "how many patients")

	cmd.AddCommand(serve, generate)
	return cmd
}

func runSandbox(a *app) error {
	srv, err := sandbox.New(a.cfg, nil, a.logger)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(":" + a.cfg.SandboxPort)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errc:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), sandbox.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("sandbox shutdown failed")
		return err
	}
	a.logger.Info().Msg("sandbox stopped")
	return nil
}
