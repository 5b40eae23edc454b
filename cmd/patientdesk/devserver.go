package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/patientdesk/internal/devserver"
	"github.com/abelbrown/patientdesk/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func devserverCmd(env *cliEnv) *cobra.Command {
	var (
		addr            string
		dbPath          string
		latency, jitter time.Duration
		noAuth          bool
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the local patient service",
		Long: "Serves the patient and auth endpoints over seeded fixtures.\n" +
			"Log in with " + devserver.SeedUserEmail + " / " + devserver.SeedUserPassword + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env.logToStderr("")
			defer logging.Close()

			dc := env.cfg.DevServer
			if !cmd.Flags().Changed("addr") {
				addr = dc.Addr
			}
			if !cmd.Flags().Changed("latency") {
				latency = env.cfg.Latency()
			}
			if !cmd.Flags().Changed("jitter") {
				jitter = env.cfg.Jitter()
			}
			if !cmd.Flags().Changed("db") {
				dbPath = dc.DBPath
			}

			srv, err := devserver.New(devserver.Options{
				Secret:      []byte(dc.Secret),
				RequireAuth: dc.RequireAuth && !noAuth,
				Latency:     latency,
				Jitter:      jitter,
				DBPath:      dbPath,
			})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(addr)
			}()

			select {
			case err := <-errCh:
				srv.Close()
				return err
			case <-cmd.Context().Done():
			}

			logging.Info("shutting down devserver")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			logging.Info("devserver stopped")
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().DurationVar(&latency, "latency", 0, "fixed delay added to /patients responses")
	cmd.Flags().DurationVar(&jitter, "jitter", 0, "extra random delay, up to this much")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file that keeps accounts across restarts (default in-memory)")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "serve /patients without a bearer token")
	return cmd
}
