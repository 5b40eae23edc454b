// Command patientdesk is the terminal client for the patient service.
//
// Usage:
//
//	patientdesk                     Run the patient search TUI
//	patientdesk search              Same as above
//	patientdesk login               Log in and store the session token
//	patientdesk register            Create an account and store the session token
//	patientdesk logout              Forget the session token
//	patientdesk whoami              Show the stored session
//	patientdesk patients <cmd>      One-shot list, filter, sort and lookup
//	patientdesk events              JSONL event log viewer
//	patientdesk devserver           Run the in-memory patient service
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abelbrown/patientdesk/internal/otel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{}
	var trace bool

	root := &cobra.Command{
		Use:          "patientdesk",
		Short:        "Search patients from the terminal",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), env)
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("trace") {
				otel.SetTraceEnabled(trace)
			}
			return env.load()
		},
	}
	root.PersistentFlags().StringVar(&env.configPath, "config", "", "config file (default $PATIENTDESK_HOME/config.json)")
	root.PersistentFlags().BoolVar(&trace, "trace", false, "emit a ui.key event per keystroke (or set PATIENTDESK_TRACE)")

	root.AddCommand(
		searchCmd(env),
		loginCmd(env),
		registerCmd(env),
		logoutCmd(env),
		whoamiCmd(env),
		patientsCmd(env),
		eventsCmd(env),
		devserverCmd(env),
	)
	return root
}
