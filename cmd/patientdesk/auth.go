package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/patientdesk/internal/auth"
	"github.com/abelbrown/patientdesk/internal/logging"
	"github.com/abelbrown/patientdesk/internal/otel"
)

type exchangeFunc func(ctx context.Context, email, password string) (auth.Token, error)

func loginCmd(env *cliEnv) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env.logToStderr("warn")
			return authenticate(cmd, env, otel.KindAuthLogin, env.authClient().Login, email, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func registerCmd(env *cliEnv) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env.logToStderr("warn")
			return authenticate(cmd, env, otel.KindAuthRegister, env.authClient().Register, email, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

// authenticate runs a login or register exchange and saves the token.
func authenticate(cmd *cobra.Command, env *cliEnv, kind otel.EventKind, exchange exchangeFunc, email, password string) error {
	events := env.openEvents()
	defer events.Close()

	start := time.Now()
	token, err := exchange(cmd.Context(), email, password)
	ev := otel.Event{Level: otel.LevelInfo, Kind: kind, Comp: "auth", Dur: time.Since(start)}
	if err != nil {
		ev.Level = otel.LevelWarn
		ev.Err = err.Error()
		events.Emit(ev)
		return err
	}

	store := env.tokenStore()
	if err := store.Save(token); err != nil {
		return err
	}
	subject, expiresAt, _ := token.Claims()
	ev.Msg = subject
	events.Emit(ev)
	logging.Debug("session stored", "path", store.Path())

	printSession(cmd.OutOrStdout(), subject, expiresAt, time.Now())
	return nil
}

func logoutCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := env.tokenStore().Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func whoamiCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			token, err := env.tokenStore().Load()
			if errors.Is(err, auth.ErrNoToken) {
				fmt.Fprintln(out, "Not logged in.")
				return nil
			}
			if err != nil {
				return err
			}
			subject, expiresAt, err := token.Claims()
			if err != nil {
				return fmt.Errorf("stored token is unreadable, log in again: %w", err)
			}
			printSession(out, subject, expiresAt, time.Now())
			return nil
		},
	}
}

// sessionUser returns the subject of a stored, unexpired token.
func sessionUser(store *auth.FileStore) (string, bool) {
	raw, err := store.Token()
	if err != nil {
		return "", false
	}
	subject, _, err := auth.Token(raw).Claims()
	if err != nil || subject == "" {
		return "", false
	}
	return subject, true
}

func printSession(w io.Writer, subject string, expiresAt, now time.Time) {
	if subject == "" {
		subject = "unknown user"
	}
	switch {
	case expiresAt.IsZero():
		fmt.Fprintf(w, "Logged in as %s.\n", subject)
	case !now.Before(expiresAt):
		fmt.Fprintf(w, "Session for %s expired at %s. Run 'patientdesk login' again.\n",
			subject, expiresAt.Local().Format(time.RFC1123))
	default:
		fmt.Fprintf(w, "Logged in as %s until %s.\n", subject, expiresAt.Local().Format(time.RFC1123))
	}
}
