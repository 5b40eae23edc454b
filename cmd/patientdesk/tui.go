package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/abelbrown/patientdesk/internal/logging"
	"github.com/abelbrown/patientdesk/internal/otel"
	"github.com/abelbrown/patientdesk/internal/search"
	"github.com/abelbrown/patientdesk/internal/ui"
)

func searchCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Run the patient search TUI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), env)
		},
	}
}

func runTUI(ctx context.Context, env *cliEnv) error {
	if err := env.logToFile(); err != nil {
		return err
	}
	defer logging.Close()

	events := env.openEvents()
	defer events.Close()
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events.SetRingBuffer(ring)
	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStartup, Comp: "main", Msg: env.cfg.API.BaseURL})

	user, _ := sessionUser(env.tokenStore())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctrl := search.New(env.apiClient(), search.Options{
		Delay:   env.cfg.Debounce(),
		Events:  events,
		Context: ctx,
	})
	defer ctrl.Close()

	app := ui.NewApp(ui.Options{
		Controller: ctrl,
		Ring:       ring,
		Events:     events,
		User:       user,
	})

	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown, Comp: "main", Count: int(events.Dropped())})
	if err != nil {
		logging.Error("tui exited", "err", err)
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
