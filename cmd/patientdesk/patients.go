package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/abelbrown/patientdesk/internal/dispatch"
	"github.com/abelbrown/patientdesk/internal/logging"
	"github.com/abelbrown/patientdesk/internal/otel"
	"github.com/abelbrown/patientdesk/internal/patient"
	"github.com/abelbrown/patientdesk/internal/query"
	"github.com/abelbrown/patientdesk/internal/ui"
)

func patientsCmd(env *cliEnv) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "One-shot patient queries",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print records as JSON")

	run := func(cmd *cobra.Command, intent query.Intent) error {
		env.logToStderr("warn")
		records, err := runQuery(cmd.Context(), env, intent)
		if err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), records, asJSON)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, query.ListAll())
		},
	}

	var name, dob string
	filter := &cobra.Command{
		Use:   "filter",
		Short: "Filter by name substring and/or born on or before a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			date, err := patient.ParseDate(dob)
			if err != nil {
				return err
			}
			return run(cmd, query.Resolve(name, date, patient.SortNone))
		},
	}
	filter.Flags().StringVar(&name, "name", "", "case-insensitive name substring")
	filter.Flags().StringVar(&dob, "dob", "", "born on or before (YYYY-MM-DD)")

	var by string
	sortCmd := &cobra.Command{
		Use:   "sort",
		Short: "List every patient ordered by name or date of birth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := patient.ParseSortKey(by)
			if err != nil {
				return err
			}
			if !key.IsSet() {
				return errors.New("--by must be name or dob")
			}
			return run(cmd, query.Sort(key))
		},
	}
	sortCmd.Flags().StringVar(&by, "by", "", "sort key: name or dob")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Look up one patient by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := query.LookupByID(args[0])
			if intent.ID == "" {
				return errors.New("patient id is required")
			}
			return run(cmd, intent)
		},
	}

	cmd.AddCommand(list, filter, sortCmd, get)
	return cmd
}

// runQuery sends one intent through a dispatcher, the same path the TUI
// uses, and waits for its result.
func runQuery(ctx context.Context, env *cliEnv, intent query.Intent) ([]patient.Record, error) {
	events := env.openEvents()
	defer events.Close()

	d := dispatch.New(env.apiClient(), dispatch.WithEvents(events), dispatch.WithContext(ctx))
	defer d.Close()

	_, cmd := d.Dispatch(intent)
	res, ok := cmd().(dispatch.Result)
	if !ok {
		return nil, errors.New("dispatch produced no result")
	}
	d.Observe(res)
	if res.Err != nil {
		logging.Warn("query failed", "intent", intent.String(), "err", res.Err)
		events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindError, Comp: "main", Intent: intent.String(), Err: res.Err.Error()})
		return nil, errors.New(dispatch.FailureMessage(res.Err, intent.Mode))
	}
	return res.Records, nil
}

func printRecords(w io.Writer, records []patient.Record, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No patients.")
		return err
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = ui.Row(r)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("Name", "Email", "Date of Birth", "ID").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return ui.StatusBarKey.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	noun := "patients"
	if len(records) == 1 {
		noun = "patient"
	}
	_, err := fmt.Fprintf(w, "%s\n%d %s\n", t.String(), len(records), noun)
	return err
}
