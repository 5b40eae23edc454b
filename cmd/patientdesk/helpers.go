package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abelbrown/patientdesk/internal/api"
	"github.com/abelbrown/patientdesk/internal/auth"
	"github.com/abelbrown/patientdesk/internal/config"
	"github.com/abelbrown/patientdesk/internal/logging"
	"github.com/abelbrown/patientdesk/internal/otel"
)

// cliEnv is the state shared by every subcommand, filled in before RunE.
type cliEnv struct {
	configPath string
	dir        string
	cfg        *config.Config
}

func (e *cliEnv) load() error {
	e.dir = config.DataDir()
	if err := os.MkdirAll(e.dir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	path := e.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// logToFile sends the human-readable log to the dated file under logs/.
// Used by the TUI, which owns the terminal.
func (e *cliEnv) logToFile() error {
	return logging.Init(filepath.Join(e.dir, "logs"), e.cfg.Log.Level)
}

// logToStderr is for commands that print to the terminal themselves.
func (e *cliEnv) logToStderr(level string) {
	if level == "" {
		level = e.cfg.Log.Level
	}
	logging.InitWriter(os.Stderr, level)
}

// eventLogPath returns the path to patientdesk.events.jsonl.
func (e *cliEnv) eventLogPath() string {
	return filepath.Join(e.dir, otel.EventsFile)
}

// openEvents opens the event log, falling back to a null logger so a
// read-only data dir never blocks a command.
func (e *cliEnv) openEvents() *otel.Logger {
	l, err := otel.Open(e.dir)
	if err != nil {
		logging.Warn("event log unavailable", "err", err)
		return otel.NewNullLogger()
	}
	return l
}

func (e *cliEnv) tokenStore() *auth.FileStore {
	return auth.NewFileStore(e.dir)
}

func (e *cliEnv) apiClient() *api.Client {
	return api.New(api.Options{
		BaseURL:       e.cfg.API.BaseURL,
		Timeout:       e.cfg.Timeout(),
		RatePerSecond: e.cfg.API.RatePerSecond,
		Burst:         e.cfg.API.Burst,
		Tokens:        e.tokenStore(),
	})
}

func (e *cliEnv) authClient() *auth.Client {
	return auth.NewClient(e.cfg.API.BaseURL, e.cfg.Timeout())
}
