package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// eventRecord mirrors otel.Event for JSON decoding.
// Decoding from JSONL rather than importing otel keeps old log files
// readable when the event schema changes.
type eventRecord struct {
	Time      time.Time      `json:"t"`
	Level     string         `json:"level"`
	Kind      string         `json:"kind"`
	Comp      string         `json:"comp"`
	SessionID string         `json:"session_id"`
	Gen       uint64         `json:"gen"`
	QueryID   string         `json:"qid"`
	Intent    string         `json:"intent"`
	DurMs     float64        `json:"dur_ms"`
	Count     int            `json:"count"`
	Err       string         `json:"err"`
	Msg       string         `json:"msg"`
	Extra     map[string]any `json:"extra"`
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level string) int {
	switch level {
	case "info":
		return 1
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}

// eventFilter selects events by the viewer's flags. Zero values match all.
type eventFilter struct {
	kind  string // prefix, e.g. "query"
	level string // minimum
	comp  string
	qid   string
}

func (f eventFilter) match(ev eventRecord) bool {
	if f.kind != "" && !strings.HasPrefix(ev.Kind, f.kind) {
		return false
	}
	if f.level != "" && levelRank(ev.Level) < levelRank(f.level) {
		return false
	}
	if f.comp != "" && ev.Comp != f.comp {
		return false
	}
	if f.qid != "" && !strings.HasPrefix(ev.QueryID, f.qid) {
		return false
	}
	return true
}

func formatEvent(ev eventRecord) string {
	lvl := strings.ToUpper(ev.Level)
	if lvl == "" {
		lvl = "?"
	}
	parts := []string{fmt.Sprintf("%s %-5s [%-8s] %-16s", ev.Time.Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)}

	if ev.Gen > 0 {
		parts = append(parts, fmt.Sprintf("#%d", ev.Gen))
	}
	if ev.Intent != "" {
		parts = append(parts, ev.Intent)
	}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	if ev.QueryID != "" {
		parts = append(parts, "qid="+ev.QueryID)
	}
	return strings.Join(parts, " ")
}

func eventsCmd(env *cliEnv) *cobra.Command {
	var (
		filter  eventFilter
		tail    int
		follow  bool
		rawJSON bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the JSONL event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := env.eventLogPath()
			f, err := os.Open(path)
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("event log not found at %s; run the TUI first to generate events", path)
			}
			if err != nil {
				return err
			}
			defer f.Close()

			out := cmd.OutOrStdout()
			show := func(l parsedLine) {
				if rawJSON {
					fmt.Fprintln(out, string(l.raw))
					return
				}
				fmt.Fprintln(out, formatEvent(l.ev))
			}

			for _, l := range readTailLines(f, tail, filter.match) {
				show(l)
			}
			if !follow {
				return nil
			}

			// Follow mode: the reader sits at EOF, poll for appended lines.
			reader := bufio.NewReader(f)
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			var partial []byte // a line the writer has not finished yet
			for {
				line, err := reader.ReadBytes('\n')
				if err == nil {
					line = append(partial, line...)
					partial = nil
					if l, ok := parseLine(line); ok && filter.match(l.ev) {
						show(l)
					}
					continue
				}
				if err != io.EOF {
					return err
				}
				partial = append(partial, line...)
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 50, "number of recent lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow mode (like tail -f)")
	cmd.Flags().StringVar(&filter.kind, "kind", "", "filter by event kind prefix (e.g. 'query')")
	cmd.Flags().StringVar(&filter.level, "level", "", "minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&filter.comp, "comp", "", "filter by component name")
	cmd.Flags().StringVar(&filter.qid, "qid", "", "filter by request id (prefix)")
	cmd.Flags().BoolVar(&rawJSON, "json", false, "output raw JSON lines")
	return cmd
}

type parsedLine struct {
	ev  eventRecord
	raw []byte
}

func parseLine(b []byte) (parsedLine, bool) {
	b = bytes.TrimRight(b, "\r\n")
	if len(b) == 0 {
		return parsedLine{}, false
	}
	var ev eventRecord
	if json.Unmarshal(b, &ev) != nil {
		return parsedLine{}, false
	}
	raw := make([]byte, len(b))
	copy(raw, b)
	return parsedLine{ev: ev, raw: raw}, true
}

// readTailLines reads r to the end and returns the last n lines matching
// the filter. Malformed lines are skipped.
func readTailLines(r io.Reader, n int, match func(eventRecord) bool) []parsedLine {
	if n <= 0 {
		return nil
	}
	scanner := bufio.NewScanner(r)
	// Extra maps can make lines long.
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	ring := make([]parsedLine, 0, n)
	for scanner.Scan() {
		l, ok := parseLine(scanner.Bytes())
		if !ok || !match(l.ev) {
			continue
		}
		if len(ring) < n {
			ring = append(ring, l)
		} else {
			copy(ring, ring[1:])
			ring[n-1] = l
		}
	}
	return ring
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
