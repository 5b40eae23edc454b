package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/patientdesk/internal/otel"
)

// debugPanelChrome is the number of lines DebugPanel adds: border (2) plus
// vertical padding (2).
const debugPanelChrome = 4

// debugInfo is the live session state shown above the event list.
type debugInfo struct {
	Gen         uint64
	Intent      string
	NamePending bool
}

func (a App) debugInfo() debugInfo {
	info := debugInfo{Gen: a.ctrl.Generation(), NamePending: a.ctrl.NamePending()}
	if in, ok := a.ctrl.LastIntent(); ok {
		info.Intent = in.String()
	}
	return info
}

// debugOverlay renders query stats, session state and recent query events.
// Returns "" when ring is nil.
func debugOverlay(ring *otel.RingBuffer, info debugInfo, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Session"))
	lines = append(lines, fmt.Sprintf("  Generation: %d", info.Gen))
	if info.Intent != "" {
		lines = append(lines, "  Intent:     "+truncateRunes(info.Intent, 56))
	}
	if info.NamePending {
		lines = append(lines, "  Name:       debounce pending")
	}
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Queries"))
	lines = append(lines, fmt.Sprintf("  Dispatched: %d, %d complete, %d errors, %d stale",
		stats[otel.KindQueryDispatch], stats[otel.KindQueryComplete], stats[otel.KindQueryError], stats[otel.KindQueryStale]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range ring.Last(20) {
		line := fmt.Sprintf("  %6s  %-16s", formatAge(time.Since(e.Time)), string(e.Kind))
		if e.Gen != 0 {
			line += fmt.Sprintf("  #%d", e.Gen)
		}
		if e.Intent != "" {
			line += "  " + truncateRunes(e.Intent, 30)
		}
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 30)
		}
		if e.Dur > 0 {
			line += "  " + formatAge(e.Dur)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		if e.QueryID != "" {
			line += "  qid:" + truncateRunes(e.QueryID, 8)
		}
		lines = append(lines, line)
	}

	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 96
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}
	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration compactly. Negative durations (clock skew)
// clamp to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("ctrl+o") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
