package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/patientdesk/internal/patient"
	"github.com/abelbrown/patientdesk/internal/search"
)

// Placeholders for absent fields.
const (
	missingName  = "-"
	missingOther = "—"
)

func columns(width int) []table.Column {
	// id and date have fixed widths; name and email share what is left.
	const idW, dobW = 36, 13
	rest := width - idW - dobW - 8
	if rest < 20 {
		rest = 20
	}
	nameW := rest * 2 / 5
	return []table.Column{
		{Title: "Name", Width: nameW},
		{Title: "Email", Width: rest - nameW},
		{Title: "Date of Birth", Width: dobW},
		{Title: "ID", Width: idW},
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Row renders one record for display.
func Row(r patient.Record) []string {
	return []string{
		orDefault(r.Name, missingName),
		orDefault(r.Email, missingOther),
		orDefault(r.DateOfBirth, missingOther),
		r.ID,
	}
}

func rows(records []patient.Record) []table.Row {
	out := make([]table.Row, len(records))
	for i, r := range records {
		out[i] = Row(r)
	}
	return out
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.showDebug {
		return lipgloss.JoinVertical(lipgloss.Left,
			debugOverlay(a.ring, a.debugInfo(), a.width, a.height-1),
			debugStatusBar(a.width))
	}

	v := a.ctrl.View()
	var b strings.Builder
	b.WriteString(a.header())
	b.WriteString("\n")
	b.WriteString(a.form())
	b.WriteString("\n")
	b.WriteString(a.statusLine(v))
	b.WriteString("\n")
	if v.ShowEmpty() {
		b.WriteString(EmptyStyle.Render(v.EmptyMessage()))
	} else {
		b.WriteString(a.table.View())
	}
	b.WriteString("\n")
	b.WriteString(a.statusBar(len(v.Results)))
	return b.String()
}

func (a App) header() string {
	title := TitleStyle.Render("Patients")
	if a.user == "" {
		return title
	}
	return title + UserStyle.Render(a.user)
}

func (a App) label(f field, text string) string {
	if a.focus == f {
		return FocusedLabelStyle.Render(text)
	}
	return LabelStyle.Render(text)
}

func (a App) form() string {
	s := a.ctrl.State()

	var dobHint string
	if raw := strings.TrimSpace(s.DOBInput); raw != "" {
		if _, err := patient.ParseDate(raw); err != nil {
			dobHint = "  " + HintStyle.Render("incomplete date, not applied")
		}
	}

	var chips []string
	for _, k := range []patient.SortKey{patient.SortNone, patient.SortName, patient.SortDateOfBirth} {
		if k == s.SortKey {
			chips = append(chips, ActiveSortChip.Render(k.Label()))
		} else {
			chips = append(chips, SortChip.Render(k.Label()))
		}
	}

	lines := []string{
		a.label(fieldName, "Name") + a.name.View(),
		a.label(fieldDOB, "Born on/before") + a.dob.View() + dobHint,
		a.label(fieldSort, "Sort by") + strings.Join(chips, " "),
		a.label(fieldID, "Lookup id") + a.id.View(),
	}
	return strings.Join(lines, "\n") + "\n"
}

func (a App) statusLine(v search.View) string {
	switch {
	case v.Loading:
		return LoadingStyle.Render(a.spinner.View() + " Loading...")
	case v.LastError != "":
		return ErrorStyle.Render(v.LastError)
	default:
		return ""
	}
}

// statusBar renders the bottom bar: result count on the left, keys on the right.
func (a App) statusBar(total int) string {
	left := fmt.Sprintf(" %d patients ", total)
	if total == 1 {
		left = " 1 patient "
	}

	keys := []string{
		StatusBarKey.Render("tab") + StatusBarText.Render(":field"),
		StatusBarKey.Render("↑/↓") + StatusBarText.Render(":rows"),
		StatusBarKey.Render("enter") + StatusBarText.Render(":lookup/sort"),
		StatusBarKey.Render("ctrl+r") + StatusBarText.Render(":clear"),
		StatusBarKey.Render("ctrl+o") + StatusBarText.Render(":debug"),
		StatusBarKey.Render("esc") + StatusBarText.Render(":quit"),
	}
	hints := strings.Join(keys, " ")

	padding := a.width - lipgloss.Width(left) - lipgloss.Width(hints) - 2
	if padding < 0 {
		padding = 0
	}
	return StatusBar.Width(a.width).Render(left + strings.Repeat(" ", padding) + hints)
}
