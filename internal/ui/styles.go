package ui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorError     = lipgloss.Color("196")
)

// TitleStyle for the header line.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// UserStyle for the logged-in user next to the title.
var UserStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// LabelStyle for form labels.
var LabelStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Width(15)

// FocusedLabelStyle for the label of the focused field.
var FocusedLabelStyle = LabelStyle.
	Foreground(colorHighlight).
	Bold(true)

// SortChip and ActiveSortChip render the sort selector options.
var SortChip = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

var ActiveSortChip = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// HintStyle for inline hints next to a field.
var HintStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Italic(true)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// EmptyStyle for the empty-state message.
var EmptyStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// LoadingStyle for the spinner line.
var LoadingStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers inside the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorMuted).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("255")).
		Background(colorPrimary).
		Bold(false)
	return s
}
