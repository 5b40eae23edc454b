package search

import "github.com/abelbrown/patientdesk/internal/patient"

// Empty-state messages.
const (
	MsgNoMatches  = "No results for current filters."
	MsgNoPatients = "No patients available."
)

// View is what the rendering layer needs. It is derived from State on every
// call and never stored.
type View struct {
	Results          []patient.Record
	Loading          bool
	LastError        string
	HasActiveFilters bool
}

// View derives the presentation of the current state.
func (c *Controller) View() View {
	s := c.State()
	return View{
		Results:          s.Results,
		Loading:          s.Loading,
		LastError:        s.LastError,
		HasActiveFilters: s.HasActiveFilters(),
	}
}

// HasActiveFilters reports whether any raw input is non-empty. Whitespace
// counts: it is what the user typed, even though it resolves to no filter.
func (s State) HasActiveFilters() bool {
	return s.NameInput != "" ||
		s.DOBInput != "" ||
		s.SortKey.IsSet() ||
		s.IDInput != ""
}

// EmptyMessage is the text shown when there are no results.
func (v View) EmptyMessage() string {
	if v.HasActiveFilters {
		return MsgNoMatches
	}
	return MsgNoPatients
}

// ShowEmpty reports whether the empty-state message should replace the
// result table. It is shown alongside LastError, so a failed lookup reads
// "Patient not found." above an empty result set.
func (v View) ShowEmpty() bool {
	return !v.Loading && len(v.Results) == 0
}
