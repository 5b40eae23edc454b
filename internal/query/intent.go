// Package query describes what the patient search view should currently
// fetch and decides it from the view's inputs.
package query

import (
	"fmt"
	"strings"

	"github.com/abelbrown/patientdesk/internal/patient"
)

// Mode tags an Intent.
type Mode int

const (
	ModeListAll Mode = iota
	ModeFilter
	ModeSort
	ModeLookup
)

func (m Mode) String() string {
	switch m {
	case ModeListAll:
		return "list"
	case ModeFilter:
		return "filter"
	case ModeSort:
		return "sort"
	case ModeLookup:
		return "lookup"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Intent is a tagged variant. Only the fields of its Mode are meaningful.
// Intents are comparable; two equal intents fetch the same thing.
type Intent struct {
	Mode           Mode
	NamePattern    string          // ModeFilter
	BornOnOrBefore patient.Date    // ModeFilter
	SortKey        patient.SortKey // ModeSort
	ID             string          // ModeLookup
}

// ListAll fetches every patient.
func ListAll() Intent { return Intent{Mode: ModeListAll} }

// Filter matches by name and/or date of birth. The name is trimmed.
func Filter(name string, bornOnOrBefore patient.Date) Intent {
	return Intent{Mode: ModeFilter, NamePattern: strings.TrimSpace(name), BornOnOrBefore: bornOnOrBefore}
}

// Sort asks the server for an ordered listing.
func Sort(key patient.SortKey) Intent { return Intent{Mode: ModeSort, SortKey: key} }

// LookupByID fetches a single patient. The id is trimmed.
func LookupByID(id string) Intent { return Intent{Mode: ModeLookup, ID: strings.TrimSpace(id)} }

func (i Intent) String() string {
	switch i.Mode {
	case ModeFilter:
		var parts []string
		if i.NamePattern != "" {
			parts = append(parts, fmt.Sprintf("name=%q", i.NamePattern))
		}
		if !i.BornOnOrBefore.IsZero() {
			parts = append(parts, "dob<="+i.BornOnOrBefore.String())
		}
		return "filter(" + strings.Join(parts, " ") + ")"
	case ModeSort:
		return "sort(" + string(i.SortKey) + ")"
	case ModeLookup:
		return "lookup(" + i.ID + ")"
	default:
		return i.Mode.String()
	}
}

// Resolve maps the debounced name, the date and the sort selection to the
// single active intent. Filter beats sort; sort beats list-all.
// It never yields a lookup: lookups are explicit actions.
func Resolve(debouncedName string, dob patient.Date, sort patient.SortKey) Intent {
	name := strings.TrimSpace(debouncedName)
	if name != "" || !dob.IsZero() {
		return Filter(name, dob)
	}
	if sort.IsSet() {
		return Sort(sort)
	}
	return ListAll()
}
