// Package patient defines the read-only patient projection returned by the
// patient service, plus the small value types the search view filters on.
package patient

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used on the wire.
const DateLayout = "2006-01-02"

// Record is a patient as returned by the backend.
// Records live only as long as the result set that holds them.
type Record struct {
	ID          string `json:"id"` // UUID string, unique within a result set
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"` // YYYY-MM-DD
}

// DuplicateIDs returns the ids that occur more than once in records.
// A well-behaved backend never produces any.
func DuplicateIDs(records []Record) []string {
	seen := make(map[string]int, len(records))
	var dups []string
	for _, r := range records {
		seen[r.ID]++
		if seen[r.ID] == 2 {
			dups = append(dups, r.ID)
		}
	}
	return dups
}

// Date is a canonical YYYY-MM-DD date. The zero value means unset.
type Date string

// ParseDate trims s and validates it as an ISO calendar date.
// An empty (or all-space) string yields the zero Date and no error.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Date(t.Format(DateLayout)), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == "" }

// String returns the ISO form, or "" when unset.
func (d Date) String() string { return string(d) }

// SortKey selects server-side ordering.
type SortKey string

const (
	SortNone        SortKey = ""
	SortName        SortKey = "name"
	SortDateOfBirth SortKey = "dob"
)

// ParseSortKey accepts "", "name", "dob" and "dateofbirth" in any case.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SortNone, nil
	case "name":
		return SortName, nil
	case "dob", "dateofbirth":
		return SortDateOfBirth, nil
	default:
		return SortNone, fmt.Errorf("unknown sort key %q: want name or dob", s)
	}
}

// IsSet reports whether a sort key is selected.
func (k SortKey) IsSet() bool { return k != SortNone }

// Next cycles none -> name -> dob -> none. Used by the TUI selector.
func (k SortKey) Next() SortKey {
	switch k {
	case SortNone:
		return SortName
	case SortName:
		return SortDateOfBirth
	default:
		return SortNone
	}
}

// Label is the human-readable selector label.
func (k SortKey) Label() string {
	switch k {
	case SortName:
		return "Name"
	case SortDateOfBirth:
		return "Date of Birth"
	default:
		return "None"
	}
}
