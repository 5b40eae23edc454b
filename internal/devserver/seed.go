package devserver

import (
	"github.com/google/uuid"

	"github.com/abelbrown/patientdesk/internal/patient"
)

// seedNamespace keeps fixture ids stable across runs.
var seedNamespace = uuid.MustParse("6f1c2a4e-8d0b-4c53-9f7e-2b1d5e3a9c10")

// SeedID returns the deterministic id of the named fixture patient.
func SeedID(name string) string {
	return uuid.NewSHA1(seedNamespace, []byte(name)).String()
}

// SeedPatients returns the fixture patients. Some fields are left empty on
// purpose so clients exercise their placeholder rendering.
func SeedPatients() []patient.Record {
	rows := []struct {
		name, email, dob string
	}{
		{"Jane Smith", "jane.smith@example.com", "1985-04-12"},
		{"John Smith", "john.smith@example.com", "1990-01-01"},
		{"Alice Johnson", "alice.johnson@example.com", "1978-11-30"},
		{"Bob Brown", "", "2001-06-15"},
		{"Carol White", "carol.white@example.com", ""},
		{"David Smithers", "d.smithers@example.com", "1965-02-28"},
		{"Eve Adams", "eve.adams@example.com", "1999-12-31"},
		{"Frank Miller", "frank.miller@example.com", "1982-07-04"},
		{"Grace Lee", "grace.lee@example.com", "1995-03-22"},
		{"Henry Janeway", "", ""},
	}

	out := make([]patient.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, patient.Record{
			ID:          SeedID(r.name),
			Name:        r.name,
			Email:       r.email,
			DateOfBirth: r.dob,
		})
	}
	return out
}
