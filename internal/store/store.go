// Package store provides SQLite persistence for the dev server: patient
// fixtures and registered accounts.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/abelbrown/patientdesk/internal/patient"
)

// Memory opens a private in-memory database.
const Memory = ":memory:"

var (
	ErrNotFound   = errors.New("store: not found")
	ErrUserExists = errors.New("store: user already exists")
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates a Store at dbPath, creating tables if they don't exist.
// File databases use WAL mode.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == Memory {
		// Each in-memory Store gets its own named database; the shared cache
		// lets every pooled connection see it.
		connStr = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == Memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != Memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
// seq keeps insertion order, which is the order of unsorted listings and
// the tie-break of sorted ones. name_folded is the lower-cased name used for
// matching and ordering.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		name_folded TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		dob TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_patients_name ON patients(name_folded);
	CREATE INDEX IF NOT EXISTS idx_patients_dob ON patients(dob);

	CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		password_hash BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SavePatients stores records, returning the count of new rows.
// Records whose id is already stored are ignored.
func (s *Store) SavePatients(records []patient.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(records) == 0 {
		return 0, nil
	}

	stmt, err := s.db.Prepare(`
		INSERT OR IGNORE INTO patients (id, name, name_folded, email, dob)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	newCount := 0
	for _, r := range records {
		result, err := stmt.Exec(r.ID, r.Name, strings.ToLower(r.Name), r.Email, r.DateOfBirth)
		if err != nil {
			return newCount, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return newCount, err
		}
		if affected > 0 {
			newCount++
		}
	}
	return newCount, nil
}

// CountPatients returns the number of stored patients.
func (s *Store) CountPatients() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM patients").Scan(&n)
	return n, err
}

// ListPatients returns every patient in insertion order.
func (s *Store) ListPatients() ([]patient.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPatients(`SELECT id, name, email, dob FROM patients ORDER BY seq`)
}

// FilterPatients returns patients whose name contains name (case-insensitive)
// and who were born on or before bornOnOrBefore. Blank criteria match
// everything; a date criterion never matches a patient without a date.
func (s *Store) FilterPatients(name string, bornOnOrBefore patient.Date) ([]patient.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folded := strings.ToLower(strings.TrimSpace(name))
	dob := bornOnOrBefore.String()
	return s.queryPatients(`
		SELECT id, name, email, dob FROM patients
		WHERE (? = '' OR instr(name_folded, ?) > 0)
		  AND (? = '' OR (dob != '' AND dob <= ?))
		ORDER BY seq
	`, folded, folded, dob, dob)
}

// SortPatients returns every patient ordered by key. Ties keep insertion
// order and patients without a date of birth sort last.
func (s *Store) SortPatients(key patient.SortKey) ([]patient.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var order string
	switch key {
	case patient.SortName:
		order = "name_folded, seq"
	case patient.SortDateOfBirth:
		order = "dob = '', dob, seq"
	default:
		order = "seq"
	}
	return s.queryPatients(`SELECT id, name, email, dob FROM patients ORDER BY ` + order)
}

// GetPatient returns the patient with id, or ErrNotFound.
func (s *Store) GetPatient(id string) (patient.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r patient.Record
	err := s.db.QueryRow(`SELECT id, name, email, dob FROM patients WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Email, &r.DateOfBirth)
	if errors.Is(err, sql.ErrNoRows) {
		return patient.Record{}, ErrNotFound
	}
	return r, err
}

// CreateUser stores an account. An existing email returns ErrUserExists.
func (s *Store) CreateUser(email string, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO users (email, password_hash, created_at) VALUES (?, ?, ?)`,
		email, passwordHash, time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserExists
	}
	return nil
}

// PasswordHash returns the stored hash for email, or ErrNotFound.
func (s *Store) PasswordHash(email string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hash []byte
	err := s.db.QueryRow(`SELECT password_hash FROM users WHERE email = ?`, email).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return hash, err
}

// queryPatients executes a query and scans the rows into records.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryPatients(query string, args ...any) ([]patient.Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []patient.Record{}
	for rows.Next() {
		var r patient.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.DateOfBirth); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
