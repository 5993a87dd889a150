// Package journal records VM runs in a SQLite database.
package journal

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/mol/vm"
)

// timeLayout is fixed-width so that stored timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound indicates the requested run doesn't exist.
var ErrRunNotFound = errors.New("run not found")

// Entry is one recorded run.
type Entry struct {
	ID       uuid.UUID
	Program  string // path of the bytecode file
	Digest   string // sha256 of the instruction stream, hex
	Status   string // "completed" or "faulted"
	Halted   bool
	Fault    string // fault message, empty when completed
	Steps    uint64
	Started  time.Time
	Finished time.Time
}

// Duration returns how long the run took.
func (e Entry) Duration() time.Duration {
	return e.Finished.Sub(e.Started)
}

// NewEntry builds an entry from a finished run.
func NewEntry(program string, code []byte, outcome vm.Outcome, started, finished time.Time) Entry {
	e := Entry{
		Program:  program,
		Digest:   Digest(code),
		Status:   outcome.Status.String(),
		Halted:   outcome.Halted,
		Steps:    outcome.Steps,
		Started:  started,
		Finished: finished,
	}
	if outcome.Fault != nil {
		e.Fault = outcome.Fault.Error()
	}
	return e
}

// Digest returns the hex sha256 of code.
func Digest(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}

// Journal is a run log backed by SQLite.
type Journal struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
	mu   sync.Mutex
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id       TEXT PRIMARY KEY,
		program  TEXT NOT NULL,
		digest   TEXT NOT NULL,
		status   TEXT NOT NULL,
		halted   INTEGER NOT NULL,
		fault    TEXT NOT NULL,
		steps    INTEGER NOT NULL,
		started  TEXT NOT NULL,
		finished TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Journal{
		db:   db,
		path: path,
		log:  commonlog.GetLogger("mol.journal"),
	}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record stores e, assigning a new ID when e.ID is zero, and returns the ID.
func (j *Journal) Record(e Entry) (uuid.UUID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	_, err := j.db.Exec(
		`INSERT INTO runs (id, program, digest, status, halted, fault, steps, started, finished)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Program, e.Digest, e.Status, e.Halted, e.Fault, int64(e.Steps),
		e.Started.UTC().Format(timeLayout), e.Finished.UTC().Format(timeLayout),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("recording run: %w", err)
	}

	j.log.Debugf("recorded run %s of %s in %s: %s", e.ID, e.Program, j.path, e.Status)
	return e.ID, nil
}

const selectRuns = `SELECT id, program, digest, status, halted, fault, steps, started, finished FROM runs`

// List returns the most recent runs first. A limit of zero or less returns
// every run.
func (j *Journal) List(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	query := selectRuns + " ORDER BY started DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return entries, nil
}

// Get returns a single run.
func (j *Journal) Get(id uuid.UUID) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	row := j.db.QueryRow(selectRuns+" WHERE id = ?", id.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrRunNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                 Entry
		id                string
		steps             int64
		started, finished string
	)
	err := s.Scan(&id, &e.Program, &e.Digest, &e.Status, &e.Halted, &e.Fault, &steps, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("reading run: %w", err)
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return e, fmt.Errorf("reading run id %q: %w", id, err)
	}
	e.Steps = uint64(steps)
	if e.Started, err = time.Parse(timeLayout, started); err != nil {
		return e, fmt.Errorf("reading run %s: %w", id, err)
	}
	if e.Finished, err = time.Parse(timeLayout, finished); err != nil {
		return e, fmt.Errorf("reading run %s: %w", id, err)
	}
	return e, nil
}
