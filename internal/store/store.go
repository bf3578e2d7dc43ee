// Package store persists visitor profiles in SQLite so cumulative lead
// scoring survives restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/papaganelli/visitlog/pkg/leads"
)

// ErrNotFound is returned by Get for an unknown address.
var ErrNotFound = errors.New("profile not found")

// Store is a SQLite-backed profile table.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS visitor_profiles (
			address TEXT PRIMARY KEY,
			lead_score REAL NOT NULL,
			last_visit INTEGER NOT NULL, -- unix seconds
			profile TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_visitor_profiles_score ON visitor_profiles(lead_score)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts profiles in one transaction.
func (s *Store) Save(ctx context.Context, profiles []leads.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO visitor_profiles (address, lead_score, last_visit, profile, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			lead_score = excluded.lead_score,
			last_visit = excluded.last_visit,
			profile = excluded.profile,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range profiles {
		if p.Address == "" {
			continue
		}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal profile %s: %w", p.Address, err)
		}
		if _, err := stmt.ExecContext(ctx, p.Address, p.LeadScore, p.LastVisit.Unix(), string(data), now); err != nil {
			return fmt.Errorf("failed to save profile %s: %w", p.Address, err)
		}
	}
	return tx.Commit()
}

// Load returns every stored profile, highest lead score first.
func (s *Store) Load(ctx context.Context) ([]leads.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT profile FROM visitor_profiles ORDER BY lead_score DESC, address`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var out []leads.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns the profile of one address.
func (s *Store) Get(ctx context.Context, addr string) (leads.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT profile FROM visitor_profiles WHERE address = ?`, addr)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leads.Profile{}, ErrNotFound
	}
	return p, err
}

// Delete removes profiles last seen before cutoff and returns how many.
func (s *Store) Delete(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visitor_profiles WHERE last_visit < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete profiles: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(sc scanner) (leads.Profile, error) {
	var data string
	if err := sc.Scan(&data); err != nil {
		return leads.Profile{}, err
	}
	var p leads.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return leads.Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	return p, nil
}

// LoadInto restores every stored profile into ls.
func (s *Store) LoadInto(ctx context.Context, ls *leads.Store) (int, error) {
	profiles, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	ls.Restore(profiles)
	return len(profiles), nil
}
