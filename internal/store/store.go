package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"grantwatch/internal/grant"
)

// Store wraps SQLite access for delivered-grant history, run logs and
// runtime settings. The pipeline is the only writer; run-level mutual
// exclusion lives there, not here.
type Store struct {
	db *sql.DB
}

// HistoryEntry records one delivered grant. Created once per fingerprint,
// never updated.
type HistoryEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title"`
	Organizer   string    `json:"organizer"`
	AmountText  string    `json:"amount"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// RunLog is one appended row per pipeline invocation.
type RunLog struct {
	RunAt           time.Time `json:"run_at"`
	CandidatesFound int       `json:"candidates_found"`
	NewCount        int       `json:"new_count"`
	Status          string    `json:"status"`
}

// Stats is the read-only view served by the stats command.
type Stats struct {
	TotalHistoryEntries int64      `json:"total_history_entries"`
	LastRunAt           *time.Time `json:"last_run_at"`
	LastRunNewCount     int        `json:"last_run_new_count"`
	LastRunStatus       string     `json:"last_run_status"`
}

// Default thresholds, persisted on first open.
const (
	DefaultMinAmount       = 5_000_000
	DefaultMinDeadlineDays = 14
)

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenOrRecover opens the store, moving an unreadable database file aside and
// starting over empty. Losing dedup state means duplicate notifications on the
// next run, which beats refusing to notify at all.
func OpenOrRecover(path string) (*Store, error) {
	s, err := Open(path)
	if err == nil {
		return s, nil
	}
	backup := path + ".corrupt"
	if renameErr := os.Rename(path, backup); renameErr != nil {
		return nil, err
	}
	log.Printf("store: unreadable database moved to %s: %v (starting with empty history)", backup, err)
	return Open(path)
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sent_grants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			organizer TEXT,
			amount TEXT,
			recorded_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_at TIMESTAMP,
			candidates_found INTEGER,
			new_count INTEGER,
			status TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			min_amount INTEGER NOT NULL,
			min_deadline_days INTEGER NOT NULL,
			updated_at TIMESTAMP
		);`,
		`INSERT OR IGNORE INTO app_settings(id, min_amount, min_deadline_days, updated_at)
			VALUES(1, ` + fmt.Sprint(DefaultMinAmount) + `, ` + fmt.Sprint(DefaultMinDeadlineDays) + `, CURRENT_TIMESTAMP);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot loads the full set of delivered fingerprints. The pipeline takes
// one snapshot at run start and commits against it at the end.
func (s *Store) Snapshot(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fingerprint FROM sent_grants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		seen[fp] = true
	}
	return seen, rows.Err()
}

// Contains answers a single membership query.
func (s *Store) Contains(ctx context.Context, fingerprint string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM sent_grants WHERE fingerprint = ?`, fingerprint)
	var one int
	switch err := row.Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, err
	}
}

// CommitBatch records a run's delivered fingerprints and its run log row in
// one transaction. Re-recording an already present fingerprint is a no-op.
func (s *Store) CommitBatch(ctx context.Context, entries []HistoryEntry, runLog RunLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO sent_grants(fingerprint, title, organizer, amount, recorded_at) VALUES(?,?,?,?,?)`,
			e.Fingerprint, e.Title, e.Organizer, e.AmountText, e.RecordedAt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_logs(run_at, candidates_found, new_count, status) VALUES(?,?,?,?)`,
		runLog.RunAt, runLog.CandidatesFound, runLog.NewCount, runLog.Status); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendRunLog records a run that did not commit any history (failed runs,
// zero-new runs).
func (s *Store) AppendRunLog(ctx context.Context, runLog RunLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_logs(run_at, candidates_found, new_count, status) VALUES(?,?,?,?)`,
		runLog.RunAt, runLog.CandidatesFound, runLog.NewCount, runLog.Status)
	return err
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sent_grants`)
	if err := row.Scan(&st.TotalHistoryEntries); err != nil {
		return st, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT run_at, new_count, status FROM run_logs ORDER BY id DESC LIMIT 1`)
	var runAt time.Time
	switch err := row.Scan(&runAt, &st.LastRunNewCount, &st.LastRunStatus); err {
	case nil:
		st.LastRunAt = &runAt
	case sql.ErrNoRows:
	default:
		return st, err
	}
	return st, nil
}

// ListHistory returns the most recently recorded entries.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, title, organizer, amount, recorded_at FROM sent_grants ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var organizer, amount sql.NullString
		if err := rows.Scan(&e.Fingerprint, &e.Title, &organizer, &amount, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Organizer = organizer.String
		e.AmountText = amount.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reset clears history and run logs. Administrative command only.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM sent_grants`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_logs`); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadThresholds reads the persisted filter criteria.
func (s *Store) LoadThresholds(ctx context.Context) (grant.Thresholds, error) {
	row := s.db.QueryRowContext(ctx, `SELECT min_amount, min_deadline_days FROM app_settings WHERE id = 1`)
	var th grant.Thresholds
	if err := row.Scan(&th.MinAmount, &th.MinDeadlineDays); err != nil {
		return grant.Thresholds{MinAmount: DefaultMinAmount, MinDeadlineDays: DefaultMinDeadlineDays}, err
	}
	return th, nil
}

// SaveThresholds persists updated filter criteria.
func (s *Store) SaveThresholds(ctx context.Context, th grant.Thresholds) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE app_settings SET min_amount = ?, min_deadline_days = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1`,
		th.MinAmount, th.MinDeadlineDays)
	return err
}

// Health returns err if the DB is not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
