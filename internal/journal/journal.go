// Package journal keeps a SQLite log of time sync attempts.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tellSlater/greeksummerlight/internal/calendar"
	"github.com/tellSlater/greeksummerlight/internal/clocksource"

	_ "modernc.org/sqlite"
)

const writeTimeout = 5 * time.Second

// Entry is one recorded sync attempt.
type Entry struct {
	ID         int64
	RecordedAt time.Time     // host wall clock
	Mono       time.Duration // monotonic reading of the attempt
	OK         bool
	Epoch      int64 // authority time, zero on failure
	Correction int64 // seconds
	Error      string
}

// Describe renders the entry for a terminal, with the age relative to now.
func (e Entry) Describe(now time.Time) string {
	age := humanize.RelTime(e.RecordedAt, now, "ago", "from now")
	if !e.OK {
		return fmt.Sprintf("%-14s FAILED  %s", age, e.Error)
	}
	return fmt.Sprintf("%-14s ok      %sZ  correction %ss",
		age, calendar.FromEpoch(e.Epoch), humanize.Comma(e.Correction))
}

// Store is the journal database. It implements clocksource.Observer.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ clocksource.Observer = (*Store)(nil)

// Open opens (or creates) the journal at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS syncs (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at  TEXT NOT NULL,
		mono_ns      INTEGER NOT NULL,
		ok           INTEGER NOT NULL,
		epoch        INTEGER NOT NULL DEFAULT 0,
		correction_s INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_syncs_ok ON syncs(ok, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ObserveSync records ev. Write failures are logged; the clock must not
// depend on the journal.
func (s *Store) ObserveSync(ev clocksource.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.Record(ctx, ev); err != nil {
		s.logger.Warn("journal write failed", "error", err)
	}
}

// Record inserts ev and returns its row id.
func (s *Store) Record(ctx context.Context, ev clocksource.Event) (int64, error) {
	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO syncs (recorded_at, mono_ns, ok, epoch, correction_s, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.now().UTC().Format(time.RFC3339Nano), int64(ev.Mono), ev.OK, ev.Epoch, ev.Correction, msg,
	)
	if err != nil {
		return 0, fmt.Errorf("insert sync: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, mono_ns, ok, epoch, correction_s, error
		 FROM syncs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query syncs: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// LastSuccess returns the newest successful entry. ok is false if there is
// none.
func (s *Store) LastSuccess(ctx context.Context) (e Entry, ok bool, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, mono_ns, ok, epoch, correction_s, error
		 FROM syncs WHERE ok = 1 ORDER BY id DESC LIMIT 1`)
	if err != nil {
		return Entry{}, false, fmt.Errorf("query syncs: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[0], true, nil
}

// Counts returns the number of successful and failed attempts on record.
func (s *Store) Counts(ctx context.Context) (ok, failed int64, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(ok), 0), COALESCE(SUM(1 - ok), 0) FROM syncs`)
	if err := row.Scan(&ok, &failed); err != nil {
		return 0, 0, fmt.Errorf("count syncs: %w", err)
	}
	return ok, failed, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			at   string
			mono int64
		)
		if err := rows.Scan(&e.ID, &at, &mono, &e.OK, &e.Epoch, &e.Correction, &e.Error); err != nil {
			return nil, fmt.Errorf("scan sync: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("sync %d: recorded_at %q: %w", e.ID, at, err)
		}
		e.RecordedAt = t
		e.Mono = time.Duration(mono)
		out = append(out, e)
	}
	return out, rows.Err()
}
