// Package ledger is the crash-recoverable auxiliary store (SPEC_FULL
// enrichment): a running process-wide daily-bankroll total and
// per-Task last-cycle bookkeeping, backed by SQLite in WAL mode. It is
// explicitly not a second canonical store: the Snapshot tree and the
// paper trade CSV remain the sole source of truth for what happened,
// per spec.md §4.4/§4.5. This ledger exists only so a crashed process
// can resume its daily cap accounting without replaying the whole
// snapshot tree. Grounded on the storage idiom of
// cmd/dualside-bot/production/storage/sqlite.go.
package ledger

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Ledger persists process-wide and per-task running state.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed Ledger at path,
// enabling WAL mode for concurrent readers alongside the writer.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("ledger: enable WAL: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	log.Printf("[Ledger] opened %s", path)
	return l, nil
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_committed (
		event_day TEXT PRIMARY KEY,
		committed_usd REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_cycles (
		station_code TEXT NOT NULL,
		event_day TEXT NOT NULL,
		last_cycle_at DATETIME NOT NULL,
		last_state TEXT NOT NULL,
		last_error TEXT,
		PRIMARY KEY (station_code, event_day)
	);
	`
	_, err := l.db.Exec(schema)
	return err
}

// CommittedForDayUSD returns the running total of dollars committed for
// eventDay. ForDay wraps it as a sizing.Ledger for one event day.
func (l *Ledger) CommittedForDayUSD(eventDay string) (float64, error) {
	var usd float64
	err := l.db.QueryRow(`SELECT committed_usd FROM daily_committed WHERE event_day = ?`, eventDay).Scan(&usd)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return usd, err
}

// AddCommitted adds deltaUSD to the running total for eventDay,
// creating the row if it doesn't exist yet.
func (l *Ledger) AddCommitted(eventDay string, deltaUSD float64) error {
	_, err := l.db.Exec(`
		INSERT INTO daily_committed (event_day, committed_usd, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(event_day) DO UPDATE SET committed_usd = committed_usd + ?, updated_at = ?`,
		eventDay, deltaUSD, time.Now(), deltaUSD, time.Now(),
	)
	return err
}

// RecordCycle upserts the last-seen state for one (station, event_day)
// task, for crash recovery and operator inspection.
func (l *Ledger) RecordCycle(stationCode, eventDay, state string, cycleErr error) error {
	var errText sql.NullString
	if cycleErr != nil {
		errText = sql.NullString{String: cycleErr.Error(), Valid: true}
	}
	_, err := l.db.Exec(`
		INSERT INTO task_cycles (station_code, event_day, last_cycle_at, last_state, last_error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(station_code, event_day) DO UPDATE SET
			last_cycle_at = ?, last_state = ?, last_error = ?`,
		stationCode, eventDay, time.Now(), state, errText,
		time.Now(), state, errText,
	)
	return err
}

// LastCycle reports the last recorded state for a task, if any.
type LastCycle struct {
	StationCode string
	EventDay    string
	At          time.Time
	State       string
	Error       string
}

// LastCycleFor returns the most recently recorded cycle state for a
// task, or ok=false if none has been recorded.
func (l *Ledger) LastCycleFor(stationCode, eventDay string) (LastCycle, bool, error) {
	var lc LastCycle
	var errText sql.NullString
	row := l.db.QueryRow(`
		SELECT station_code, event_day, last_cycle_at, last_state, last_error
		FROM task_cycles WHERE station_code = ? AND event_day = ?`,
		stationCode, eventDay,
	)
	err := row.Scan(&lc.StationCode, &lc.EventDay, &lc.At, &lc.State, &errText)
	if err == sql.ErrNoRows {
		return LastCycle{}, false, nil
	}
	if err != nil {
		return LastCycle{}, false, err
	}
	lc.Error = errText.String
	return lc, true, nil
}

// dayLedger adapts Ledger to sizing.Ledger for a fixed event day.
type dayLedger struct {
	l        *Ledger
	eventDay string
}

// ForDay returns a sizing.Ledger view scoped to one event day.
func (l *Ledger) ForDay(eventDay string) *dayLedger {
	return &dayLedger{l: l, eventDay: eventDay}
}

// CommittedTodayUSD satisfies sizing.Ledger without importing the
// sizing package here, keeping ledger a leaf dependency.
func (d *dayLedger) CommittedTodayUSD() float64 {
	usd, err := d.l.CommittedForDayUSD(d.eventDay)
	if err != nil {
		log.Printf("[Ledger] CommittedTodayUSD(%s) failed, treating as 0: %v", d.eventDay, err)
		return 0
	}
	return usd
}
