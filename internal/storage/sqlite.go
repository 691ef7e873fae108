// Package storage persists component status and transition history in
// SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ulvio/heimdall/internal/component"
)

const schema = `
CREATE TABLE IF NOT EXISTS components (
    name         TEXT PRIMARY KEY,
    kind         TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    grp          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS status (
    name            TEXT PRIMARY KEY,
    state           TEXT NOT NULL CHECK(state IN ('unknown', 'up', 'down')),
    since           TEXT NOT NULL,
    last_checked    TEXT NOT NULL,
    last_latency_ms INTEGER NOT NULL DEFAULT 0,
    detail          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transitions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id   TEXT NOT NULL,
    name       TEXT NOT NULL,
    from_state TEXT NOT NULL,
    to_state   TEXT NOT NULL,
    at         TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transitions_name ON transitions(name);
CREATE INDEX IF NOT EXISTS idx_transitions_name_at ON transitions(name, at DESC);
`

// DB wraps a SQLite database holding the status board and the
// append-only transition history.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the
// schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InitComponents records the configured component definitions so the
// history keeps its presentation metadata across restarts. Rows for
// components no longer configured are left untouched.
func (d *DB) InitComponents(ctx context.Context, defs []component.Definition) error {
	for _, def := range defs {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO components (name, kind, display_name, grp) VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET kind=excluded.kind, display_name=excluded.display_name, grp=excluded.grp`,
			def.Name, string(def.Kind), def.DisplayName, def.Group,
		)
		if err != nil {
			return fmt.Errorf("recording component %q: %w", def.Name, err)
		}
	}
	return nil
}

// UpsertStatus writes the current status row for a component.
func (d *DB) UpsertStatus(ctx context.Context, st component.Status) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO status (name, state, since, last_checked, last_latency_ms, detail)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			state=excluded.state,
			since=excluded.since,
			last_checked=excluded.last_checked,
			last_latency_ms=excluded.last_latency_ms,
			detail=excluded.detail`,
		st.Name,
		string(st.State),
		formatTime(st.Since),
		formatTime(st.LastChecked),
		st.LastLatency.Milliseconds(),
		st.Detail,
	)
	if err != nil {
		return fmt.Errorf("upserting status for %q: %w", st.Name, err)
	}
	return nil
}

// AppendTransition appends one transition to the history. Transitions
// are never updated or deleted here; retention is an external concern.
func (d *DB) AppendTransition(ctx context.Context, tr component.Transition) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO transitions (event_id, name, from_state, to_state, at, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tr.EventID,
		tr.Name,
		string(tr.From),
		string(tr.To),
		formatTime(tr.At),
		tr.Detail,
	)
	if err != nil {
		return fmt.Errorf("appending transition for %q: %w", tr.Name, err)
	}
	return nil
}

// CurrentStatus returns the persisted status of every component, sorted
// by name.
func (d *DB) CurrentStatus(ctx context.Context) ([]component.Status, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT name, state, since, last_checked, last_latency_ms, detail
		FROM status ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying current status: %w", err)
	}
	defer rows.Close()
	return scanStatuses(rows)
}

// LatestStatus returns the persisted status of one component, or nil if
// it has never been recorded.
func (d *DB) LatestStatus(ctx context.Context, name string) (*component.Status, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT name, state, since, last_checked, last_latency_ms, detail
		FROM status WHERE name = ?`, name)
	st, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying status for %q: %w", name, err)
	}
	return st, nil
}

// History returns the transitions of one component ordered oldest
// first. A zero since means no lower bound; limit <= 0 means no limit.
func (d *DB) History(ctx context.Context, name string, since time.Time, limit int) ([]component.Transition, error) {
	query := `
		SELECT event_id, name, from_state, to_state, at, detail
		FROM transitions WHERE name = ?`
	args := []any{name}
	if !since.IsZero() {
		query += ` AND at >= ?`
		args = append(args, formatTime(since))
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history for %q: %w", name, err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// RecentTransitions returns the newest transitions of one component,
// newest first, capped at limit.
func (d *DB) RecentTransitions(ctx context.Context, name string, limit int) ([]component.Transition, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT event_id, name, from_state, to_state, at, detail
		FROM transitions WHERE name = ? ORDER BY id DESC LIMIT ?`,
		name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent transitions for %q: %w", name, err)
	}
	defer rows.Close()
	return scanTransitions(rows)
}

// UptimePercent returns the share of wall time the component spent up
// across its last `window` transitions, or 0 if it has no history.
func (d *DB) UptimePercent(ctx context.Context, name string, window int) (float64, error) {
	trs, err := d.RecentTransitions(ctx, name, window)
	if err != nil {
		return 0, err
	}
	if len(trs) == 0 {
		return 0, nil
	}

	// trs is newest-first: walk backward through time, crediting the
	// span each state was held.
	var up, total time.Duration
	end := time.Now()
	for _, tr := range trs {
		span := end.Sub(tr.At)
		if span < 0 {
			span = 0
		}
		total += span
		if tr.To == component.StateUp {
			up += span
		}
		end = tr.At
	}
	if total == 0 {
		return 0, nil
	}
	return float64(up) / float64(total) * 100, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Fallback to RFC3339 without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
	}
	return t, nil
}

func scanStatus(row scanner) (*component.Status, error) {
	var st component.Status
	var state, since, lastChecked string
	var latencyMs int64
	if err := row.Scan(&st.Name, &state, &since, &lastChecked, &latencyMs, &st.Detail); err != nil {
		return nil, err
	}
	st.State = component.State(state)
	st.LastLatency = time.Duration(latencyMs) * time.Millisecond

	var err error
	if st.Since, err = parseTime(since); err != nil {
		return nil, err
	}
	if st.LastChecked, err = parseTime(lastChecked); err != nil {
		return nil, err
	}
	return &st, nil
}

func scanStatuses(rows *sql.Rows) ([]component.Status, error) {
	var statuses []component.Status
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning status row: %w", err)
		}
		statuses = append(statuses, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status rows: %w", err)
	}
	return statuses, nil
}

func scanTransitions(rows *sql.Rows) ([]component.Transition, error) {
	var trs []component.Transition
	for rows.Next() {
		var tr component.Transition
		var from, to, at string
		if err := rows.Scan(&tr.EventID, &tr.Name, &from, &to, &at, &tr.Detail); err != nil {
			return nil, fmt.Errorf("scanning transition row: %w", err)
		}
		tr.From = component.State(from)
		tr.To = component.State(to)
		var err error
		if tr.At, err = parseTime(at); err != nil {
			return nil, err
		}
		trs = append(trs, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transition rows: %w", err)
	}
	return trs, nil
}
