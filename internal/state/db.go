// internal/state/db.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Fire states.
const (
	StateFired   = "fired" // no action configured
	StateSuccess = "success"
	StateFailure = "failure"
	StateTimeout = "timeout"
)

// FireRecord is one callback delivered by a trigger, plus the outcome of
// its action if one ran.
type FireRecord struct {
	ID          int64
	TriggerName string
	InstanceID  int64
	EventType   string // file_changed, timer, initial
	Sequence    uint64
	FilePath    string
	State       string
	FiredAt     time.Time
	DurationMs  int64
	ExitCode    int
	Error       string
	Output      string // truncated and scrubbed of secrets
}

// DB wraps the SQLite database connection for fire history.
type DB struct {
	db *sql.DB
}

const historySchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS fire_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trigger_name TEXT NOT NULL,
    instance_id INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    file_path TEXT NOT NULL,
    state TEXT NOT NULL,
    fired_at DATETIME NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    exit_code INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    output TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_fire_history_trigger ON fire_history(trigger_name);
CREATE INDEX IF NOT EXISTS idx_fire_history_state ON fire_history(state);
CREATE INDEX IF NOT EXISTS idx_fire_history_fired ON fire_history(fired_at);
`

// Open opens or creates a history database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Fires are recorded from several trigger goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			db.Close()
			return nil, fmt.Errorf("writing schema version: %w", err)
		}
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// RecordFire stores a fire record and returns its ID.
func (d *DB) RecordFire(rec FireRecord) (int64, error) {
	result, err := d.db.Exec(`
		INSERT INTO fire_history
		(trigger_name, instance_id, event_type, sequence, file_path, state,
		 fired_at, duration_ms, exit_code, error, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TriggerName, rec.InstanceID, rec.EventType, int64(rec.Sequence), rec.FilePath,
		rec.State, rec.FiredAt.UTC(), rec.DurationMs, rec.ExitCode, rec.Error, rec.Output,
	)
	if err != nil {
		return 0, fmt.Errorf("recording fire: %w", err)
	}
	return result.LastInsertId()
}

// GetHistory retrieves fires, newest first, filtered by trigger name and/or state.
func (d *DB) GetHistory(triggerName, state string, limit int) ([]FireRecord, error) {
	query := `SELECT id, trigger_name, instance_id, event_type, sequence, file_path, state,
		fired_at, duration_ms, exit_code, error, output FROM fire_history WHERE 1=1`
	var args []any

	if triggerName != "" {
		query += " AND trigger_name = ?"
		args = append(args, triggerName)
	}
	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}

	query += " ORDER BY fired_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []FireRecord
	for rows.Next() {
		var r FireRecord
		var seq int64
		var errStr, output sql.NullString
		if err := rows.Scan(&r.ID, &r.TriggerName, &r.InstanceID, &r.EventType, &seq,
			&r.FilePath, &r.State, &r.FiredAt, &r.DurationMs, &r.ExitCode,
			&errStr, &output); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Sequence = uint64(seq)
		r.Error = errStr.String
		r.Output = output.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastFire returns the most recent fire of a trigger. ok is false when the
// trigger never fired.
func (d *DB) LastFire(triggerName string) (rec FireRecord, ok bool, err error) {
	records, err := d.GetHistory(triggerName, "", 1)
	if err != nil {
		return FireRecord{}, false, err
	}
	if len(records) == 0 {
		return FireRecord{}, false, nil
	}
	return records[0], true, nil
}

// Counts returns the number of recorded fires per trigger.
func (d *DB) Counts() (map[string]int, error) {
	rows, err := d.db.Query("SELECT trigger_name, COUNT(*) FROM fire_history GROUP BY trigger_name")
	if err != nil {
		return nil, fmt.Errorf("counting fires: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// Cleanup removes fire records older than the specified number of days.
func (d *DB) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("retention must be at least one day")
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC()
	result, err := d.db.Exec("DELETE FROM fire_history WHERE fired_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up history: %w", err)
	}
	return result.RowsAffected()
}
