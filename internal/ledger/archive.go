package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"scenecraft/internal/logging"
	"scenecraft/internal/types"

	_ "modernc.org/sqlite"
)

// Archive is the durable SQLite store behind the ledger's in-memory window.
// Turns evicted from memory by the per-session cap stay queryable here.
type Archive struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// OpenArchive opens (or creates) the archive database at the given path.
func OpenArchive(path string) (*Archive, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	a := &Archive{db: db, path: path}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// initialize creates the required tables.
func (a *Archive) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		session_id  TEXT NOT NULL,
		turn_number INTEGER NOT NULL,
		prompt      TEXT NOT NULL,
		success     INTEGER NOT NULL,
		error       TEXT,
		iterations  INTEGER NOT NULL DEFAULT 0,
		turn_json   TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, turn_number)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return nil
}

// StoreTurn archives one turn. Uses INSERT OR IGNORE so re-archiving the
// same turn is idempotent.
func (a *Archive) StoreTurn(turn *types.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, err = a.db.Exec(
		`INSERT OR IGNORE INTO turns (session_id, turn_number, prompt, success, error, iterations, turn_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.SessionID, turn.Number, turn.Prompt, boolToInt(turn.Success), turn.Error, turn.Iterations, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to archive turn: %w", err)
	}

	logging.LedgerDebug("archived turn %s/%d", turn.SessionID, turn.Number)
	return nil
}

// SessionTurns retrieves up to limit archived turns of a session, oldest
// first. A non-positive limit retrieves everything.
func (a *Archive) SessionTurns(sessionID string, limit int) ([]types.Turn, error) {
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 is unbounded
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(
		`SELECT turn_json FROM turns WHERE session_id = ? ORDER BY turn_number ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived turns: %w", err)
	}
	defer rows.Close()

	var turns []types.Turn
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t types.Turn
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			// A corrupt row should not hide the rest of the history.
			logging.Get(logging.CategoryLedger).Warn("skipping corrupt archived turn in %s: %v", sessionID, err)
			continue
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Sessions returns every session id in the archive, ordered by first turn.
func (a *Archive) Sessions() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(`SELECT session_id FROM turns GROUP BY session_id ORDER BY MIN(created_at)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SessionCount returns the number of archived turns for a session.
func (a *Archive) SessionCount(sessionID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM turns WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
