// Package history persists a journal of pairing attempts and link sessions
// in SQLite. The journal is observational only: nothing reads it on the hot
// path, and authorization tokens never touch it.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// schemaVersion is incremented when the schema changes. A version bump drops
// and recreates the journal tables; the journal is a log, not a system of
// record, so losing old rows is acceptable.
const schemaVersion = 1

// Pairing outcomes.
const (
	PairingOutcomeSuccess = "success"
	PairingOutcomeTimeout = "timeout"
	PairingOutcomeInvalid = "invalid_payload"
	PairingOutcomeStopped = "stopped"
	PairingOutcomeError   = "error"
)

// Link outcomes.
const (
	LinkOutcomeAuthorized  = "authorized"
	LinkOutcomeRejected    = "rejected"
	LinkOutcomeLoginFailed = "login_failed"
	LinkOutcomeError       = "error"
)

// Link modes: how the session authorized.
const (
	LinkModeIssued   = "issued"   // fresh token requested from the device
	LinkModeReplayed = "replayed" // previously issued token presented via login
)

// PairingRecord is one listener generation's outcome.
type PairingRecord struct {
	ID        int64     `json:"id"`
	Port      int       `json:"port"`
	Outcome   string    `json:"outcome"`
	Transport string    `json:"transport,omitempty"`
	PeerURL   string    `json:"peer_url,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// LinkRecord is one outward link's handshake outcome and lifetime.
type LinkRecord struct {
	ID           int64     `json:"id"`
	ConnectionID string    `json:"connection_id"`
	Endpoint     string    `json:"endpoint"`
	Mode         string    `json:"mode"`
	Outcome      string    `json:"outcome"`
	Detail       string    `json:"detail,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
}

// Journal is the SQLite-backed history store.
type Journal struct {
	db     *sql.DB
	dbPath string
}

// Open opens (or creates) the journal at path, creating parent directories
// as needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps writers from blocking the read endpoints
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("history journal opened")

	return &Journal{db: db, dbPath: path}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the journal's database file path.
func (j *Journal) Path() string {
	return j.dbPath
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT)`)
	if err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'")
	if err := row.Scan(&currentVersion); err != nil {
		currentVersion = 0
	}

	if currentVersion != 0 && currentVersion < schemaVersion {
		log.Info().
			Int("old_version", currentVersion).
			Int("new_version", schemaVersion).
			Msg("schema version changed, rebuilding history journal")

		_, _ = db.Exec("DROP TABLE IF EXISTS pairing_attempts")
		_, _ = db.Exec("DROP TABLE IF EXISTS link_sessions")
	}

	schema := `
		CREATE TABLE IF NOT EXISTS pairing_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			port INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			transport TEXT,
			peer_url TEXT,
			reason TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pairing_started ON pairing_attempts(started_at DESC);

		CREATE TABLE IF NOT EXISTS link_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			connection_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			mode TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT,
			connected_at TEXT NOT NULL,
			ended_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_link_connected ON link_sessions(connected_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	_, err = db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

// RecordPairing appends one pairing attempt.
func (j *Journal) RecordPairing(rec PairingRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO pairing_attempts (port, outcome, transport, peer_url, reason, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Port,
		rec.Outcome,
		rec.Transport,
		rec.PeerURL,
		rec.Reason,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.EndedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		log.Warn().Err(err).Msg("failed to record pairing attempt")
	}
	return err
}

// RecentPairings returns the newest pairing attempts, newest first.
func (j *Journal) RecentPairings(limit int) ([]PairingRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.Query(`
		SELECT id, port, outcome, transport, peer_url, reason, started_at, ended_at
		FROM pairing_attempts
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []PairingRecord
	for rows.Next() {
		var rec PairingRecord
		var startedAt, endedAt string
		if err := rows.Scan(&rec.ID, &rec.Port, &rec.Outcome, &rec.Transport, &rec.PeerURL, &rec.Reason, &startedAt, &endedAt); err != nil {
			continue
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		rec.EndedAt, _ = time.Parse(time.RFC3339, endedAt)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// RecordLink appends one link session with its handshake outcome.
func (j *Journal) RecordLink(rec LinkRecord) error {
	endedAt := sql.NullString{}
	if !rec.EndedAt.IsZero() {
		endedAt = sql.NullString{String: rec.EndedAt.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err := j.db.Exec(`
		INSERT INTO link_sessions (connection_id, endpoint, mode, outcome, detail, connected_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ConnectionID,
		rec.Endpoint,
		rec.Mode,
		rec.Outcome,
		rec.Detail,
		rec.ConnectedAt.UTC().Format(time.RFC3339),
		endedAt,
	)
	if err != nil {
		log.Warn().Err(err).Msg("failed to record link session")
	}
	return err
}

// MarkLinkClosed stamps ended_at on the newest still-open session for the
// connection. A connection with no open session is a no-op.
func (j *Journal) MarkLinkClosed(connectionID string, endedAt time.Time) error {
	_, err := j.db.Exec(`
		UPDATE link_sessions
		SET ended_at = ?
		WHERE id = (
			SELECT id FROM link_sessions
			WHERE connection_id = ? AND ended_at IS NULL
			ORDER BY id DESC
			LIMIT 1
		)`,
		endedAt.UTC().Format(time.RFC3339),
		connectionID,
	)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", connectionID).Msg("failed to close link session")
	}
	return err
}

// RecentLinks returns the newest link sessions, newest first.
func (j *Journal) RecentLinks(limit int) ([]LinkRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.Query(`
		SELECT id, connection_id, endpoint, mode, outcome, detail, connected_at, ended_at
		FROM link_sessions
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []LinkRecord
	for rows.Next() {
		var rec LinkRecord
		var connectedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ConnectionID, &rec.Endpoint, &rec.Mode, &rec.Outcome, &rec.Detail, &connectedAt, &endedAt); err != nil {
			continue
		}
		rec.ConnectedAt, _ = time.Parse(time.RFC3339, connectedAt)
		if endedAt.Valid {
			rec.EndedAt, _ = time.Parse(time.RFC3339, endedAt.String)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
