// Package sqlitesink implements an optional persistent Audit Sink backing
// store, trimmed from the teacher's internal/trace.SQLiteStore down to the
// one table this spec's audit data model needs (SPEC_FULL.md §4.7): no
// sessions/agents/agent_versions/approvals/violations tables, no hash
// chain -- those belong to the teacher's broader product, not an audit
// trail of tool-call decisions.
package sqlitesink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/toolprint/superego/internal/audit"
	"github.com/toolprint/superego/internal/decision"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id                 TEXT PRIMARY KEY,
	timestamp          DATETIME NOT NULL,
	tool_name          TEXT NOT NULL,
	session_id         TEXT,
	agent_id           TEXT,
	cwd                TEXT,
	parameters         TEXT,
	action             TEXT NOT NULL,
	reason             TEXT,
	rule_id            TEXT,
	confidence         REAL,
	processing_time_ms INTEGER,
	rule_matches       TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_session ON audit_entries(session_id);
CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action);
`

// Store is a SQLite-backed, write-through companion to the in-memory
// audit.Sink ring: every Write call persists one Entry so history survives
// past the ring's bounded capacity. Enabled only when the config file's
// audit.sqlite_path is set (see cmd/superego); the ring remains the
// sole source for Recent/Stats, Store is query-only via ListBySession.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite audit store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write persists one audit.Entry. cmd/superego calls it from the
// audit.Sink persist callback (Sink.SetPersistFunc), so every entry the
// ring stores also lands in the durable store.
func (s *Store) Write(entry audit.Entry) error {
	params, err := json.Marshal(entry.Request.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	matches, err := json.Marshal(entry.RuleMatches)
	if err != nil {
		return fmt.Errorf("marshal rule matches: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO audit_entries (id, timestamp, tool_name, session_id, agent_id, cwd,
			parameters, action, reason, rule_id, confidence, processing_time_ms, rule_matches)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.Request.ToolName, nullStr(entry.Request.SessionID),
		nullStr(entry.Request.AgentID), nullStr(entry.Request.Cwd), string(params),
		string(entry.Decision.Action), nullStr(entry.Decision.Reason), nullStr(entry.Decision.RuleID),
		entry.Decision.Confidence, entry.Decision.ProcessingTimeMs, string(matches),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListBySession returns up to limit entries recorded for sessionID, newest
// first -- the one query this spec's audit trail needs beyond the ring's
// Recent/Stats.
func (s *Store) ListBySession(sessionID string, limit int) ([]audit.Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, tool_name, session_id, agent_id, cwd, parameters,
			action, reason, rule_id, confidence, processing_time_ms, rule_matches
		FROM audit_entries WHERE session_id = ? ORDER BY timestamp DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e        audit.Entry
			sid, aid sql.NullString
			cwd      sql.NullString
			reason   sql.NullString
			ruleID   sql.NullString
			params   string
			matches  string
			action   string
			ts       time.Time
		)
		if err := rows.Scan(&e.ID, &ts, &e.Request.ToolName, &sid, &aid, &cwd, &params,
			&action, &reason, &ruleID, &e.Decision.Confidence, &e.Decision.ProcessingTimeMs, &matches); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp = ts
		e.Request.SessionID = sid.String
		e.Request.AgentID = aid.String
		e.Request.Cwd = cwd.String
		e.Decision.Action = decision.Action(action)
		e.Decision.Reason = reason.String
		e.Decision.RuleID = ruleID.String
		if params != "" {
			_ = json.Unmarshal([]byte(params), &e.Request.Parameters)
		}
		if matches != "" {
			_ = json.Unmarshal([]byte(matches), &e.RuleMatches)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
