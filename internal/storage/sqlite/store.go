// Package sqlite persists refinement slots in a SQLite database via the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"recursive-companion/internal/domain"
	"recursive-companion/internal/storage"
)

// Store is a SQLite implementation of SlotStore.
type Store struct {
	db *sql.DB
}

var _ storage.SlotStore = (*Store)(nil)

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS slots (
			session_id TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			slot_index INTEGER NOT NULL,
			query TEXT NOT NULL,
			draft TEXT NOT NULL,
			critiques TEXT NOT NULL,
			revisions TEXT NOT NULL,
			similarity_score REAL,
			stop_reason TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, agent_type, slot_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_session ON slots(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveSlot(ctx context.Context, rec *storage.SlotRecord) error {
	critiques, err := json.Marshal(rec.Critiques)
	if err != nil {
		return fmt.Errorf("failed to marshal critiques: %w", err)
	}
	revisions, err := json.Marshal(rec.Revisions)
	if err != nil {
		return fmt.Errorf("failed to marshal revisions: %w", err)
	}

	query := `INSERT OR REPLACE INTO slots
	          (session_id, agent_type, slot_index, query, draft, critiques,
	           revisions, similarity_score, stop_reason, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, rec.AgentType, rec.SlotIndex, rec.Query, rec.Draft,
		string(critiques), string(revisions), rec.SimilarityScore,
		string(rec.StopReason), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save slot: %w", err)
	}
	return nil
}

func (s *Store) ListSlots(ctx context.Context, sessionID, agentType string) ([]*storage.SlotRecord, error) {
	query := `SELECT session_id, agent_type, slot_index, query, draft,
	                 critiques, revisions, similarity_score, stop_reason, created_at
	          FROM slots WHERE session_id = ? AND agent_type = ?
	          ORDER BY slot_index`

	rows, err := s.db.QueryContext(ctx, query, sessionID, agentType)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var out []*storage.SlotRecord
	for rows.Next() {
		var rec storage.SlotRecord
		var critiquesJSON, revisionsJSON, stopReason string
		var score sql.NullFloat64
		var createdAt time.Time

		if err := rows.Scan(&rec.SessionID, &rec.AgentType, &rec.SlotIndex,
			&rec.Query, &rec.Draft, &critiquesJSON, &revisionsJSON,
			&score, &stopReason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}

		if err := json.Unmarshal([]byte(critiquesJSON), &rec.Critiques); err != nil {
			return nil, fmt.Errorf("failed to unmarshal critiques: %w", err)
		}
		if err := json.Unmarshal([]byte(revisionsJSON), &rec.Revisions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal revisions: %w", err)
		}
		if score.Valid {
			rec.SimilarityScore = &score.Float64
		}
		rec.StopReason = domain.StopReason(stopReason)
		rec.CreatedAt = createdAt

		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slots: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session slots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted slots: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
