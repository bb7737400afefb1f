// ABOUTME: Session log storage operations for SQLite
// ABOUTME: Appends conversation turns and reads sessions back in order
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harper/ragchat/internal/models"
)

// SessionStore handles session and turn persistence. The log is append-only:
// turns are never updated or removed once written.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new SessionStore
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// AppendTurns appends turns to the end of a session's log, creating the
// session on first write. All turns are written or none are.
func (s *SessionStore) AppendTurns(sessionID string, turns []models.ConversationTurn) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if len(turns) == 0 {
		return nil
	}

	first, last := turns[0].Timestamp.UTC(), turns[len(turns)-1].Timestamp.UTC()
	if first.IsZero() {
		first = time.Now().UTC()
	}
	if last.IsZero() {
		last = first
	}

	return s.db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (id, title, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				updated_at = excluded.updated_at,
				title = CASE WHEN sessions.title IS NULL OR sessions.title = ''
					THEN excluded.title ELSE sessions.title END
		`, sessionID, titleFor(turns), first, last)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}

		var next int
		err = tx.QueryRow(`SELECT COALESCE(MAX(seq), -1) + 1 FROM session_turns WHERE session_id = ?`, sessionID).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to read session position: %w", err)
		}

		for i, turn := range turns {
			var kind, filename, ref sql.NullString
			var size sql.NullInt64
			if a := turn.Attachment; a != nil {
				kind = sql.NullString{String: string(a.Kind), Valid: true}
				filename = sql.NullString{String: a.Filename, Valid: a.Filename != ""}
				ref = sql.NullString{String: a.PayloadRef, Valid: true}
				size = sql.NullInt64{Int64: int64(a.Size), Valid: true}
			}

			ts := turn.Timestamp.UTC()
			if ts.IsZero() {
				ts = last
			}

			_, err := tx.Exec(`
				INSERT INTO session_turns (id, session_id, seq, role, text,
					attachment_kind, attachment_filename, attachment_ref, attachment_size, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, turn.TurnID, sessionID, next+i, string(turn.Role), turn.Text,
				kind, filename, ref, size, ts)
			if err != nil {
				return fmt.Errorf("failed to insert turn %s: %w", turn.TurnID, err)
			}
		}
		return nil
	})
}

// GetSession returns the full persisted session, or nil if it does not exist
func (s *SessionStore) GetSession(sessionID string) (*models.Session, error) {
	session := &models.Session{SessionID: sessionID}
	err := s.db.QueryRow(`SELECT created_at, updated_at FROM sessions WHERE id = ?`, sessionID).
		Scan(&session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	turns, err := s.turns(sessionID)
	if err != nil {
		return nil, err
	}
	session.Turns = turns
	return session, nil
}

func (s *SessionStore) turns(sessionID string) ([]models.ConversationTurn, error) {
	rows, err := s.db.Query(`
		SELECT id, role, text, attachment_kind, attachment_filename, attachment_ref, attachment_size, created_at
		FROM session_turns
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := []models.ConversationTurn{}
	for rows.Next() {
		var (
			turn                models.ConversationTurn
			role                string
			kind, filename, ref sql.NullString
			size                sql.NullInt64
		)
		if err := rows.Scan(&turn.TurnID, &role, &turn.Text, &kind, &filename, &ref, &size, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = models.Role(role)
		if kind.Valid {
			turn.Attachment = &models.AttachmentRef{
				Kind:       models.AttachmentKind(kind.String),
				Filename:   filename.String,
				PayloadRef: ref.String,
				Size:       int(size.Int64),
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// ListSessions returns summaries of all sessions, most recently updated first
func (s *SessionStore) ListSessions() ([]models.SessionSummary, error) {
	rows, err := s.db.Query(`
		SELECT s.id, COALESCE(s.title, ''), s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM session_turns t WHERE t.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC, s.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []models.SessionSummary{}
	for rows.Next() {
		var sum models.SessionSummary
		if err := rows.Scan(&sum.SessionID, &sum.Title, &sum.CreatedAt, &sum.UpdatedAt, &sum.TurnCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// titleFor picks the text of the first human turn in the batch
func titleFor(turns []models.ConversationTurn) string {
	for _, turn := range turns {
		if turn.Role == models.RoleHuman {
			return turn.Text
		}
	}
	return ""
}
