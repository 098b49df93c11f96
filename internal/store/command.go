package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/ptzfollow/internal/ptz"
)

// CommandRecord is one attempted PTZ command.
type CommandRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Kind      string    `json:"kind"`
	Direction string    `json:"direction,omitempty"`
	Speed     int       `json:"speed,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// NewCommandRecord describes cmd and the outcome of sending it.
func NewCommandRecord(sessionID string, cmd ptz.Command, sendErr error, at time.Time) *CommandRecord {
	rec := &CommandRecord{
		SessionID: sessionID,
		Kind:      cmd.Kind.String(),
		Direction: string(cmd.Direction),
		Speed:     cmd.Speed,
		OK:        sendErr == nil,
		SentAt:    at.UTC(),
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	return rec
}

// CommandRepository records PTZ commands.
type CommandRepository struct {
	db *sql.DB
}

// Commands returns the command repository.
func (s *Store) Commands() *CommandRepository {
	return &CommandRepository{db: s.db}
}

// Record inserts c and sets its ID. An empty SessionID stores a manual
// command outside any session.
func (r *CommandRepository) Record(c *CommandRecord) error {
	var session any
	if c.SessionID != "" {
		session = c.SessionID
	}
	if c.SentAt.IsZero() {
		c.SentAt = time.Now().UTC()
	}

	res, err := r.db.Exec(
		`INSERT INTO commands (session_id, kind, direction, speed, ok, error, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session, c.Kind, c.Direction, c.Speed, c.OK, c.Error, c.SentAt,
	)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

// ListBySession returns a session's commands in send order.
func (r *CommandRepository) ListBySession(sessionID string) ([]*CommandRecord, error) {
	return r.query(
		`SELECT id, session_id, kind, direction, speed, ok, error, sent_at
		 FROM commands WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
}

// Recent returns up to limit commands, newest first.
func (r *CommandRepository) Recent(limit int) ([]*CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(
		`SELECT id, session_id, kind, direction, speed, ok, error, sent_at
		 FROM commands ORDER BY id DESC LIMIT ?`,
		limit,
	)
}

func (r *CommandRepository) query(q string, args ...any) ([]*CommandRecord, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CommandRecord
	for rows.Next() {
		c := &CommandRecord{}
		var session sql.NullString
		if err := rows.Scan(&c.ID, &session, &c.Kind, &c.Direction, &c.Speed, &c.OK, &c.Error, &c.SentAt); err != nil {
			return nil, err
		}
		c.SessionID = session.String
		out = append(out, c)
	}
	return out, rows.Err()
}
