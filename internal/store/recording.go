package store

import (
	"database/sql"
	"errors"
	"time"
)

// NoteEventKind discriminates recorded note events.
type NoteEventKind string

const (
	// NoteEventOn records a note onset.
	NoteEventOn NoteEventKind = "note_on"
	// NoteEventOff records a note release.
	NoteEventOff NoteEventKind = "note_off"
)

// SessionRecord represents one performance session.
type SessionRecord struct {
	ID        string
	StartedAt time.Time
	EndedAt   sql.NullTime
	Frames    int64
}

// NoteEvent represents one delivered note event within a session.
type NoteEvent struct {
	ID         int64
	SessionID  string
	Kind       NoteEventKind
	Voice      int
	Pitch      int
	Velocity   int
	OccurredAt time.Time
}

// SessionRepository provides persistence for sessions and their note streams.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start inserts a new session row.
func (r *SessionRepository) Start(id string, startedAt time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		id, startedAt,
	)
	return err
}

// End marks a session as finished and records its final frame count.
func (r *SessionRepository) End(id string, endedAt time.Time, frames int64) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, frames = ? WHERE id = ?`,
		endedAt, frames, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*SessionRecord, error) {
	rec := &SessionRecord{}

	err := r.db.QueryRow(
		`SELECT id, started_at, ended_at, frames FROM sessions WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.Frames)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return rec, nil
}

// List retrieves all sessions, most recent first.
func (r *SessionRepository) List() ([]*SessionRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, frames FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		rec := &SessionRecord{}
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.Frames); err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// AppendNote records one delivered note event for a session.
func (r *SessionRepository) AppendNote(ev *NoteEvent) error {
	result, err := r.db.Exec(
		`INSERT INTO note_events (session_id, kind, voice, pitch, velocity, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.SessionID, string(ev.Kind), ev.Voice, ev.Pitch, ev.Velocity, ev.OccurredAt,
	)
	if err != nil {
		return err
	}

	ev.ID, err = result.LastInsertId()
	return err
}

// NoteEvents retrieves the note stream of a session in playback order.
func (r *SessionRepository) NoteEvents(sessionID string) ([]*NoteEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, kind, voice, pitch, velocity, occurred_at
		 FROM note_events WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*NoteEvent
	for rows.Next() {
		ev := &NoteEvent{}
		var kind string

		err := rows.Scan(&ev.ID, &ev.SessionID, &kind, &ev.Voice, &ev.Pitch, &ev.Velocity, &ev.OccurredAt)
		if err != nil {
			return nil, err
		}

		ev.Kind = NoteEventKind(kind)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
