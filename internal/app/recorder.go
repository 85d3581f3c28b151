package app

import (
	"log"
	"time"

	"github.com/ayusman/cuerposonoro/internal/music"
	"github.com/ayusman/cuerposonoro/internal/store"
)

// noteRecorder persists delivered note events to the session store. It runs
// on the dispatch worker, off the frame path.
type noteRecorder struct {
	repo      *store.SessionRepository
	sessionID string
}

// RecordNote implements session.NoteRecorder.
func (r *noteRecorder) RecordNote(msg music.ControlMessage) {
	kind := store.NoteEventOn
	if msg.Kind == music.KindNoteOff {
		kind = store.NoteEventOff
	}

	ev := &store.NoteEvent{
		SessionID:  r.sessionID,
		Kind:       kind,
		Voice:      int(msg.Voice),
		Pitch:      msg.Pitch,
		Velocity:   msg.Velocity,
		OccurredAt: time.Now(),
	}
	if err := r.repo.AppendNote(ev); err != nil {
		log.Printf("failed to record note event: %v", err)
	}
}
