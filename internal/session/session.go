package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/cuerposonoro/internal/config"
	"github.com/ayusman/cuerposonoro/internal/feature"
	"github.com/ayusman/cuerposonoro/internal/music"
	"github.com/ayusman/cuerposonoro/internal/pose"
)

// Snapshot is a read-only view of the session for monitoring clients.
type Snapshot struct {
	ID        string         `json:"id"`
	StartedAt time.Time      `json:"startedAt"`
	Enabled   bool           `json:"enabled"`
	Zone      int            `json:"zone"`
	Frames    uint64         `json:"frames"`
	Notes     uint64         `json:"notes"`
	Features  feature.Vector `json:"features,omitempty"`
}

// Session drives the full frame pipeline: feature extraction, zone
// classification, per-limb gesture triggering and mapping, with the resulting
// messages handed to the dispatcher. Process is the single writer of all
// pipeline state; SetEnabled and Snapshot may be called from other
// goroutines.
type Session struct {
	id        string
	startedAt time.Time

	dispatcher *Dispatcher

	mu        sync.Mutex
	enabled   bool
	extractor *feature.Extractor
	zones     *music.ZoneClassifier
	right     *music.Trigger
	left      *music.Trigger
	mapper    *music.Mapper
	lastTS    time.Time
	frames    uint64
	notes     uint64
	lastVec   feature.Vector
	closed    bool
}

// New creates a session wired to the dispatcher, ready to process frames.
func New(engine config.Engine, dispatcher *Dispatcher) *Session {
	return &Session{
		id:         uuid.NewString(),
		startedAt:  time.Now(),
		dispatcher: dispatcher,
		enabled:    true,
		extractor:  feature.NewExtractor(engine.ExtractorOptions()),
		zones:      music.NewZoneClassifier(engine.HysteresisMargin),
		right:      music.NewTrigger(engine.TriggerOptions(music.VoiceMelodyRight, music.MelodyRightBase)),
		left:       music.NewTrigger(engine.TriggerOptions(music.VoiceMelodyLeft, music.MelodyLeftBase)),
		mapper:     music.NewMapper(engine.MapperOptions()),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Process runs one frame through the pipeline and dispatches the resulting
// messages. Frames with non-increasing timestamps are rejected. Returns the
// extracted feature vector so callers can broadcast it to monitors.
func (s *Session) Process(frame pose.Frame) (feature.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if !s.enabled {
		return nil, nil
	}
	if !s.lastTS.IsZero() && !frame.Timestamp.After(s.lastTS) {
		return nil, fmt.Errorf("non-increasing frame timestamp %s (last %s)",
			frame.Timestamp.Format(time.RFC3339Nano), s.lastTS.Format(time.RFC3339Nano))
	}
	s.lastTS = frame.Timestamp

	vec := s.extractor.Extract(frame)

	zone, zoneChanged := s.zones.Classify(vec[feature.FeetCenterX])

	rightEvents := s.right.Update(frame.Timestamp, vec[feature.RightHandJerk], vec[feature.RightArmVelocity], vec[feature.RightHandY])
	leftEvents := s.left.Update(frame.Timestamp, vec[feature.LeftHandJerk], vec[feature.LeftArmVelocity], vec[feature.LeftHandY])

	limbs := []music.LimbState{
		{Voice: s.right.Voice(), Phase: s.right.Phase(), Events: rightEvents},
		{Voice: s.left.Voice(), Phase: s.left.Phase(), Events: leftEvents},
	}

	msgs := s.mapper.Map(vec, zone, zoneChanged, limbs)
	s.dispatcher.Dispatch(msgs)

	s.frames++
	for _, msg := range msgs {
		if msg.Kind == music.KindNoteOn {
			s.notes++
		}
	}
	s.lastVec = vec

	return vec, nil
}

// SetEnabled toggles frame processing. Disabling releases every sounding
// voice so nothing hangs while muted; pipeline state is reset so re-enabling
// starts from a clean slate.
func (s *Session) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enabled == enabled || s.closed {
		return
	}
	s.enabled = enabled
	if !enabled {
		s.dispatcher.Dispatch(s.releaseLocked())
	}
}

// Enabled reports whether the session is processing frames.
func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Snapshot returns the current monitoring view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.id,
		StartedAt: s.startedAt,
		Enabled:   s.enabled,
		Zone:      s.zones.Zone(),
		Frames:    s.frames,
		Notes:     s.notes,
		Features:  s.lastVec,
	}
}

// Close releases all voices and flushes the dispatcher. The session rejects
// frames afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	offs := s.releaseLocked()
	s.mu.Unlock()

	s.dispatcher.Dispatch(offs)
	s.dispatcher.Close()
}

// releaseLocked gathers the NoteOffs for every sounding voice and resets the
// pipeline state. Caller holds s.mu.
func (s *Session) releaseLocked() []music.ControlMessage {
	var msgs []music.ControlMessage
	for _, trig := range [...]*music.Trigger{s.right, s.left} {
		if ev, ok := trig.Release(); ok {
			msgs = append(msgs, music.ControlMessage{Kind: ev.Kind, Voice: ev.Voice, Pitch: ev.Pitch})
		}
	}
	msgs = append(msgs, s.mapper.ReleaseAll()...)

	s.extractor.Reset()
	s.zones.Reset()
	s.right.Reset()
	s.left.Reset()
	s.mapper.Reset()
	s.lastTS = time.Time{}

	return msgs
}
