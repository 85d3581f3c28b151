package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/cuerposonoro/internal/music"
)

// recordingSink captures every call in order and can be told to fail
// specific message kinds.
type recordingSink struct {
	mu       sync.Mutex
	calls    []string
	failOn   map[music.MessageKind]bool
	failured int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failOn: make(map[music.MessageKind]bool)}
}

func (s *recordingSink) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *recordingSink) fail(kind music.MessageKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[kind] {
		s.failured++
		return errors.New("sink down")
	}
	return nil
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingSink) SendParameter(name string, value float64) error {
	if err := s.fail(music.KindParameterUpdate); err != nil {
		return err
	}
	s.record(fmt.Sprintf("param %s=%.3f", name, value))
	return nil
}

func (s *recordingSink) SendNoteOn(voice music.Voice, pitch, velocity int) error {
	if err := s.fail(music.KindNoteOn); err != nil {
		return err
	}
	s.record(fmt.Sprintf("on %d %d %d", voice, pitch, velocity))
	return nil
}

func (s *recordingSink) SendNoteOff(voice music.Voice) error {
	if err := s.fail(music.KindNoteOff); err != nil {
		return err
	}
	s.record(fmt.Sprintf("off %d", voice))
	return nil
}

func (s *recordingSink) SendControlChange(voice music.Voice, name string, value float64) error {
	if err := s.fail(music.KindControlChange); err != nil {
		return err
	}
	s.record(fmt.Sprintf("cc %d %s=%.3f", voice, name, value))
	return nil
}

func (s *recordingSink) SendPitchBend(voice music.Voice, value float64) error {
	if err := s.fail(music.KindPitchBend); err != nil {
		return err
	}
	s.record(fmt.Sprintf("bend %d %.3f", voice, value))
	return nil
}

func (s *recordingSink) Close() error { return nil }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcher_DeliversNotesInOrder(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(DispatcherOptions{}, sink)
	defer d.Close()

	d.Dispatch([]music.ControlMessage{
		{Kind: music.KindNoteOn, Voice: music.VoiceChordRoot, Pitch: 48, Velocity: 100},
		{Kind: music.KindNoteOn, Voice: music.VoiceChordThird, Pitch: 52, Velocity: 100},
		{Kind: music.KindNoteOff, Voice: music.VoiceChordRoot},
	})

	waitFor(t, func() bool { return len(sink.snapshot()) == 3 })

	calls := sink.snapshot()
	want := []string{"on 1 48 100", "on 2 52 100", "off 1"}
	for i, call := range want {
		if calls[i] != call {
			t.Errorf("call %d = %q, want %q", i, calls[i], call)
		}
	}
}

func TestDispatcher_NotesPrecedeContinuousUpdates(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(DispatcherOptions{}, sink)
	defer d.Close()

	// A zone change batch leads with the zone parameter, but delivery sends
	// the note queue first: the triad sounds before the trailing state.
	d.Dispatch([]music.ControlMessage{
		{Kind: music.KindParameterUpdate, Name: "zone", Value: 2},
		{Kind: music.KindNoteOn, Voice: music.VoiceChordRoot, Pitch: 55, Velocity: 90},
	})

	waitFor(t, func() bool { return len(sink.snapshot()) == 2 })

	calls := sink.snapshot()
	if calls[0] != "on 1 55 90" || calls[1] != "param zone=2.000" {
		t.Errorf("calls = %v, want the onset before the zone parameter", calls)
	}
}

func TestDispatcher_CoalescesContinuousUpdates(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(DispatcherOptions{}, sink)
	defer d.Close()

	// Stage several updates of the same parameter in one batch: only the
	// latest survives.
	d.Dispatch([]music.ControlMessage{
		{Kind: music.KindParameterUpdate, Name: "energy", Value: 0.1},
		{Kind: music.KindParameterUpdate, Name: "energy", Value: 0.2},
		{Kind: music.KindParameterUpdate, Name: "energy", Value: 0.9},
	})

	waitFor(t, func() bool { return len(sink.snapshot()) >= 1 })
	// Give the worker a beat to prove no further sends arrive.
	time.Sleep(50 * time.Millisecond)

	calls := sink.snapshot()
	if len(calls) != 1 || calls[0] != "param energy=0.900" {
		t.Errorf("calls = %v, want a single latest-wins update", calls)
	}
}

func TestDispatcher_ContinuousKeysDoNotCollide(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(DispatcherOptions{}, sink)
	defer d.Close()

	// Same kind and name on different voices must both deliver.
	d.Dispatch([]music.ControlMessage{
		{Kind: music.KindPitchBend, Voice: music.VoiceChordRoot, Value: 0.1},
		{Kind: music.KindPitchBend, Voice: music.VoiceChordThird, Value: 0.2},
	})

	waitFor(t, func() bool { return len(sink.snapshot()) == 2 })
}

func TestDispatcher_RetriesNoteDelivery(t *testing.T) {
	sink := newRecordingSink()
	sink.failOn[music.KindNoteOn] = true

	d := NewDispatcher(DispatcherOptions{NoteRetries: 3, RetryBackoff: time.Millisecond}, sink)
	defer d.Close()

	d.Dispatch([]music.ControlMessage{
		{Kind: music.KindNoteOn, Voice: music.VoiceMelodyRight, Pitch: 55, Velocity: 90},
	})

	// All three attempts fail, then the compensating NoteOff lands.
	waitFor(t, func() bool {
		calls := sink.snapshot()
		return len(calls) == 1 && calls[0] == "off 5"
	})

	sink.mu.Lock()
	attempts := sink.failured
	sink.mu.Unlock()
	if attempts != 3 {
		t.Errorf("got %d delivery attempts, want 3", attempts)
	}
}

func TestDispatcher_RecoversMidRetry(t *testing.T) {
	sink := newRecordingSink()
	sink.failOn[music.KindNoteOn] = true

	d := NewDispatcher(DispatcherOptions{NoteRetries: 5, RetryBackoff: 20 * time.Millisecond}, sink)
	defer d.Close()

	d.Dispatch([]music.ControlMessage{
		{Kind: music.KindNoteOn, Voice: music.VoiceMelodyRight, Pitch: 55, Velocity: 90},
	})

	// Heal the sink while the dispatcher is backing off.
	time.Sleep(10 * time.Millisecond)
	sink.mu.Lock()
	sink.failOn[music.KindNoteOn] = false
	sink.mu.Unlock()

	waitFor(t, func() bool {
		calls := sink.snapshot()
		return len(calls) == 1 && calls[0] == "on 5 55 90"
	})
}

func TestDispatcher_NoteQueueFullDropsOnsetsKeepsReleases(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(DispatcherOptions{NoteQueueSize: 2}, sink)

	// Stage past the queue bound before the worker drains: hold the lock
	// indirectly by batching in a single Dispatch call.
	var batch []music.ControlMessage
	for i := 0; i < 5; i++ {
		batch = append(batch, music.ControlMessage{Kind: music.KindNoteOn, Voice: music.VoiceMelodyRight, Pitch: 48 + i, Velocity: 90})
	}
	batch = append(batch, music.ControlMessage{Kind: music.KindNoteOff, Voice: music.VoiceMelodyLeft})
	d.Dispatch(batch)

	d.Close()

	ons, offs := 0, 0
	for _, call := range sink.snapshot() {
		switch call[0] {
		case 'o':
			if call[1] == 'n' {
				ons++
			} else {
				offs++
			}
		}
	}
	if ons > 2 {
		t.Errorf("got %d NoteOns through a queue of 2, want at most 2", ons)
	}
	if offs != 1 {
		t.Errorf("got %d NoteOffs, want 1 (releases are never dropped)", offs)
	}
}

func TestDispatcher_CloseFlushesPendingNotes(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(DispatcherOptions{}, sink)

	d.Dispatch([]music.ControlMessage{
		{Kind: music.KindNoteOff, Voice: music.VoiceChordRoot},
		{Kind: music.KindNoteOff, Voice: music.VoiceChordThird},
	})
	d.Close()

	offs := 0
	for _, call := range sink.snapshot() {
		if call == "off 1" || call == "off 2" {
			offs++
		}
	}
	if offs != 2 {
		t.Errorf("got %d NoteOffs after close, want 2", offs)
	}
}

func TestDispatcher_DispatchAfterCloseIsNoop(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(DispatcherOptions{}, sink)
	d.Close()

	d.Dispatch([]music.ControlMessage{
		{Kind: music.KindNoteOn, Voice: music.VoiceMelodyRight, Pitch: 55, Velocity: 90},
	})
	time.Sleep(20 * time.Millisecond)

	if calls := sink.snapshot(); len(calls) != 0 {
		t.Errorf("calls after close = %v, want none", calls)
	}
}
