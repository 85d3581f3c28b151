package session

import (
	"strings"
	"testing"
	"time"

	"github.com/ayusman/cuerposonoro/internal/config"
	"github.com/ayusman/cuerposonoro/internal/feature"
	"github.com/ayusman/cuerposonoro/internal/pose"
	"github.com/ayusman/cuerposonoro/testdata"
)

func newTestSession(t *testing.T) (*Session, *recordingSink) {
	t.Helper()
	sink := newRecordingSink()
	d := NewDispatcher(DispatcherOptions{}, sink)
	s := New(config.Default().Engine, d)
	t.Cleanup(s.Close)
	return s, sink
}

func TestSession_ProcessReturnsFeatureVector(t *testing.T) {
	s, _ := newTestSession(t)

	vec, err := s.Process(testdata.NeutralFrame(time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) == 0 {
		t.Fatal("expected a populated feature vector")
	}
	if vec[feature.FeetCenterX] != 0.5 {
		t.Errorf("feetCenterX = %g, want 0.5", vec[feature.FeetCenterX])
	}
}

func TestSession_RejectsNonIncreasingTimestamps(t *testing.T) {
	s, _ := newTestSession(t)
	ts := time.Now()

	if _, err := s.Process(testdata.NeutralFrame(ts)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Process(testdata.NeutralFrame(ts)); err == nil {
		t.Error("expected error for a repeated timestamp")
	}
	if _, err := s.Process(testdata.NeutralFrame(ts.Add(-time.Second))); err == nil {
		t.Error("expected error for a timestamp going backwards")
	}

	// The pipeline keeps running afterwards.
	if _, err := s.Process(testdata.NeutralFrame(ts.Add(33 * time.Millisecond))); err != nil {
		t.Errorf("valid frame after a rejected one failed: %v", err)
	}
}

func TestSession_ZoneWalkStartsChord(t *testing.T) {
	s, sink := newTestSession(t)
	ts := time.Now()
	dt := 33 * time.Millisecond

	// Seed in zone 1, then walk decisively into zone 2. The step has to be
	// wide enough to clear smoothing plus the hysteresis margin.
	for i, x := range []float64{0.35, 0.35, 0.80, 0.80, 0.80} {
		frame := testdata.NeutralFrame(ts.Add(time.Duration(i)*dt), testdata.StandAt(x))
		if _, err := s.Process(frame); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}

	waitFor(t, func() bool {
		ons := 0
		for _, call := range sink.snapshot() {
			if strings.HasPrefix(call, "on ") {
				ons++
			}
		}
		return ons >= 3
	})

	if snap := s.Snapshot(); snap.Zone != 2 {
		t.Errorf("zone = %d, want 2", snap.Zone)
	}
}

func TestSession_StrikeTriggersMelodyNote(t *testing.T) {
	s, sink := newTestSession(t)
	ts := time.Now()
	dt := 33 * time.Millisecond

	// Hold still so derivative history settles, then strike upward with
	// the right wrist for a few frames; smoothing needs the jerk to hold.
	for i := 0; i < 4; i++ {
		if _, err := s.Process(testdata.NeutralFrame(ts.Add(time.Duration(i) * dt))); err != nil {
			t.Fatalf("still frame %d: %v", i, err)
		}
	}
	for i := 4; i < 8; i++ {
		frame := testdata.NeutralFrame(ts.Add(time.Duration(i)*dt),
			testdata.Move(pose.RightWrist, 0.35, 0.55-float64(i-3)*0.15),
		)
		if _, err := s.Process(frame); err != nil {
			t.Fatalf("strike frame %d: %v", i, err)
		}
	}

	waitFor(t, func() bool {
		for _, call := range sink.snapshot() {
			if strings.HasPrefix(call, "on 5 ") {
				return true
			}
		}
		return false
	})

	if snap := s.Snapshot(); snap.Notes == 0 {
		t.Error("snapshot should count the melody onset")
	}
}

func TestSession_DisableReleasesVoicesAndDropsFrames(t *testing.T) {
	s, sink := newTestSession(t)
	ts := time.Now()
	dt := 33 * time.Millisecond

	// Get a melody voice sounding.
	for i := 0; i < 4; i++ {
		s.Process(testdata.NeutralFrame(ts.Add(time.Duration(i) * dt)))
	}
	for i := 4; i < 8; i++ {
		s.Process(testdata.NeutralFrame(ts.Add(time.Duration(i)*dt),
			testdata.Move(pose.RightWrist, 0.35, 0.55-float64(i-3)*0.15)))
	}

	s.SetEnabled(false)

	waitFor(t, func() bool {
		for _, call := range sink.snapshot() {
			if strings.HasPrefix(call, "off 5") {
				return true
			}
		}
		return false
	})

	// Frames are ignored while muted.
	vec, err := s.Process(testdata.NeutralFrame(ts.Add(time.Second)))
	if err != nil {
		t.Fatalf("unexpected error while muted: %v", err)
	}
	if vec != nil {
		t.Error("muted session should not produce a feature vector")
	}
	if s.Snapshot().Enabled {
		t.Error("snapshot should report disabled")
	}

	// Re-enabling starts from a clean slate; an old timestamp is fine.
	s.SetEnabled(true)
	if _, err := s.Process(testdata.NeutralFrame(ts.Add(500 * time.Millisecond))); err != nil {
		t.Errorf("frame after re-enable failed: %v", err)
	}
}

func TestSession_CloseRejectsFurtherFrames(t *testing.T) {
	sink := newRecordingSink()
	d := NewDispatcher(DispatcherOptions{}, sink)
	s := New(config.Default().Engine, d)

	if _, err := s.Process(testdata.NeutralFrame(time.Now())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Close()
	if _, err := s.Process(testdata.NeutralFrame(time.Now())); err == nil {
		t.Error("expected error after close")
	}

	// Close is idempotent.
	s.Close()
}

func TestSession_SnapshotCountsFrames(t *testing.T) {
	s, _ := newTestSession(t)
	ts := time.Now()

	for i := 0; i < 5; i++ {
		s.Process(testdata.NeutralFrame(ts.Add(time.Duration(i) * 33 * time.Millisecond)))
	}

	snap := s.Snapshot()
	if snap.Frames != 5 {
		t.Errorf("frames = %d, want 5", snap.Frames)
	}
	if snap.ID == "" {
		t.Error("snapshot should carry the session id")
	}
}
