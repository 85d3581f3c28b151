package music

import "time"

// Phase is the state of a limb's trigger machine.
type Phase int

const (
	// PhaseIdle waits for a jerk onset past the cooldown deadline.
	PhaseIdle Phase = iota
	// PhaseArmed is the single-frame transition that fires the NoteOn.
	PhaseArmed
	// PhaseSounding holds the voice until its computed duration elapses.
	PhaseSounding
)

// String returns the phase name for logs and tests.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseArmed:
		return "armed"
	case PhaseSounding:
		return "sounding"
	}
	return "unknown"
}

// NoteEvent is a discrete onset or offset produced by a Trigger.
type NoteEvent struct {
	Kind     MessageKind // KindNoteOn or KindNoteOff
	Voice    Voice
	Pitch    int
	Velocity int
}

// TriggerOptions configures one limb's trigger. Thresholds and the cooldown
// are performer-tuned configuration, never hardcoded.
type TriggerOptions struct {
	// Voice is the melody voice this limb drives.
	Voice Voice
	// BasePitch anchors the limb's one-octave note range.
	BasePitch int
	// OnsetThreshold is the smoothed jerk level that arms the trigger.
	OnsetThreshold float64
	// RetriggerInterval is the minimum time between onsets for this limb.
	RetriggerInterval time.Duration
	// BaseDuration, MinDuration, MaxDuration bound the held note length.
	BaseDuration time.Duration
	MinDuration  time.Duration
	MaxDuration  time.Duration
}

// Trigger is the debounced state machine turning one limb's continuous jerk
// signal into discrete note events: Idle → Armed → Sounding → Idle. One
// voice per limb; onsets arriving while Sounding are ignored.
type Trigger struct {
	opts          TriggerOptions
	phase         Phase
	pitch         int
	noteEnd       time.Time
	cooldownUntil time.Time
}

// NewTrigger creates a Trigger in the Idle phase.
func NewTrigger(opts TriggerOptions) *Trigger {
	return &Trigger{opts: opts}
}

// Phase returns the current phase.
func (t *Trigger) Phase() Phase {
	return t.phase
}

// Voice returns the melody voice this trigger drives.
func (t *Trigger) Voice() Voice {
	return t.opts.Voice
}

// Reset returns the machine to Idle and clears the cooldown. The holder is
// responsible for releasing any sounding voice (see Release).
func (t *Trigger) Reset() {
	t.phase = PhaseIdle
	t.noteEnd = time.Time{}
	t.cooldownUntil = time.Time{}
}

// Release force-ends a sounding note, returning the offset event if one was
// pending. Used at session teardown so no voice is left hanging.
func (t *Trigger) Release() (NoteEvent, bool) {
	if t.phase != PhaseSounding {
		return NoteEvent{}, false
	}
	t.phase = PhaseIdle
	return NoteEvent{Kind: KindNoteOff, Voice: t.opts.Voice, Pitch: t.pitch}, true
}

// Update advances the machine one frame. jerk, velocity and handY are the
// limb's smoothed feature values at this instant. Returned events are in
// emission order; invalid transition attempts produce no events and no error.
func (t *Trigger) Update(now time.Time, jerk, velocity, handY float64) []NoteEvent {
	var events []NoteEvent

	switch t.phase {
	case PhaseSounding:
		if !now.Before(t.noteEnd) {
			events = append(events, NoteEvent{Kind: KindNoteOff, Voice: t.opts.Voice, Pitch: t.pitch})
			t.phase = PhaseIdle
			t.cooldownUntil = now.Add(t.opts.RetriggerInterval)
		}
		// A new onset while still sounding (or inside the cooldown that a
		// same-frame release just started) is silently ignored.

	case PhaseIdle:
		if jerk > t.opts.OnsetThreshold && !now.Before(t.cooldownUntil) {
			t.phase = PhaseArmed
		}
	}

	// Armed → Sounding is immediate: the NoteOn fires in the same frame
	// that armed it, sampling velocity and hand height at that instant.
	if t.phase == PhaseArmed {
		t.pitch = NoteForHeight(handY, t.opts.BasePitch)
		t.noteEnd = now.Add(t.duration(velocity))
		t.phase = PhaseSounding

		events = append(events, NoteEvent{
			Kind:     KindNoteOn,
			Voice:    t.opts.Voice,
			Pitch:    t.pitch,
			Velocity: onsetVelocity(velocity),
		})
	}

	return events
}

// duration derives the held note length from the arm velocity: a faster
// strike plays louder and shorter, a slow one softer and longer.
func (t *Trigger) duration(velocity float64) time.Duration {
	d := t.opts.BaseDuration - time.Duration(velocity*float64(t.opts.BaseDuration-t.opts.MinDuration))
	if d < t.opts.MinDuration {
		d = t.opts.MinDuration
	}
	if d > t.opts.MaxDuration {
		d = t.opts.MaxDuration
	}
	return d
}

// onsetVelocity maps the arm velocity feature monotonically onto the
// MIDI-style 60–127 range.
func onsetVelocity(velocity float64) int {
	v := int(60 + velocity*67)
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return v
}
