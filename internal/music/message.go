// Package music turns feature vectors into musical control messages: zone
// classification with hysteresis, per-limb trigger state machines, and the
// mapper that combines them into an ordered outbound message set.
package music

// MessageKind tags the variant of a ControlMessage.
type MessageKind int

const (
	// KindParameterUpdate is a named continuous value for the parameter
	// stream (one per feature per frame; superseded by the next frame).
	KindParameterUpdate MessageKind = iota
	// KindNoteOn starts a voice at a pitch/velocity.
	KindNoteOn
	// KindNoteOff releases a voice.
	KindNoteOff
	// KindControlChange is a named per-voice or global control value.
	KindControlChange
	// KindPitchBend is a signed per-voice bend, ±1 covering the full range.
	KindPitchBend
)

// String returns the kind name for logs and tests.
func (k MessageKind) String() string {
	switch k {
	case KindParameterUpdate:
		return "parameter"
	case KindNoteOn:
		return "noteOn"
	case KindNoteOff:
		return "noteOff"
	case KindControlChange:
		return "controlChange"
	case KindPitchBend:
		return "pitchBend"
	}
	return "unknown"
}

// Voice identifies one polyphonic voice downstream. Zero means global.
type Voice int

const (
	// VoiceGlobal addresses the master channel.
	VoiceGlobal Voice = iota
	// VoiceChordRoot, VoiceChordThird, VoiceChordFifth carry the triad.
	VoiceChordRoot
	VoiceChordThird
	VoiceChordFifth
	// VoiceChordExtension carries the 6th/7th extension note.
	VoiceChordExtension
	// VoiceMelodyRight and VoiceMelodyLeft are the per-limb melody voices.
	VoiceMelodyRight
	VoiceMelodyLeft
)

// Control names used by ControlChange messages.
const (
	ControlChordLevel = "chordLevel"
	ControlFilter     = "filter"
	ControlTexture    = "texture"
	ControlVibrato    = "vibrato"
)

// ZoneParameter is the parameter-stream name carrying the confirmed zone
// index (0–3) on each confirmed change.
const ZoneParameter = "zone"

// ControlMessage is one outbound musical-control message. Messages are
// immutable once created; ownership transfers to the sink on emission.
type ControlMessage struct {
	Kind     MessageKind
	Name     string  // parameter/control target for KindParameterUpdate and KindControlChange
	Voice    Voice   // addressed voice; VoiceGlobal for master-channel messages
	Pitch    int     // MIDI-style note number, 0–127
	Velocity int     // MIDI-style velocity, 0–127
	Value    float64 // continuous payload in the declared range
}

// Sink is the capability interface for outbound message destinations.
// Concrete adapters (OSC parameter stream, MIDI/MPE note stream) live
// outside the core and may ignore kinds they do not carry.
type Sink interface {
	SendParameter(name string, value float64) error
	SendNoteOn(voice Voice, pitch, velocity int) error
	SendNoteOff(voice Voice) error
	SendControlChange(voice Voice, name string, value float64) error
	SendPitchBend(voice Voice, value float64) error
	Close() error
}
