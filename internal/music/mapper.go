package music

import (
	"math"

	"github.com/ayusman/cuerposonoro/internal/feature"
)

// vibratoDepthScale converts a per-frame elbow angle delta into a vibrato
// depth in [0,1].
const vibratoDepthScale = 10

// MapperOptions holds the performer-tuned mapping thresholds.
type MapperOptions struct {
	// ModerateTiltThreshold marks the hip tilt magnitude up to which the
	// chord bend is the only tilt response.
	ModerateTiltThreshold float64
	// ExtremeTiltThreshold is the hip tilt magnitude past which an
	// extension note is layered onto the chord.
	ExtremeTiltThreshold float64
	// ChordBendFraction is the fraction of full pitch-bend range applied
	// to the chord at |hipTilt| = 1.
	ChordBendFraction float64
	// MelodyBendFraction is the fraction of full pitch-bend range applied
	// to a melody voice at elbow-hip angle = 1.
	MelodyBendFraction float64
	// VibratoRateThreshold is the minimum per-frame elbow angle delta, on
	// both sides of a sign change, that counts as oscillation.
	VibratoRateThreshold float64
}

// LimbState is the mapper-visible snapshot of one limb's trigger for the
// current frame.
type LimbState struct {
	Voice  Voice
	Phase  Phase
	Events []NoteEvent
}

// limbBend tracks elbow angle motion across frames for vibrato detection.
type limbBend struct {
	lastAngle float64
	lastDelta float64
	frames    int
}

// Mapper deterministically combines the feature vector, zone classifier
// output and trigger events into the outbound message set. Messages are
// ordered zone/chord first, then notes, then continuous controls, so a
// downstream consumer observes harmonic context changes before the melodic
// notes that rely on them.
type Mapper struct {
	opts           MapperOptions
	chord          *Chord
	extensionPitch int // 0 when no extension note is sounding
	bends          map[Voice]*limbBend
}

// NewMapper creates a Mapper with no harmonic context selected yet.
func NewMapper(opts MapperOptions) *Mapper {
	return &Mapper{
		opts:  opts,
		bends: make(map[Voice]*limbBend),
	}
}

// Reset clears all mapping state. Called at session start.
func (m *Mapper) Reset() {
	m.chord = nil
	m.extensionPitch = 0
	m.bends = make(map[Voice]*limbBend)
}

// ReleaseAll returns the NoteOffs needed to silence every chord voice the
// mapper currently holds. Used at session teardown.
func (m *Mapper) ReleaseAll() []ControlMessage {
	var msgs []ControlMessage
	if m.chord != nil {
		for _, voice := range [...]Voice{VoiceChordRoot, VoiceChordThird, VoiceChordFifth} {
			msgs = append(msgs, ControlMessage{Kind: KindNoteOff, Voice: voice})
		}
		m.chord = nil
	}
	if m.extensionPitch != 0 {
		msgs = append(msgs, ControlMessage{Kind: KindNoteOff, Voice: VoiceChordExtension})
		m.extensionPitch = 0
	}
	return msgs
}

// Map produces the ordered message set for one frame.
func (m *Mapper) Map(features feature.Vector, zone int, zoneChanged bool, limbs []LimbState) []ControlMessage {
	var msgs []ControlMessage

	// 1. Zone/chord messages.
	if zoneChanged {
		msgs = append(msgs, m.changeChord(zone, features[feature.KneeAngle])...)
	}

	// 2. Note messages: chord extension first, then limb events.
	msgs = append(msgs, m.updateExtension(features[feature.HipTilt])...)
	for _, limb := range limbs {
		for _, ev := range limb.Events {
			msgs = append(msgs, ControlMessage{
				Kind:     ev.Kind,
				Voice:    ev.Voice,
				Pitch:    ev.Pitch,
				Velocity: ev.Velocity,
			})
		}
	}

	// 3. Continuous controls.
	msgs = append(msgs, m.chordExpression(features)...)
	for _, limb := range limbs {
		msgs = append(msgs, m.melodyExpression(features, limb)...)
	}
	msgs = append(msgs,
		ControlMessage{Kind: KindControlChange, Voice: VoiceGlobal, Name: ControlFilter, Value: (features[feature.HeadTilt] + 1) / 2},
		ControlMessage{Kind: KindControlChange, Voice: VoiceGlobal, Name: ControlTexture, Value: features[feature.Energy]},
	)

	// One parameter update per named feature per frame.
	for _, name := range feature.Names {
		msgs = append(msgs, ControlMessage{Kind: KindParameterUpdate, Name: name, Value: features[name]})
	}

	return msgs
}

// changeChord releases the sounding triad and starts the new zone's triad,
// with velocity driven by the knee angle (bent = quiet, extended = loud).
func (m *Mapper) changeChord(zone int, kneeAngle float64) []ControlMessage {
	msgs := []ControlMessage{
		{Kind: KindParameterUpdate, Name: ZoneParameter, Value: float64(zone)},
	}

	chordVoices := [...]Voice{VoiceChordRoot, VoiceChordThird, VoiceChordFifth}

	if m.chord != nil {
		for _, voice := range chordVoices {
			msgs = append(msgs, ControlMessage{Kind: KindNoteOff, Voice: voice})
		}
		if m.extensionPitch != 0 {
			msgs = append(msgs, ControlMessage{Kind: KindNoteOff, Voice: VoiceChordExtension})
			m.extensionPitch = 0
		}
	}

	chord := ChordForZone(zone)
	m.chord = &chord

	velocity := chordVelocity(kneeAngle)
	for i, voice := range chordVoices {
		msgs = append(msgs, ControlMessage{
			Kind:     KindNoteOn,
			Voice:    voice,
			Pitch:    chord.Pitches[i],
			Velocity: velocity,
		})
	}

	return msgs
}

// updateExtension layers a 6th (positive tilt) or 7th (negative tilt) onto
// the chord when the tilt magnitude crosses the extreme threshold, exactly
// once per crossing, and removes it on falling back below.
func (m *Mapper) updateExtension(hipTilt float64) []ControlMessage {
	if m.chord == nil {
		return nil
	}

	extreme := math.Abs(hipTilt) > m.opts.ExtremeTiltThreshold

	if extreme && m.extensionPitch == 0 {
		pitch := m.chord.Sixth()
		if hipTilt < 0 {
			pitch = m.chord.Seventh()
		}
		m.extensionPitch = pitch
		return []ControlMessage{{
			Kind:     KindNoteOn,
			Voice:    VoiceChordExtension,
			Pitch:    pitch,
			Velocity: chordVelocity(1),
		}}
	}

	if !extreme && m.extensionPitch != 0 {
		m.extensionPitch = 0
		return []ControlMessage{{Kind: KindNoteOff, Voice: VoiceChordExtension}}
	}

	return nil
}

// chordExpression bends the triad with hip tilt and drives the chord level
// from the knee angle.
func (m *Mapper) chordExpression(features feature.Vector) []ControlMessage {
	if m.chord == nil {
		return nil
	}

	tilt := clampSigned(features[feature.HipTilt])
	if math.Abs(tilt) > m.opts.ModerateTiltThreshold {
		// Past the moderate range the bend saturates; further tilt is
		// expressed through the extension note instead.
		tilt = math.Copysign(m.opts.ModerateTiltThreshold, tilt)
	}
	bend := tilt * m.opts.ChordBendFraction
	msgs := make([]ControlMessage, 0, 4)
	for _, voice := range [...]Voice{VoiceChordRoot, VoiceChordThird, VoiceChordFifth} {
		msgs = append(msgs, ControlMessage{Kind: KindPitchBend, Voice: voice, Value: bend})
	}

	msgs = append(msgs, ControlMessage{
		Kind:  KindControlChange,
		Voice: VoiceGlobal,
		Name:  ControlChordLevel,
		Value: features[feature.KneeAngle],
	})
	return msgs
}

// melodyExpression applies elbow-driven bend and vibrato to a sounding limb
// voice, plus the quantized melodic pitch parameter.
func (m *Mapper) melodyExpression(features feature.Vector, limb LimbState) []ControlMessage {
	handYName, elbowName, pitchParam, base := limbNames(limb.Voice)
	if handYName == "" {
		return nil
	}

	angle := features[elbowName]
	state, ok := m.bends[limb.Voice]
	if !ok {
		state = &limbBend{}
		m.bends[limb.Voice] = state
	}

	delta := angle - state.lastAngle
	oscillating := state.frames >= 2 &&
		delta*state.lastDelta < 0 &&
		math.Abs(delta) > m.opts.VibratoRateThreshold &&
		math.Abs(state.lastDelta) > m.opts.VibratoRateThreshold

	state.lastDelta = delta
	state.lastAngle = angle
	state.frames++

	if limb.Phase != PhaseSounding {
		return nil
	}

	pitch := NoteForHeight(features[handYName], base)
	msgs := []ControlMessage{
		{Kind: KindParameterUpdate, Name: pitchParam, Value: float64(pitch) / 127},
		{Kind: KindPitchBend, Voice: limb.Voice, Value: angle * m.opts.MelodyBendFraction},
	}

	if oscillating {
		msgs = append(msgs, ControlMessage{
			Kind:  KindControlChange,
			Voice: limb.Voice,
			Name:  ControlVibrato,
			Value: clamp01(math.Abs(delta) * vibratoDepthScale),
		})
	}

	return msgs
}

// limbNames resolves a melody voice to its feature names, pitch parameter
// name and base note.
func limbNames(v Voice) (handY, elbow, pitchParam string, base int) {
	switch v {
	case VoiceMelodyRight:
		return feature.RightHandY, feature.RightElbowHipAngle, "melodyPitch.right", MelodyRightBase
	case VoiceMelodyLeft:
		return feature.LeftHandY, feature.LeftElbowHipAngle, "melodyPitch.left", MelodyLeftBase
	}
	return "", "", "", 0
}

// chordVelocity maps the knee angle onto the 40–127 chord velocity range.
func chordVelocity(kneeAngle float64) int {
	v := int(40 + kneeAngle*87)
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
