package music

// majorScale lists the semitone offsets of the C major scale degrees.
var majorScale = [7]int{0, 2, 4, 5, 7, 9, 11}

// Melody base notes. The right hand plays the lower octave, the left the
// upper, so crossed arms read as a register swap rather than a collision.
const (
	MelodyRightBase = 48 // C3
	MelodyLeftBase  = 72 // C5
)

// Chord is a fixed scale-degree triad.
type Chord struct {
	Name    string
	Pitches [3]int
}

// zoneChords maps each stage zone to its triad. The progression follows the
// I / IV / V / vi degrees of C major from stage left to stage right.
var zoneChords = [4]Chord{
	{Name: "I", Pitches: [3]int{48, 52, 55}},   // C3 E3 G3
	{Name: "IV", Pitches: [3]int{53, 57, 60}},  // F3 A3 C4
	{Name: "V", Pitches: [3]int{55, 59, 62}},   // G3 B3 D4
	{Name: "vi", Pitches: [3]int{57, 60, 64}},  // A3 C4 E4
}

// ChordForZone returns the triad assigned to a zone index. Out-of-range
// indices fall back to the tonic.
func ChordForZone(zone int) Chord {
	if zone < 0 || zone >= len(zoneChords) {
		return zoneChords[0]
	}
	return zoneChords[zone]
}

// Sixth and Seventh return the chord's extension pitches layered on top of
// the triad under extreme hip tilt.
func (c Chord) Sixth() int   { return c.Pitches[0] + 9 }
func (c Chord) Seventh() int { return c.Pitches[0] + 10 }

// NoteForHeight quantizes a hand height in [0,1] into one octave of the
// scale above the base note, with the top position reaching the octave.
func NoteForHeight(handY float64, base int) int {
	idx := int(handY * 7.99)
	if idx < 0 {
		idx = 0
	} else if idx > 7 {
		idx = 7
	}
	if idx == 7 {
		return base + 12
	}
	return base + majorScale[idx]
}
