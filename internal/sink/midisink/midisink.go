// Package midisink plays the control stream on a MIDI output port using an
// MPE-style channel plan: chord voices hold fixed channels so their bends
// stay independent, while melody voices rotate across a channel pool so a
// new onset never clips the release tail of the previous note.
package midisink

import (
	"fmt"
	"math"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/ayusman/cuerposonoro/internal/music"
)

// Fixed channel assignments. Channel 0 carries global controls, the triad
// voices sit on 1-3 and the extension note on 8, clear of the default
// melody pool.
const (
	channelGlobal    uint8 = 0
	channelChordBase uint8 = 1
	channelExtension uint8 = 8
)

// Controller numbers for the named controls.
var controllers = map[string]uint8{
	music.ControlVibrato:    1,  // modulation wheel
	music.ControlChordLevel: 7,  // channel volume
	music.ControlTexture:    71, // timbre
	music.ControlFilter:     74, // brightness
}

// Sink sends control messages to a MIDI output port.
type Sink struct {
	out  func(midi.Message) error
	pool []uint8

	mu       sync.Mutex
	next     int
	channels map[music.Voice]uint8
	keys     map[music.Voice]uint8
}

var _ music.Sink = (*Sink)(nil)

// New opens the named MIDI output port. The melody channel pool must not
// overlap the fixed chord channels.
func New(portName string, melodyChannels []uint8) (*Sink, error) {
	if len(melodyChannels) == 0 {
		return nil, fmt.Errorf("midi: melody channel pool is empty")
	}
	for _, ch := range melodyChannels {
		if ch > 15 {
			return nil, fmt.Errorf("midi: channel %d out of range", ch)
		}
		if ch <= channelChordBase+2 || ch == channelExtension {
			return nil, fmt.Errorf("midi: melody channel %d collides with a fixed voice channel", ch)
		}
	}

	port, err := midi.FindOutPort(portName)
	if err != nil {
		return nil, fmt.Errorf("midi: find output port %q: %w", portName, err)
	}
	send, err := midi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("midi: open output port %q: %w", portName, err)
	}

	return &Sink{
		out:      send,
		pool:     melodyChannels,
		channels: make(map[music.Voice]uint8),
		keys:     make(map[music.Voice]uint8),
	}, nil
}

// SendParameter maps the zone parameter to a program change on the global
// channel. Other parameters have no MIDI representation and are ignored.
func (s *Sink) SendParameter(name string, value float64) error {
	if name != music.ZoneParameter {
		return nil
	}
	return s.out(midi.ProgramChange(channelGlobal, uint8(value)))
}

// SendNoteOn starts a note for the voice on its channel. Melody voices take
// the next channel from the pool; a still-sounding note on the same voice is
// released first.
func (s *Sink) SendNoteOn(voice music.Voice, pitch, velocity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[voice]; ok {
		if err := s.out(midi.NoteOff(s.channels[voice], key)); err != nil {
			return err
		}
		delete(s.keys, voice)
	}

	ch := s.channelFor(voice)
	if s.melodyVoice(voice) {
		ch = s.pool[s.next%len(s.pool)]
		s.next++
	}

	if err := s.out(midi.NoteOn(ch, clamp7(pitch), clamp7(velocity))); err != nil {
		return err
	}
	s.channels[voice] = ch
	s.keys[voice] = clamp7(pitch)
	return nil
}

// SendNoteOff releases the voice's sounding note, if any.
func (s *Sink) SendNoteOff(voice music.Voice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[voice]
	if !ok {
		return nil
	}
	delete(s.keys, voice)
	return s.out(midi.NoteOff(s.channels[voice], key))
}

// SendControlChange sends the named control as a CC on the voice's channel.
// Values are expected in [0,1].
func (s *Sink) SendControlChange(voice music.Voice, name string, value float64) error {
	cc, ok := controllers[name]
	if !ok {
		return nil
	}

	s.mu.Lock()
	ch := s.activeChannel(voice)
	s.mu.Unlock()

	return s.out(midi.ControlChange(ch, cc, clamp7(int(math.Round(value*127)))))
}

// SendPitchBend bends the voice's channel. Value is in [-1,1] mapped onto
// the full 14-bit bend range.
func (s *Sink) SendPitchBend(voice music.Voice, value float64) error {
	if value > 1 {
		value = 1
	} else if value < -1 {
		value = -1
	}

	s.mu.Lock()
	ch := s.activeChannel(voice)
	s.mu.Unlock()

	return s.out(midi.Pitchbend(ch, int16(value*8191)))
}

// Close silences every sounding note and releases the driver.
func (s *Sink) Close() error {
	s.mu.Lock()
	for voice, key := range s.keys {
		s.out(midi.NoteOff(s.channels[voice], key))
	}
	s.keys = make(map[music.Voice]uint8)
	s.mu.Unlock()

	midi.CloseDriver()
	return nil
}

// channelFor returns the fixed channel of a non-melody voice.
func (s *Sink) channelFor(voice music.Voice) uint8 {
	switch voice {
	case music.VoiceChordRoot, music.VoiceChordThird, music.VoiceChordFifth:
		return channelChordBase + uint8(voice-music.VoiceChordRoot)
	case music.VoiceChordExtension:
		return channelExtension
	}
	return channelGlobal
}

// activeChannel resolves the channel expression messages should land on:
// the channel of the voice's sounding note when there is one, otherwise the
// voice's fixed channel. Caller holds s.mu.
func (s *Sink) activeChannel(voice music.Voice) uint8 {
	if ch, ok := s.channels[voice]; ok {
		return ch
	}
	return s.channelFor(voice)
}

func (s *Sink) melodyVoice(voice music.Voice) bool {
	return voice == music.VoiceMelodyRight || voice == music.VoiceMelodyLeft
}

func clamp7(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}
