// Package oscsink sends the control stream to an OSC destination such as a
// SuperCollider or Pure Data patch. Every feature parameter maps to its own
// address under /motion, so a patch can subscribe to exactly the parameters
// it uses.
package oscsink

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"

	"github.com/ayusman/cuerposonoro/internal/music"
)

// Sink sends control messages as OSC packets over UDP.
type Sink struct {
	client *osc.Client
}

var _ music.Sink = (*Sink)(nil)

// New creates a sink targeting the given OSC host and port.
func New(host string, port int) *Sink {
	return &Sink{client: osc.NewClient(host, port)}
}

// SendParameter sends /motion/<name> with the value as a float32 argument.
func (s *Sink) SendParameter(name string, value float64) error {
	msg := osc.NewMessage("/motion/" + name)
	msg.Append(float32(value))
	return s.send(msg)
}

// SendNoteOn sends /note/on with voice, pitch and velocity arguments.
func (s *Sink) SendNoteOn(voice music.Voice, pitch, velocity int) error {
	msg := osc.NewMessage("/note/on")
	msg.Append(int32(voice))
	msg.Append(int32(pitch))
	msg.Append(int32(velocity))
	return s.send(msg)
}

// SendNoteOff sends /note/off with the voice argument.
func (s *Sink) SendNoteOff(voice music.Voice) error {
	msg := osc.NewMessage("/note/off")
	msg.Append(int32(voice))
	return s.send(msg)
}

// SendControlChange sends /control/<name> with voice and value arguments.
func (s *Sink) SendControlChange(voice music.Voice, name string, value float64) error {
	msg := osc.NewMessage("/control/" + name)
	msg.Append(int32(voice))
	msg.Append(float32(value))
	return s.send(msg)
}

// SendPitchBend sends /bend with voice and value arguments. Value is in
// [-1,1] where ±1 means the full bend range of the receiving patch.
func (s *Sink) SendPitchBend(voice music.Voice, value float64) error {
	msg := osc.NewMessage("/bend")
	msg.Append(int32(voice))
	msg.Append(float32(value))
	return s.send(msg)
}

// Close releases the sink. The underlying client is connectionless, so there
// is nothing to tear down.
func (s *Sink) Close() error {
	return nil
}

func (s *Sink) send(msg *osc.Message) error {
	if err := s.client.Send(msg); err != nil {
		return fmt.Errorf("osc send %s: %w", msg.Address, err)
	}
	return nil
}
