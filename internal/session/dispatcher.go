// Package session owns the per-session pipeline state and the non-blocking
// handoff of control messages to the output sinks.
package session

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ayusman/cuerposonoro/internal/music"
)

// NoteRecorder receives successfully delivered note events, e.g. for the
// session recording store. Implementations must not block for long; they run
// on the dispatch worker, never on the frame path.
type NoteRecorder interface {
	RecordNote(msg music.ControlMessage)
}

// DispatcherOptions tunes delivery behavior.
type DispatcherOptions struct {
	// NoteQueueSize bounds the discrete note event queue.
	NoteQueueSize int
	// NoteRetries is the number of delivery attempts per note event.
	NoteRetries int
	// RetryBackoff is the base delay between note delivery attempts.
	RetryBackoff time.Duration
	// Recorder, when set, receives delivered note events.
	Recorder NoteRecorder
}

// Dispatcher hands control messages to the sinks without ever blocking the
// frame pipeline. Continuous updates (parameters, control changes, pitch
// bends) are coalesced so a slow sink only ever sees the latest value;
// discrete note events are queued in order and retried with backoff, and a
// NoteOn that ultimately cannot be delivered is compensated with a NoteOff
// so no voice hangs downstream.
type Dispatcher struct {
	sinks []music.Sink
	opts  DispatcherOptions

	mu         sync.Mutex
	continuous map[string]music.ControlMessage
	notes      []music.ControlMessage
	closed     bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	lastErrLog time.Time
}

// NewDispatcher creates a Dispatcher and starts its delivery worker.
func NewDispatcher(opts DispatcherOptions, sinks ...music.Sink) *Dispatcher {
	if opts.NoteQueueSize <= 0 {
		opts.NoteQueueSize = 256
	}
	if opts.NoteRetries <= 0 {
		opts.NoteRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 5 * time.Millisecond
	}

	d := &Dispatcher{
		sinks:      sinks,
		opts:       opts,
		continuous: make(map[string]music.ControlMessage),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Dispatch stages messages for delivery and returns immediately. Continuous
// messages supersede any undelivered update for the same target; note events
// are appended in order. When the note queue is full an incoming NoteOn is
// dropped (it never sounded, so nothing hangs) while NoteOffs are always
// accepted.
//
// Delivery reorders across the two classes: all staged note events go out
// before any continuous update, so a sink sees a zone's triad before the
// zone parameter that announced it. Relative order within the note queue is
// preserved; continuous updates are trailing state, not leading context.
func (d *Dispatcher) Dispatch(msgs []music.ControlMessage) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	for _, msg := range msgs {
		switch msg.Kind {
		case music.KindNoteOn:
			if len(d.notes) >= d.opts.NoteQueueSize {
				log.Printf("dispatcher: note queue full, dropping NoteOn for voice %d", msg.Voice)
				continue
			}
			d.notes = append(d.notes, msg)
		case music.KindNoteOff:
			d.notes = append(d.notes, msg)
		default:
			d.continuous[continuousKey(msg)] = msg
		}
	}
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Close flushes pending note events and stops the worker. Continuous updates
// still staged are discarded; they are superseded by nature.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()

	// Final flush of whatever the worker had not picked up.
	d.deliver(d.take())
}

// run is the delivery worker loop.
func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.notify:
			d.deliver(d.take())
		}
	}
}

// take snapshots and clears the staged messages under the lock.
func (d *Dispatcher) take() ([]music.ControlMessage, []music.ControlMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	notes := d.notes
	d.notes = nil

	if len(d.continuous) == 0 {
		return notes, nil
	}

	keys := make([]string, 0, len(d.continuous))
	for k := range d.continuous {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	continuous := make([]music.ControlMessage, 0, len(keys))
	for _, k := range keys {
		continuous = append(continuous, d.continuous[k])
	}
	d.continuous = make(map[string]music.ControlMessage)

	return notes, continuous
}

// deliver sends note events (with retry and compensation) before the
// coalesced continuous updates.
func (d *Dispatcher) deliver(notes, continuous []music.ControlMessage) {
	for _, msg := range notes {
		d.deliverNote(msg)
	}

	for _, msg := range continuous {
		for _, sink := range d.sinks {
			if err := d.sendOne(sink, msg); err != nil {
				// Superseded by the next frame anyway; keep the log quiet.
				d.logThrottled("dispatcher: dropping %s update: %v", msg.Kind, err)
			}
		}
	}
}

// deliverNote attempts bounded retries per sink and compensates a failed
// NoteOn with a NoteOff.
func (d *Dispatcher) deliverNote(msg music.ControlMessage) {
	delivered := false

	for _, sink := range d.sinks {
		var err error
		for attempt := 0; attempt < d.opts.NoteRetries; attempt++ {
			if attempt > 0 {
				time.Sleep(d.opts.RetryBackoff * time.Duration(attempt))
			}
			if err = d.sendOne(sink, msg); err == nil {
				break
			}
		}

		if err != nil {
			log.Printf("dispatcher: %s for voice %d undeliverable: %v", msg.Kind, msg.Voice, err)
			if msg.Kind == music.KindNoteOn {
				// The sink may have partially registered the onset; make
				// sure nothing is left sounding.
				if offErr := sink.SendNoteOff(msg.Voice); offErr != nil {
					log.Printf("dispatcher: compensating NoteOff for voice %d failed: %v", msg.Voice, offErr)
				}
			}
			continue
		}
		delivered = true
	}

	if delivered && d.opts.Recorder != nil {
		d.opts.Recorder.RecordNote(msg)
	}
}

// sendOne routes one message to the matching sink capability.
func (d *Dispatcher) sendOne(sink music.Sink, msg music.ControlMessage) error {
	switch msg.Kind {
	case music.KindParameterUpdate:
		return sink.SendParameter(msg.Name, msg.Value)
	case music.KindNoteOn:
		return sink.SendNoteOn(msg.Voice, msg.Pitch, msg.Velocity)
	case music.KindNoteOff:
		return sink.SendNoteOff(msg.Voice)
	case music.KindControlChange:
		return sink.SendControlChange(msg.Voice, msg.Name, msg.Value)
	case music.KindPitchBend:
		return sink.SendPitchBend(msg.Voice, msg.Value)
	}
	return fmt.Errorf("unknown message kind %d", msg.Kind)
}

// logThrottled logs at most once per second to avoid flooding when a sink
// is down for an extended stretch.
func (d *Dispatcher) logThrottled(format string, args ...any) {
	now := time.Now()
	if now.Sub(d.lastErrLog) < time.Second {
		return
	}
	d.lastErrLog = now
	log.Printf(format, args...)
}

// continuousKey identifies the coalescing slot for a continuous message.
func continuousKey(msg music.ControlMessage) string {
	return fmt.Sprintf("%d|%d|%s", msg.Kind, msg.Voice, msg.Name)
}
