// Package feature computes the musical feature vector from pose landmark
// frames: positional and angular features from single-frame geometry, and
// derivative features from a bounded rolling history.
package feature

import (
	"time"

	"github.com/ayusman/cuerposonoro/internal/pose"
)

// sample is one valid observation of a single landmark.
type sample struct {
	at   time.Time
	x, y float64
}

// Buffer keeps a bounded rolling history of valid samples per tracked
// landmark and supplies finite-difference velocity and jerk estimates.
//
// Low-confidence samples are never pushed. When the gap since the last valid
// sample exceeds the tolerance, the landmark's history is restarted so a
// reacquired landmark cannot produce a spurious derivative spike.
type Buffer struct {
	capacity      int
	visibilityMin float64
	gapTolerance  time.Duration
	jerkFullScale float64
	histories     map[int][]sample
}

// NewBuffer creates a Buffer tracking the given landmark indices.
// Capacity is clamped to a minimum of 3 samples, enough for the
// second-difference jerk estimate.
func NewBuffer(capacity int, visibilityMin float64, gapTolerance time.Duration, jerkFullScale float64, landmarkIDs ...int) *Buffer {
	if capacity < 3 {
		capacity = 3
	}

	histories := make(map[int][]sample, len(landmarkIDs))
	for _, id := range landmarkIDs {
		histories[id] = make([]sample, 0, capacity)
	}

	return &Buffer{
		capacity:      capacity,
		visibilityMin: visibilityMin,
		gapTolerance:  gapTolerance,
		jerkFullScale: jerkFullScale,
		histories:     histories,
	}
}

// Push appends the frame's tracked landmarks to their histories, evicting
// the oldest sample when capacity is exceeded.
func (b *Buffer) Push(frame pose.Frame) {
	for id, history := range b.histories {
		lm := frame.Landmarks[id]
		if !lm.Visible(b.visibilityMin) {
			continue
		}

		// A long invisibility gap restarts the history: extrapolating
		// across it would turn reacquisition into a huge derivative.
		if n := len(history); n > 0 && frame.Timestamp.Sub(history[n-1].at) > b.gapTolerance {
			history = history[:0]
		}

		if len(history) >= b.capacity {
			copy(history, history[1:])
			history = history[:b.capacity-1]
		}

		b.histories[id] = append(history, sample{at: frame.Timestamp, x: lm.X, y: lm.Y})
	}
}

// Velocity returns the finite-difference speed estimate for the landmark in
// normalized units per second, using the two most recent valid samples.
// Returns zero when fewer than two samples are available.
func (b *Buffer) Velocity(id int) float64 {
	history := b.histories[id]
	n := len(history)
	if n < 2 {
		return 0
	}
	return speedBetween(history[n-2], history[n-1])
}

// Jerk returns the finite difference of the two most recent velocity
// estimates divided by elapsed time, normalized by the configured full-scale
// constant and clamped to [0,1]. Returns zero when fewer than three samples
// are available.
func (b *Buffer) Jerk(id int) float64 {
	history := b.histories[id]
	n := len(history)
	if n < 3 {
		return 0
	}

	v1 := speedBetween(history[n-3], history[n-2])
	v2 := speedBetween(history[n-2], history[n-1])

	dt := history[n-1].at.Sub(history[n-2].at).Seconds()
	if dt <= 0 {
		return 0
	}

	raw := (v2 - v1) / dt
	if raw < 0 {
		raw = -raw
	}
	if b.jerkFullScale <= 0 {
		return 0
	}
	return clamp(raw/b.jerkFullScale, 0, 1)
}

// Reset discards all histories. Called at session start.
func (b *Buffer) Reset() {
	for id := range b.histories {
		b.histories[id] = b.histories[id][:0]
	}
}

// speedBetween returns the displacement between two samples divided by the
// elapsed time, or zero when timestamps do not advance.
func speedBetween(a, c sample) float64 {
	dt := c.at.Sub(a.at).Seconds()
	if dt <= 0 {
		return 0
	}
	dx := c.x - a.x
	dy := c.y - a.y
	return dist2d(dx, dy) / dt
}
