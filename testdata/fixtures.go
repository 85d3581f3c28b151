// Package testdata builds synthetic landmark frames for tests. The neutral
// pose is a front-facing standing figure with arms relaxed at the sides; all
// coordinates are normalized image space (top-left origin, y growing
// downward).
package testdata

import (
	"time"

	"github.com/ayusman/cuerposonoro/internal/pose"
)

// neutral holds the landmark positions of the standing reference pose.
var neutral = map[int][2]float64{
	pose.Nose:          {0.50, 0.15},
	pose.LeftEar:       {0.54, 0.13},
	pose.RightEar:      {0.46, 0.13},
	pose.LeftShoulder:  {0.60, 0.30},
	pose.RightShoulder: {0.40, 0.30},
	pose.LeftElbow:     {0.65, 0.45},
	pose.RightElbow:    {0.35, 0.45},
	pose.LeftWrist:     {0.65, 0.55},
	pose.RightWrist:    {0.35, 0.55},
	pose.LeftHip:       {0.55, 0.60},
	pose.RightHip:      {0.45, 0.60},
	pose.LeftKnee:      {0.55, 0.75},
	pose.RightKnee:     {0.45, 0.75},
	pose.LeftAnkle:     {0.55, 0.90},
	pose.RightAnkle:    {0.45, 0.90},
}

// Mutator adjusts a frame in place before it is returned.
type Mutator func(f *pose.Frame)

// NeutralFrame returns the standing reference pose at the given timestamp,
// optionally adjusted by mutators. Every landmark is fully visible.
func NeutralFrame(ts time.Time, mutators ...Mutator) pose.Frame {
	f := pose.Frame{Timestamp: ts}
	for i := range f.Landmarks {
		f.Landmarks[i] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: 1}
	}
	for idx, xy := range neutral {
		f.Landmarks[idx] = pose.Landmark{X: xy[0], Y: xy[1], Visibility: 1}
	}
	for _, m := range mutators {
		m(&f)
	}
	return f
}

// Move places one landmark at the given position.
func Move(idx int, x, y float64) Mutator {
	return func(f *pose.Frame) {
		f.Landmarks[idx].X = x
		f.Landmarks[idx].Y = y
	}
}

// Shift offsets one landmark by the given delta.
func Shift(idx int, dx, dy float64) Mutator {
	return func(f *pose.Frame) {
		f.Landmarks[idx].X += dx
		f.Landmarks[idx].Y += dy
	}
}

// Hide drops a landmark below any reasonable visibility threshold.
func Hide(idx int) Mutator {
	return func(f *pose.Frame) {
		f.Landmarks[idx].Visibility = 0.1
	}
}

// StandAt shifts the whole figure horizontally so the ankle midpoint lands
// at the given x. Used to walk the figure across stage zones.
func StandAt(x float64) Mutator {
	return func(f *pose.Frame) {
		dx := x - 0.5
		for i := range f.Landmarks {
			f.Landmarks[i].X += dx
		}
	}
}

// Sequence produces n frames spaced dt apart, each built from the neutral
// pose and adjusted by mutate (which may vary per frame index).
func Sequence(start time.Time, dt time.Duration, n int, mutate func(i int, f *pose.Frame)) []pose.Frame {
	frames := make([]pose.Frame, n)
	for i := range frames {
		frames[i] = NeutralFrame(start.Add(time.Duration(i) * dt))
		if mutate != nil {
			mutate(i, &frames[i])
		}
	}
	return frames
}
