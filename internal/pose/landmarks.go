// Package pose defines the body landmark data model consumed by the engine.
package pose

import (
	"math"
	"time"
)

// Body landmark indices following the MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose          = 0
	LeftEar       = 7
	RightEar      = 8
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16
	LeftHip       = 23
	RightHip      = 24
	LeftKnee      = 25
	RightKnee     = 26
	LeftAnkle     = 27
	RightAnkle    = 28
	NumLandmarks  = 33
)

// Landmark represents a single body point in normalized image coordinates.
// X and Y are in [0,1], Z is unconstrained depth, Visibility is the
// detector's confidence in [0,1]. Landmarks are immutable per frame.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Frame is one full set of pose landmarks captured at a point in time.
type Frame struct {
	Timestamp time.Time
	Landmarks [NumLandmarks]Landmark
}

// Visible reports whether the landmark's confidence meets the threshold.
func (l Landmark) Visible(threshold float64) bool {
	return l.Visibility >= threshold
}

// Midpoint returns the 2D midpoint between two landmarks.
func Midpoint(a, b Landmark) (x, y float64) {
	return (a.X + b.X) / 2, (a.Y + b.Y) / 2
}

// Distance returns the 2D Euclidean distance between two landmarks.
func Distance(a, b Landmark) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// InteriorAngle returns the angle in radians at the vertex landmark between
// the segments vertex→a and vertex→b, computed via the law of cosines.
// Degenerate (zero-length) segments yield zero rather than NaN.
func InteriorAngle(vertex, a, b Landmark) float64 {
	la := Distance(vertex, a)
	lb := Distance(vertex, b)
	if la < 1e-10 || lb < 1e-10 {
		return 0
	}

	dot := (a.X-vertex.X)*(b.X-vertex.X) + (a.Y-vertex.Y)*(b.Y-vertex.Y)
	cos := dot / (la * lb)

	// Guard against floating point drift outside acos's domain.
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}

	return math.Acos(cos)
}

// TiltAngle returns the signed tilt of the left→right segment against the
// horizontal, in radians. A positive value means the right landmark sits
// lower in the image (larger Y) than the left one.
func TiltAngle(left, right Landmark) float64 {
	dy := right.Y - left.Y
	dx := math.Abs(right.X - left.X)
	return math.Atan2(dy, dx)
}
