package feature

import (
	"math"
	"time"

	"github.com/ayusman/cuerposonoro/internal/pose"
)

// Feature names emitted by the extractor. These are also the wire names of
// the parameter stream (one OSC message per name per frame).
const (
	FeetCenterX        = "feetCenterX"
	HipTilt            = "hipTilt"
	KneeAngle          = "kneeAngle"
	RightHandY         = "rightHandY"
	LeftHandY          = "leftHandY"
	RightHandJerk      = "rightHandJerk"
	LeftHandJerk       = "leftHandJerk"
	RightArmVelocity   = "rightArmVelocity"
	LeftArmVelocity    = "leftArmVelocity"
	RightElbowHipAngle = "rightElbowHipAngle"
	LeftElbowHipAngle  = "leftElbowHipAngle"
	HeadTilt           = "headTilt"
	Energy             = "energy"
	Symmetry           = "symmetry"
	Smoothness         = "smoothness"
	ArmAngle           = "armAngle"
	VerticalExtension  = "verticalExtension"
)

// Names lists every feature in emission order.
var Names = []string{
	FeetCenterX, HipTilt, KneeAngle,
	RightHandY, LeftHandY,
	RightHandJerk, LeftHandJerk,
	RightArmVelocity, LeftArmVelocity,
	RightElbowHipAngle, LeftElbowHipAngle,
	HeadTilt,
	Energy, Symmetry, Smoothness, ArmAngle, VerticalExtension,
}

// signed marks the features whose declared range is [-1,1]; all others are [0,1].
var signed = map[string]bool{
	HipTilt:  true,
	HeadTilt: true,
	Symmetry: true,
}

// defaults hold the neutral value reported for a feature before it has ever
// been computed.
var defaults = map[string]float64{
	FeetCenterX:       0.5,
	KneeAngle:         1.0,
	RightHandY:        0.5,
	LeftHandY:         0.5,
	Smoothness:        0.5,
	VerticalExtension: 0.5,
}

// Range returns the declared [min,max] range for a feature name.
func Range(name string) (min, max float64) {
	if signed[name] {
		return -1, 1
	}
	return 0, 1
}

// DefaultValue returns the neutral value a feature reports before it has
// been observed.
func DefaultValue(name string) float64 {
	return defaults[name]
}

// Vector maps feature names to normalized scalars. A Vector is created
// fresh per frame and never mutated afterwards.
type Vector map[string]float64

// Options configures an Extractor. All values are validated by the
// configuration layer; see config.Engine.
type Options struct {
	// BufferCapacity is the rolling history depth per landmark (min 3).
	BufferCapacity int
	// VisibilityThreshold is the minimum landmark confidence for a sample
	// to participate in any feature.
	VisibilityThreshold float64
	// GapTolerance is the maximum invisibility gap before derivative
	// history restarts.
	GapTolerance time.Duration
	// JerkFullScale is the raw jerk magnitude (units/s²) mapped to 1.0.
	JerkFullScale float64
	// VelocityFullScale is the raw speed (units/s) mapped to 1.0.
	VelocityFullScale float64
	// DefaultAlpha is the EMA alpha used when no per-feature override exists.
	DefaultAlpha float64
	// Alphas holds per-feature EMA overrides.
	Alphas map[string]float64
}

// Extractor computes the full feature vector for each incoming frame. It is
// deterministic given its internal buffer and smoothing state, which it owns
// exclusively for the lifetime of a session.
type Extractor struct {
	opts     Options
	buffer   *Buffer
	smoother *Smoother
	prev     *pose.Frame
}

// NewExtractor creates an Extractor with fresh buffer and smoothing state.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{
		opts: opts,
		buffer: NewBuffer(
			opts.BufferCapacity,
			opts.VisibilityThreshold,
			opts.GapTolerance,
			opts.JerkFullScale,
			pose.LeftWrist, pose.RightWrist,
		),
		smoother: NewSmoother(opts.DefaultAlpha, opts.Alphas),
	}
}

// Reset discards all per-session state. Called at session start.
func (e *Extractor) Reset() {
	e.buffer.Reset()
	e.smoother.Reset()
	e.prev = nil
}

// Extract computes the feature vector for one frame. Features whose
// landmarks fall below the visibility threshold are held at their last
// smoothed value instead of being recomputed. Every returned value lies
// within its declared range.
func (e *Extractor) Extract(frame pose.Frame) Vector {
	e.buffer.Push(frame)

	lm := &frame.Landmarks
	v := make(Vector, len(Names))

	// Lower body.
	e.put(v, FeetCenterX, e.feetCenterX(lm), e.visible(lm, pose.LeftAnkle, pose.RightAnkle))
	e.put(v, HipTilt, e.tilt(lm[pose.LeftHip], lm[pose.RightHip]), e.visible(lm, pose.LeftHip, pose.RightHip))
	e.put(v, KneeAngle, e.kneeAngle(lm), e.visible(lm, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle, pose.RightHip, pose.RightKnee, pose.RightAnkle))

	// Hand height, body-relative.
	e.put(v, RightHandY, e.handY(lm, pose.RightWrist), e.visible(lm, pose.RightWrist, pose.LeftHip, pose.RightHip, pose.LeftEar, pose.RightEar))
	e.put(v, LeftHandY, e.handY(lm, pose.LeftWrist), e.visible(lm, pose.LeftWrist, pose.LeftHip, pose.RightHip, pose.LeftEar, pose.RightEar))

	// Derivatives from the rolling buffer.
	e.put(v, RightHandJerk, e.buffer.Jerk(pose.RightWrist), e.visible(lm, pose.RightWrist))
	e.put(v, LeftHandJerk, e.buffer.Jerk(pose.LeftWrist), e.visible(lm, pose.LeftWrist))
	e.put(v, RightArmVelocity, e.armVelocity(pose.RightWrist), e.visible(lm, pose.RightWrist))
	e.put(v, LeftArmVelocity, e.armVelocity(pose.LeftWrist), e.visible(lm, pose.LeftWrist))

	// Arm geometry.
	e.put(v, RightElbowHipAngle, e.elbowHipAngle(lm, pose.RightShoulder, pose.RightElbow, pose.RightHip),
		e.visible(lm, pose.RightShoulder, pose.RightElbow, pose.RightHip))
	e.put(v, LeftElbowHipAngle, e.elbowHipAngle(lm, pose.LeftShoulder, pose.LeftElbow, pose.LeftHip),
		e.visible(lm, pose.LeftShoulder, pose.LeftElbow, pose.LeftHip))

	// Head.
	e.put(v, HeadTilt, e.tilt(lm[pose.LeftEar], lm[pose.RightEar]), e.visible(lm, pose.LeftEar, pose.RightEar))

	// Whole-body features against the previous frame.
	hasPrev := e.prev != nil
	e.put(v, Energy, e.energy(lm), hasPrev)
	e.put(v, Symmetry, e.symmetry(lm), e.visible(lm, pose.LeftWrist, pose.RightWrist))
	e.put(v, Smoothness, e.smoothnessVal(lm), hasPrev)
	e.put(v, ArmAngle, e.armAngle(lm), e.visible(lm, pose.LeftShoulder, pose.RightShoulder, pose.LeftWrist, pose.RightWrist))
	e.put(v, VerticalExtension, e.verticalExtension(lm), e.visible(lm, pose.Nose, pose.LeftAnkle, pose.RightAnkle))

	prev := frame
	e.prev = &prev

	return v
}

// put smooths and clamps a computed raw value into the vector. When the
// feature could not be computed this frame it is held at its last smoothed
// value, falling back to the neutral default before first observation.
func (e *Extractor) put(v Vector, name string, raw float64, computed bool) {
	if !computed {
		if last, ok := e.smoother.Last(name); ok {
			v[name] = last
		} else {
			v[name] = DefaultValue(name)
		}
		return
	}

	min, max := Range(name)
	v[name] = clamp(e.smoother.Smooth(name, raw), min, max)
}

// visible reports whether every listed landmark meets the visibility threshold.
func (e *Extractor) visible(lm *[pose.NumLandmarks]pose.Landmark, ids ...int) bool {
	for _, id := range ids {
		if !lm[id].Visible(e.opts.VisibilityThreshold) {
			return false
		}
	}
	return true
}

func (e *Extractor) feetCenterX(lm *[pose.NumLandmarks]pose.Landmark) float64 {
	x, _ := pose.Midpoint(lm[pose.LeftAnkle], lm[pose.RightAnkle])
	return clamp(x, 0, 1)
}

// tilt maps the signed left→right tilt angle onto [-1,1], with ±1 at a
// fully vertical segment. Positive means the right landmark sits lower.
func (e *Extractor) tilt(left, right pose.Landmark) float64 {
	return clamp(pose.TiltAngle(left, right)/(math.Pi/2), -1, 1)
}

// kneeAngle averages the hip-knee-ankle interior angle of both legs,
// normalized so 1.0 is a fully extended leg.
func (e *Extractor) kneeAngle(lm *[pose.NumLandmarks]pose.Landmark) float64 {
	left := pose.InteriorAngle(lm[pose.LeftKnee], lm[pose.LeftHip], lm[pose.LeftAnkle])
	right := pose.InteriorAngle(lm[pose.RightKnee], lm[pose.RightHip], lm[pose.RightAnkle])
	return clamp((left+right)/(2*math.Pi), 0, 1)
}

// handY is the wrist height normalized against the performer's hip→ear
// span, so the scale holds regardless of distance to the camera. A
// degenerate span falls back to raw frame coordinates.
func (e *Extractor) handY(lm *[pose.NumLandmarks]pose.Landmark, wrist int) float64 {
	_, hipY := pose.Midpoint(lm[pose.LeftHip], lm[pose.RightHip])
	_, earY := pose.Midpoint(lm[pose.LeftEar], lm[pose.RightEar])

	span := hipY - earY
	if span < 0.05 {
		return clamp(1-lm[wrist].Y, 0, 1)
	}
	return clamp((hipY-lm[wrist].Y)/span, 0, 1)
}

func (e *Extractor) armVelocity(wrist int) float64 {
	if e.opts.VelocityFullScale <= 0 {
		return 0
	}
	return clamp(e.buffer.Velocity(wrist)/e.opts.VelocityFullScale, 0, 1)
}

// elbowHipAngle is the interior angle at the shoulder between the elbow and
// hip directions, normalized to [0,1] where 1.0 is a fully raised arm.
func (e *Extractor) elbowHipAngle(lm *[pose.NumLandmarks]pose.Landmark, shoulder, elbow, hip int) float64 {
	return clamp(pose.InteriorAngle(lm[shoulder], lm[elbow], lm[hip])/math.Pi, 0, 1)
}

// energy sums the per-frame displacement of the nose, wrists and ankles.
func (e *Extractor) energy(lm *[pose.NumLandmarks]pose.Landmark) float64 {
	if e.prev == nil {
		return 0
	}

	keys := [...]int{pose.Nose, pose.LeftWrist, pose.RightWrist, pose.LeftAnkle, pose.RightAnkle}
	var total float64
	for _, id := range keys {
		total += pose.Distance(lm[id], e.prev.Landmarks[id])
	}
	return clamp(total*10, 0, 1)
}

// symmetry compares how far each wrist extends from the frame center.
// Positive means the right side reaches further out.
func (e *Extractor) symmetry(lm *[pose.NumLandmarks]pose.Landmark) float64 {
	leftDev := 0.5 - lm[pose.LeftWrist].X
	rightDev := lm[pose.RightWrist].X - 0.5
	return clamp((rightDev-leftDev)*2, -1, 1)
}

// smoothnessVal is the inverse of wrist movement between frames: flowing
// motion scores high, abrupt motion low.
func (e *Extractor) smoothnessVal(lm *[pose.NumLandmarks]pose.Landmark) float64 {
	if e.prev == nil {
		return 0.5
	}

	total := pose.Distance(lm[pose.LeftWrist], e.prev.Landmarks[pose.LeftWrist]) +
		pose.Distance(lm[pose.RightWrist], e.prev.Landmarks[pose.RightWrist])
	return clamp(1-total*5, 0, 1)
}

// armAngle is the average arm elevation: 0 hanging, ~0.5 at shoulder level,
// 1 fully raised.
func (e *Extractor) armAngle(lm *[pose.NumLandmarks]pose.Landmark) float64 {
	elevation := func(shoulder, wrist int) float64 {
		return clamp(lm[shoulder].Y-lm[wrist].Y+0.5, 0, 1)
	}
	left := elevation(pose.LeftShoulder, pose.LeftWrist)
	right := elevation(pose.RightShoulder, pose.RightWrist)
	return (left + right) / 2
}

// verticalExtension measures how stretched the body is from ankles to nose.
func (e *Extractor) verticalExtension(lm *[pose.NumLandmarks]pose.Landmark) float64 {
	_, ankleY := pose.Midpoint(lm[pose.LeftAnkle], lm[pose.RightAnkle])
	return clamp((ankleY-lm[pose.Nose].Y)*1.5, 0, 1)
}
