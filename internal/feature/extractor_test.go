package feature

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/ayusman/cuerposonoro/internal/pose"
	"github.com/ayusman/cuerposonoro/testdata"
)

// rawOptions disables smoothing so geometric expectations are exact.
func rawOptions() Options {
	return Options{
		BufferCapacity:      8,
		VisibilityThreshold: 0.5,
		GapTolerance:        350 * time.Millisecond,
		JerkFullScale:       30,
		VelocityFullScale:   3,
		DefaultAlpha:        1,
	}
}

func TestExtract_NeutralPose(t *testing.T) {
	e := NewExtractor(rawOptions())
	v := e.Extract(testdata.NeutralFrame(time.Now()))

	checks := []struct {
		name string
		want float64
	}{
		{FeetCenterX, 0.5},
		{HipTilt, 0},
		{HeadTilt, 0},
		{KneeAngle, 1.0},
		{Symmetry, 0},
		{ArmAngle, 0.25},
		{RightHandJerk, 0},
		{LeftHandJerk, 0},
		{RightArmVelocity, 0},
		{LeftArmVelocity, 0},
		{Energy, 0},
		{Smoothness, 0.5},
	}
	for _, c := range checks {
		if got := v[c.name]; math.Abs(got-c.want) > 1e-6 {
			t.Errorf("%s = %g, want %g", c.name, got, c.want)
		}
	}

	// Hands hang at the hips, near the bottom of the body-relative range.
	if v[RightHandY] > 0.3 {
		t.Errorf("rightHandY = %g, want < 0.3 for a hand at the hip", v[RightHandY])
	}
}

func TestExtract_HandAboveHead(t *testing.T) {
	e := NewExtractor(rawOptions())
	frame := testdata.NeutralFrame(time.Now(), testdata.Move(pose.RightWrist, 0.45, 0.08))

	v := e.Extract(frame)
	if v[RightHandY] < 0.7 {
		t.Errorf("rightHandY = %g, want > 0.7 for a hand above the head", v[RightHandY])
	}
	// The other hand is unaffected.
	if v[LeftHandY] > 0.3 {
		t.Errorf("leftHandY = %g, want < 0.3", v[LeftHandY])
	}
}

func TestExtract_HandYFallsBackWithoutBodySpan(t *testing.T) {
	e := NewExtractor(rawOptions())
	// Collapse ears onto the hips so the hip→ear span degenerates.
	frame := testdata.NeutralFrame(time.Now(),
		testdata.Move(pose.LeftEar, 0.54, 0.60),
		testdata.Move(pose.RightEar, 0.46, 0.60),
		testdata.Move(pose.RightWrist, 0.35, 0.20),
	)

	v := e.Extract(frame)
	if math.Abs(v[RightHandY]-0.8) > 1e-6 {
		t.Errorf("rightHandY = %g, want 0.8 from the raw-coordinate fallback", v[RightHandY])
	}
}

func TestExtract_HipTiltSign(t *testing.T) {
	e := NewExtractor(rawOptions())
	// Right hip dropped: positive tilt.
	frame := testdata.NeutralFrame(time.Now(), testdata.Move(pose.RightHip, 0.45, 0.70))

	v := e.Extract(frame)
	if v[HipTilt] <= 0 {
		t.Errorf("hipTilt = %g, want positive when the right hip sits lower", v[HipTilt])
	}
}

func TestExtract_HoldsLastValueWhenInvisible(t *testing.T) {
	e := NewExtractor(rawOptions())
	ts := time.Now()

	first := e.Extract(testdata.NeutralFrame(ts))
	held := first[RightHandY]

	// The wrist teleports but is occluded; the feature must hold.
	frame := testdata.NeutralFrame(ts.Add(33*time.Millisecond),
		testdata.Move(pose.RightWrist, 0.45, 0.05),
		testdata.Hide(pose.RightWrist),
	)
	v := e.Extract(frame)

	if math.Abs(v[RightHandY]-held) > 1e-9 {
		t.Errorf("rightHandY = %g while occluded, want held %g", v[RightHandY], held)
	}
}

func TestExtract_DefaultBeforeFirstObservation(t *testing.T) {
	e := NewExtractor(rawOptions())

	// Everything below the waist is occluded from the very first frame.
	frame := testdata.NeutralFrame(time.Now(),
		testdata.Hide(pose.LeftAnkle),
		testdata.Hide(pose.RightAnkle),
		testdata.Hide(pose.LeftKnee),
		testdata.Hide(pose.RightKnee),
	)
	v := e.Extract(frame)

	if v[FeetCenterX] != 0.5 {
		t.Errorf("feetCenterX = %g, want neutral default 0.5", v[FeetCenterX])
	}
	if v[KneeAngle] != 1.0 {
		t.Errorf("kneeAngle = %g, want neutral default 1.0", v[KneeAngle])
	}
}

func TestExtract_EnergyRespondsToMotion(t *testing.T) {
	e := NewExtractor(rawOptions())
	ts := time.Now()

	e.Extract(testdata.NeutralFrame(ts))
	v := e.Extract(testdata.NeutralFrame(ts.Add(33*time.Millisecond),
		testdata.Shift(pose.RightWrist, 0.05, -0.05),
		testdata.Shift(pose.LeftWrist, -0.05, -0.05),
	))

	if v[Energy] <= 0 {
		t.Errorf("energy = %g, want positive after wrist motion", v[Energy])
	}
	if v[Smoothness] >= 0.5 {
		t.Errorf("smoothness = %g, want below neutral after abrupt motion", v[Smoothness])
	}
}

func TestExtract_VelocityAndJerkFeatures(t *testing.T) {
	e := NewExtractor(rawOptions())
	ts := time.Now()
	dt := 33 * time.Millisecond

	// Two still frames, then a sudden strike of the right wrist.
	e.Extract(testdata.NeutralFrame(ts))
	e.Extract(testdata.NeutralFrame(ts.Add(dt)))
	v := e.Extract(testdata.NeutralFrame(ts.Add(2*dt), testdata.Shift(pose.RightWrist, 0, -0.2)))

	if v[RightArmVelocity] <= 0 {
		t.Errorf("rightArmVelocity = %g, want positive during a strike", v[RightArmVelocity])
	}
	if v[RightHandJerk] <= 0 {
		t.Errorf("rightHandJerk = %g, want positive during a strike", v[RightHandJerk])
	}
	if v[LeftHandJerk] != 0 {
		t.Errorf("leftHandJerk = %g, want 0 for the resting hand", v[LeftHandJerk])
	}
}

func TestExtract_AllValuesStayInRange(t *testing.T) {
	e := NewExtractor(Options{
		BufferCapacity:      8,
		VisibilityThreshold: 0.5,
		GapTolerance:        350 * time.Millisecond,
		JerkFullScale:       30,
		VelocityFullScale:   3,
		DefaultAlpha:        0.3,
	})

	// Fling every tracked point around the frame, including outside [0,1],
	// and verify the declared ranges hold on every output.
	ts := time.Now()
	positions := [][2]float64{{-0.5, -0.5}, {1.5, 1.5}, {0, 1}, {1, 0}, {0.5, 0.5}, {-1, 2}}
	for i, p := range positions {
		frame := testdata.NeutralFrame(ts.Add(time.Duration(i)*33*time.Millisecond), func(f *pose.Frame) {
			for j := range f.Landmarks {
				f.Landmarks[j].X = p[0]
				f.Landmarks[j].Y = p[1]
			}
		})

		v := e.Extract(frame)
		for _, name := range Names {
			min, max := Range(name)
			if v[name] < min || v[name] > max {
				t.Errorf("frame %d: %s = %g outside [%g,%g]", i, name, v[name], min, max)
			}
		}
	}
}

func TestExtract_RangeInvariantRandomized(t *testing.T) {
	e := NewExtractor(Options{
		BufferCapacity:      8,
		VisibilityThreshold: 0.5,
		GapTolerance:        350 * time.Millisecond,
		JerkFullScale:       30,
		VelocityFullScale:   3,
		DefaultAlpha:        0.3,
	})

	// Random coordinates well outside the frame, random confidences and
	// irregular frame spacing: every output must still land in its declared
	// range, including values held through invisibility and derivatives
	// computed across gaps.
	rng := rand.New(rand.NewSource(1))
	ts := time.Now()
	for i := 0; i < 5000; i++ {
		ts = ts.Add(time.Duration(1+rng.Intn(100)) * time.Millisecond)
		frame := testdata.NeutralFrame(ts, func(f *pose.Frame) {
			for j := range f.Landmarks {
				f.Landmarks[j].X = rng.Float64()*4 - 2
				f.Landmarks[j].Y = rng.Float64()*4 - 2
				f.Landmarks[j].Z = rng.Float64()*4 - 2
				f.Landmarks[j].Visibility = rng.Float64()
			}
		})

		v := e.Extract(frame)
		for _, name := range Names {
			min, max := Range(name)
			if v[name] < min || v[name] > max {
				t.Fatalf("frame %d: %s = %g outside [%g,%g]", i, name, v[name], min, max)
			}
		}
	}
}

func TestExtract_Reset(t *testing.T) {
	e := NewExtractor(rawOptions())
	ts := time.Now()

	e.Extract(testdata.NeutralFrame(ts))
	e.Extract(testdata.NeutralFrame(ts.Add(33 * time.Millisecond)))
	e.Reset()

	v := e.Extract(testdata.NeutralFrame(ts.Add(time.Second)))
	if v[Energy] != 0 {
		t.Errorf("energy = %g after reset, want 0 on a first frame", v[Energy])
	}
}
