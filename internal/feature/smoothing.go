package feature

import "math"

// Smoother applies per-feature exponential moving average smoothing:
//
//	smoothed = alpha*raw + (1-alpha)*previous
//
// The first observation of a feature initializes the accumulator to the raw
// value rather than zero, avoiding an artificial ramp at session start.
type Smoother struct {
	defaultAlpha float64
	alphas       map[string]float64
	prev         map[string]float64
}

// NewSmoother creates a Smoother with a default alpha and optional
// per-feature overrides. Alphas must lie in (0,1]; they are validated by the
// configuration layer before a session starts.
func NewSmoother(defaultAlpha float64, alphas map[string]float64) *Smoother {
	s := &Smoother{
		defaultAlpha: defaultAlpha,
		alphas:       make(map[string]float64, len(alphas)),
		prev:         make(map[string]float64),
	}
	for name, alpha := range alphas {
		s.alphas[name] = alpha
	}
	return s
}

// Smooth folds the raw value into the feature's accumulator and returns the
// smoothed value.
func (s *Smoother) Smooth(name string, raw float64) float64 {
	prev, ok := s.prev[name]
	if !ok {
		s.prev[name] = raw
		return raw
	}

	alpha := s.defaultAlpha
	if a, ok := s.alphas[name]; ok {
		alpha = a
	}

	smoothed := alpha*raw + (1-alpha)*prev
	s.prev[name] = smoothed
	return smoothed
}

// Last returns the current smoothed value for a feature, if one exists.
// Used to hold a feature when its landmarks drop out of visibility.
func (s *Smoother) Last(name string) (float64, bool) {
	v, ok := s.prev[name]
	return v, ok
}

// Reset clears all accumulators. Called at session start.
func (s *Smoother) Reset() {
	s.prev = make(map[string]float64)
}

// clamp restricts a value to [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// dist2d returns the Euclidean length of a 2D displacement.
func dist2d(dx, dy float64) float64 {
	return math.Sqrt(dx*dx + dy*dy)
}
