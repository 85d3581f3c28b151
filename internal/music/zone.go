package music

// ZoneCount is the number of equal horizontal bands the stage divides into.
const ZoneCount = 4

// ZoneClassifier maps the feetCenterX feature to a discrete zone index with
// boundary hysteresis. To confirm a zone change the input must cross the
// boundary toward the candidate zone by the margin; until then the
// previously confirmed zone is retained, so a performer standing on a
// boundary does not retrigger the harmonic context every frame.
type ZoneClassifier struct {
	margin      float64
	zone        int
	initialized bool
}

// NewZoneClassifier creates a classifier with the given hysteresis margin.
func NewZoneClassifier(margin float64) *ZoneClassifier {
	return &ZoneClassifier{margin: margin}
}

// Zone returns the currently confirmed zone index.
func (z *ZoneClassifier) Zone() int {
	return z.zone
}

// Reset returns the classifier to its uninitialized state.
func (z *ZoneClassifier) Reset() {
	z.zone = 0
	z.initialized = false
}

// Classify feeds one feetCenterX value and returns the confirmed zone index
// plus whether this call confirmed a change. The very first call seeds the
// zone without reporting a change.
func (z *ZoneClassifier) Classify(x float64) (zone int, changed bool) {
	candidate := bandOf(x)

	if !z.initialized {
		z.zone = candidate
		z.initialized = true
		return z.zone, false
	}

	if candidate == z.zone {
		return z.zone, false
	}

	// The candidate band must be entered by more than the margin past the
	// boundary nearest to the current zone.
	if candidate > z.zone {
		boundary := float64(candidate) * (1.0 / ZoneCount)
		if x < boundary+z.margin {
			return z.zone, false
		}
	} else {
		boundary := float64(candidate+1) * (1.0 / ZoneCount)
		if x > boundary-z.margin {
			return z.zone, false
		}
	}

	z.zone = candidate
	return z.zone, true
}

// bandOf returns the raw band index for a position in [0,1].
func bandOf(x float64) int {
	band := int(x * ZoneCount)
	if band < 0 {
		return 0
	}
	if band >= ZoneCount {
		return ZoneCount - 1
	}
	return band
}
