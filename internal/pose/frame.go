package pose

import (
	"fmt"
	"time"
)

// FrameFromSlice builds a Frame from a landmark slice as delivered on the
// wire. A slice that does not hold exactly NumLandmarks entries is a
// malformed frame and is rejected whole.
func FrameFromSlice(ts time.Time, landmarks []Landmark) (Frame, error) {
	if len(landmarks) != NumLandmarks {
		return Frame{}, fmt.Errorf("malformed frame: got %d landmarks, want %d", len(landmarks), NumLandmarks)
	}

	f := Frame{Timestamp: ts}
	copy(f.Landmarks[:], landmarks)
	return f, nil
}
