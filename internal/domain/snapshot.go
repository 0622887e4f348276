package domain

import (
	"math"

	"github.com/jkaberg/iotkit-logger/internal/sensors"
)

// Jitter is the largest per-reading difference treated as sensor noise.
// One step of the 1/32768 scaled axes is ~3e-5, so this absorbs the few
// counts of drift a resting kit reports.
const Jitter = 0.002

// Changed returns true if *cur* differs from *prev* beyond tolerated jitter.
// Capture time is ignored. Reports with different keys always count as
// changed; numeric readings compare within Jitter, everything else exactly.
func Changed(prev, cur *sensors.Report) bool {
	if prev == nil && cur == nil {
		return false
	}
	if prev == nil || cur == nil {
		return true
	}
	if prev.Truncated != cur.Truncated {
		return true
	}

	p, c := prev.Flatten(), cur.Flatten()
	if len(p) != len(c) {
		return true
	}
	for k, pv := range p {
		cv, ok := c[k]
		if !ok {
			return true
		}
		pf, pnum := pv.Float()
		cf, cnum := cv.Float()
		if pnum && cnum {
			if math.Abs(pf-cf) > Jitter {
				return true
			}
			continue
		}
		if !pv.Equal(cv) {
			return true
		}
	}
	return false
}
