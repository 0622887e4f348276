package sensors

import (
	"fmt"
	"math"
)

// Orientation is a Tait-Bryan rotation in degrees.
type Orientation struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// DeriveOrientation converts the SENSOR_FUSION quaternion of r into roll,
// pitch and yaw. ok is false when the report carries no fusion reading.
//
// The quaternion is normalised first; the kit's 1/32768 scaling leaves it a
// little off unit length.
func DeriveOrientation(r *Report) (o Orientation, ok bool) {
	if r == nil {
		return o, false
	}
	var q [4]float64
	for i, k := range []string{"FUSION_W", "FUSION_X", "FUSION_Y", "FUSION_Z"} {
		v, found := r.Value(k)
		if !found {
			return o, false
		}
		if q[i], found = v.Float(); !found {
			return o, false
		}
	}
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 {
		return o, false
	}
	w, x, y, z := q[0]/n, q[1]/n, q[2]/n, q[3]/n

	o.Roll = deg(math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)))
	sinp := 2 * (w*y - z*x)
	if math.Abs(sinp) >= 1 {
		o.Pitch = deg(math.Copysign(math.Pi/2, sinp))
	} else {
		o.Pitch = deg(math.Asin(sinp))
	}
	o.Yaw = deg(math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)))
	return o, true
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }

// ValidateReport performs basic plausibility checks on decoded values and
// returns human readable warnings. An empty slice means nothing looked off.
func ValidateReport(r *Report) []string {
	var warnings []string

	// Temperature is an unsigned raw value, so anything past 85 °C (the
	// BME680 ceiling) is a misread rather than weather.
	if v, ok := r.Value("TEMPERATURE"); ok {
		if t, _ := v.Float(); t > 85 {
			warnings = append(warnings, fmt.Sprintf("Temperature out of sensor range: %.2f°C", t))
		}
	}

	if raw, ok := r.Get(UnknownLabel); ok {
		for _, rd := range raw {
			warnings = append(warnings, fmt.Sprintf("Unknown sensor data: %s", rd.Value))
		}
	}

	if len(r.Unsupported) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d sub-report(s) from unsupported sensors", len(r.Unsupported)))
	}
	return warnings
}
