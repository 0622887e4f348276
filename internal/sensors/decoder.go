package sensors

import (
	"encoding/binary"
	"math"
	"sort"
)

const (
	headerSize   = 2 // preamble + timestamp marker
	reservedSize = 2

	accelerometerReportSize = 9
	environmentReportSize   = 7

	// id + reserved field, after which every layout starts its values
	valueOffset = 1 + reservedSize

	int16Scale = 32768.0
)

// Decoder turns one sub-report (id byte included) into named readings.
type Decoder func(def SensorDefinition, sub []byte) ([]Reading, error)

func requireLen(def SensorDefinition, sub []byte, n int) error {
	if len(sub) < n {
		return malformed("%s sub-report has %d bytes, need %d", def.Label, len(sub), n)
	}
	return nil
}

func int16At(b []byte, off int) float64 {
	return float64(int16(binary.LittleEndian.Uint16(b[off:]))) / int16Scale
}

func sortReadings(r []Reading) []Reading {
	sort.Slice(r, func(i, j int) bool { return r[i].Key < r[j].Key })
	return r
}

// decodeAccelerometer handles accelerometer, gyroscope and magnetometer: three
// signed axes scaled to a fraction of full range.
func decodeAccelerometer(def SensorDefinition, sub []byte) ([]Reading, error) {
	if err := requireLen(def, sub, valueOffset+3*2); err != nil {
		return nil, err
	}
	return sortReadings([]Reading{
		{Key: def.Label + "_X", Value: FloatValue(int16At(sub, valueOffset))},
		{Key: def.Label + "_Y", Value: FloatValue(int16At(sub, valueOffset+2))},
		{Key: def.Label + "_Z", Value: FloatValue(int16At(sub, valueOffset+4))},
	}), nil
}

func decodeEnvironment(def SensorDefinition, sub []byte) ([]Reading, error) {
	if err := requireLen(def, sub, valueOffset+2); err != nil {
		return nil, err
	}
	raw := binary.LittleEndian.Uint16(sub[valueOffset:])

	var v Value
	switch def.Label {
	case "TEMPERATURE", "PRESSURE":
		v = FloatValue(float64(raw) * 0.01)
	case "HUMIDITY":
		v = FloatValue(math.Round(float64(raw)*0.9765*0.001*100) / 100)
	default:
		// GAS: the kit documents no conversion, keep the raw resistance
		v = IntValue(int64(raw))
	}
	return []Reading{{Key: def.Label, Value: v}}, nil
}

func decodeLightProximity(def SensorDefinition, sub []byte) ([]Reading, error) {
	if err := requireLen(def, sub, valueOffset+2); err != nil {
		return nil, err
	}
	raw := binary.LittleEndian.Uint16(sub[valueOffset:])

	var v Value
	switch def.Label {
	case "PROXIMITY":
		v = StateValue("OFF")
		if raw != 0 {
			v = StateValue("ON")
		}
	default:
		v = FloatValue(float64(raw) / 4)
	}
	return []Reading{{Key: def.Label, Value: v}}, nil
}

// decodeFusion reads the W, X, Y, Z quaternion components.
func decodeFusion(def SensorDefinition, sub []byte) ([]Reading, error) {
	if err := requireLen(def, sub, valueOffset+4*2); err != nil {
		return nil, err
	}
	return sortReadings([]Reading{
		{Key: "FUSION_W", Value: FloatValue(int16At(sub, valueOffset))},
		{Key: "FUSION_X", Value: FloatValue(int16At(sub, valueOffset+2))},
		{Key: "FUSION_Y", Value: FloatValue(int16At(sub, valueOffset+4))},
		{Key: "FUSION_Z", Value: FloatValue(int16At(sub, valueOffset+6))},
	}), nil
}
