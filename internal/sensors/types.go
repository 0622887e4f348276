package sensors

// Group identifies a family of sensors sharing one byte layout and decoder.
type Group string

const (
	GroupAccelerometer    Group = "ACCELEROMETER"
	GroupEnvironment      Group = "ENVIRONMENT"
	GroupLightProximity   Group = "AMBIENT_LIGHT_AND_PROXIMITY"
	GroupSensorFusion     Group = "SENSOR_FUSION"
	GroupCommandReply     Group = "COMMAND_REPLY"
	GroupIndoorAirQuality Group = "INDOOR_AIR_QUALITY"
	GroupButton           Group = "BUTTON"
	GroupVelocityDelta    Group = "VELOCITY_DELTA"
	GroupEulerAngleDelta  Group = "EULER_ANGLE_DELTA"
	GroupQuaternionDelta  Group = "QUATERNION_DELTA"
)

// Width returns the fixed sub-report size for the group. ok is false for
// groups that consume the whole payload (sensor fusion) or that have no
// decoder at all.
func (g Group) Width() (width int, ok bool) {
	switch g {
	case GroupAccelerometer:
		return accelerometerReportSize, true
	case GroupEnvironment, GroupLightProximity:
		return environmentReportSize, true
	}
	return 0, false
}

// Decoder returns the field decoder for the group, or nil when the group is
// not supported yet.
func (g Group) Decoder() Decoder {
	switch g {
	case GroupAccelerometer:
		return decodeAccelerometer
	case GroupEnvironment:
		return decodeEnvironment
	case GroupLightProximity:
		return decodeLightProximity
	case GroupSensorFusion:
		return decodeFusion
	}
	return nil
}

// SensorDefinition describes one sensor id reported by the kit.
type SensorDefinition struct {
	ID          byte
	Label       string // prefix used for reading keys, e.g. "TEMPERATURE"
	Group       Group
	EnglishName string
	DeviceClass string // Home Assistant device class, may be empty
	Unit        string // unit of measurement, may be empty
}

// Supported reports whether readings of this sensor can be decoded.
func (d SensorDefinition) Supported() bool { return d.Group.Decoder() != nil }

// AllSensors lists every sensor id of the DA14585 IoT multi sensor kit
// (developer guide UM-B-101, table 7).
var AllSensors = []SensorDefinition{
	{1, "ACCELEROMETER", GroupAccelerometer, "Accelerometer", "", "g"},
	{2, "GYROSCOPE", GroupAccelerometer, "Gyroscope", "", ""},
	{3, "MAGNETOMETER", GroupAccelerometer, "Magnetometer", "", ""},
	{4, "PRESSURE", GroupEnvironment, "Pressure", "pressure", "Pa"},
	{5, "HUMIDITY", GroupEnvironment, "Humidity", "humidity", "%"},
	{6, "TEMPERATURE", GroupEnvironment, "Temperature", "temperature", "°C"},
	{7, "SENSOR_FUSION", GroupSensorFusion, "Sensor Fusion", "", ""},
	{8, "COMMAND_REPLY", GroupCommandReply, "Command Reply", "", ""},
	{9, "AMBIENT_LIGHT", GroupLightProximity, "Ambient Light", "illuminance", "lx"},
	{10, "PROXIMITY", GroupLightProximity, "Proximity", "", ""},
	{11, "GAS", GroupEnvironment, "Gas Resistance", "", ""},
	{12, "IAQ", GroupIndoorAirQuality, "Indoor Air Quality", "", ""},
	{13, "BUTTON", GroupButton, "Button", "", ""},
	{14, "VELOCITY_DELTA", GroupVelocityDelta, "Velocity Delta", "", ""},
	{15, "EULER_ANGLE_DELTA", GroupEulerAngleDelta, "Euler Angle Delta", "", ""},
	{16, "QUATERNION_DELTA", GroupQuaternionDelta, "Quaternion Delta", "", ""},
}

// Registry is an immutable id → definition table. It is safe for concurrent
// use because nothing mutates it after NewRegistry returns.
type Registry struct {
	byID [256]*SensorDefinition
	defs []SensorDefinition
}

// NewRegistry builds a registry from defs. Later duplicates of an id win.
func NewRegistry(defs []SensorDefinition) *Registry {
	r := &Registry{defs: make([]SensorDefinition, len(defs))}
	copy(r.defs, defs)
	for i := range r.defs {
		r.byID[r.defs[i].ID] = &r.defs[i]
	}
	return r
}

var defaultRegistry = NewRegistry(AllSensors)

// DefaultRegistry returns the process wide registry built from AllSensors.
func DefaultRegistry() *Registry { return defaultRegistry }

// Lookup returns the definition for id.
func (r *Registry) Lookup(id byte) (SensorDefinition, bool) {
	if d := r.byID[id]; d != nil {
		return *d, true
	}
	return SensorDefinition{}, false
}

// Definitions returns a copy of all definitions in registration order.
func (r *Registry) Definitions() []SensorDefinition {
	out := make([]SensorDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// SupportedDefinitions returns the definitions that have a decoder.
func (r *Registry) SupportedDefinitions() []SensorDefinition {
	out := make([]SensorDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		if d.Supported() {
			out = append(out, d)
		}
	}
	return out
}

// ReadingKeys lists the keys the sensor's decoder emits, in emission order.
// Sensors without a decoder have none.
func (d SensorDefinition) ReadingKeys() []string {
	switch d.Group {
	case GroupAccelerometer:
		return []string{d.Label + "_X", d.Label + "_Y", d.Label + "_Z"}
	case GroupSensorFusion:
		return []string{"FUSION_W", "FUSION_X", "FUSION_Y", "FUSION_Z"}
	case GroupEnvironment, GroupLightProximity:
		return []string{d.Label}
	}
	return nil
}
