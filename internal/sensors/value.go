package sensors

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindFloat valueKind = iota
	kindInt
	kindState
	kindRaw
)

// Value is a decoded scalar: a float, an unscaled integer, an enum state such
// as "ON", or the raw bytes of a sub-report nobody could decode.
type Value struct {
	kind valueKind
	f    float64
	i    int64
	s    string
	raw  []byte
}

// FloatValue wraps a scaled reading.
func FloatValue(f float64) Value { return Value{kind: kindFloat, f: f} }

// IntValue wraps a reading that is logged unscaled, such as gas resistance.
func IntValue(i int64) Value { return Value{kind: kindInt, i: i} }

// StateValue wraps an enum reading such as "ON" or "OFF".
func StateValue(s string) Value { return Value{kind: kindState, s: s} }

// RawValue copies b so the value outlives the notification buffer.
func RawValue(b []byte) Value {
	c := make([]byte, len(b))
	copy(c, b)
	return Value{kind: kindRaw, raw: c}
}

// Float returns the numeric value. ok is false for states and raw bytes.
func (v Value) Float() (f float64, ok bool) {
	switch v.kind {
	case kindFloat:
		return v.f, true
	case kindInt:
		return float64(v.i), true
	}
	return 0, false
}

// Raw returns the raw bytes held by an undecoded value.
func (v Value) Raw() []byte { return v.raw }

// Equal reports whether v and o hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case kindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case kindInt:
		return v.i == o.i
	case kindState:
		return v.s == o.s
	default:
		return string(v.raw) == string(o.raw)
	}
}

// String renders the value the way it appears in log lines: floats carry a
// fractional part ("10.0") or an exponent, integers do not, raw bytes are hex.
func (v Value) String() string {
	switch v.kind {
	case kindFloat:
		return formatFloat(v.f)
	case kindInt:
		return strconv.FormatInt(v.i, 10)
	case kindState:
		return v.s
	default:
		return hex.EncodeToString(v.raw)
	}
}

// MarshalJSON emits numbers as JSON numbers and everything else as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return json.Marshal(v.String())
		}
		return json.Marshal(v.f)
	case kindInt:
		return json.Marshal(v.i)
	default:
		return json.Marshal(v.String())
	}
}

// formatFloat prints the shortest representation that round-trips. It switches to exponent form ("3.0517578125e-05") when the
// decimal exponent is below -4 or at least 16, and otherwise always shows a
// fractional part ("10.0").
func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if f != 0 {
		e := strconv.FormatFloat(f, 'e', -1, 64)
		if exp, err := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:]); err == nil && (exp < -4 || exp >= 16) {
			return e
		}
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.ContainsRune(s, '.') {
		return s
	}
	return s + ".0"
}

// Reading is one named scalar, e.g. ACCELEROMETER_X=0.0123.
type Reading struct {
	Key   string
	Value Value
}
