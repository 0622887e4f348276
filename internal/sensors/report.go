package sensors

import (
	"encoding/json"
	"time"
)

// UnknownLabel tags sub-reports whose id is not in the registry.
const UnknownLabel = "UNKNOWN"

// Entry groups the readings decoded from one sub-report.
type Entry struct {
	Label    string
	Readings []Reading
}

// Report is the result of decoding one notification.
type Report struct {
	CapturedAt time.Time

	// Unsupported lists sub-reports of known sensors that have no decoder.
	Unsupported []*UnsupportedError
	// Truncated is set when sub-reports were abandoned after an unsupported
	// one (PolicyStop).
	Truncated bool

	entries []Entry
	index   map[string]int
}

func newReport(capturedAt time.Time) *Report {
	return &Report{CapturedAt: capturedAt, index: make(map[string]int)}
}

// Set stores readings under label. A label seen before keeps its position
// and has its readings replaced.
func (r *Report) Set(label string, readings []Reading) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[label]; ok {
		r.entries[i].Readings = readings
		return
	}
	r.index[label] = len(r.entries)
	r.entries = append(r.entries, Entry{Label: label, Readings: readings})
}

// Entries returns the entries in insertion order.
func (r *Report) Entries() []Entry { return r.entries }

// Get returns the readings stored under label.
func (r *Report) Get(label string) ([]Reading, bool) {
	i, ok := r.index[label]
	if !ok {
		return nil, false
	}
	return r.entries[i].Readings, true
}

// Value looks up a single reading key across all entries.
func (r *Report) Value(key string) (Value, bool) {
	for _, e := range r.entries {
		for _, rd := range e.Readings {
			if rd.Key == key {
				return rd.Value, true
			}
		}
	}
	return Value{}, false
}

// Flatten returns every reading key mapped to its value.
func (r *Report) Flatten() map[string]Value {
	out := make(map[string]Value)
	for _, e := range r.entries {
		for _, rd := range e.Readings {
			out[rd.Key] = rd.Value
		}
	}
	return out
}

// Len returns the number of entries.
func (r *Report) Len() int { return len(r.entries) }

// Epoch returns the capture time as fractional seconds since the Unix epoch.
func (r *Report) Epoch() float64 {
	return float64(r.CapturedAt.Unix()) + float64(r.CapturedAt.Nanosecond())/float64(time.Second)
}

// MarshalJSON renders {"timestamp": <epoch>, "report": {key: value, ...}}.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp float64          `json:"timestamp"`
		Report    map[string]Value `json:"report"`
		Truncated bool             `json:"truncated,omitempty"`
	}{r.Epoch(), r.Flatten(), r.Truncated})
}
