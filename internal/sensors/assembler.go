package sensors

import (
	"fmt"
	"time"
)

// UnsupportedPolicy decides what happens to the rest of a notification once a
// sub-report from a group without decoder is met.
type UnsupportedPolicy int

const (
	// PolicyStop abandons the remaining sub-reports of the notification.
	PolicyStop UnsupportedPolicy = iota
	// PolicySkip drops only the unsupported sub-report.
	PolicySkip
)

func (p UnsupportedPolicy) String() string {
	if p == PolicySkip {
		return "skip"
	}
	return "stop"
}

// ParseUnsupportedPolicy accepts "stop" or "skip".
func ParseUnsupportedPolicy(s string) (UnsupportedPolicy, error) {
	switch s {
	case "stop", "":
		return PolicyStop, nil
	case "skip":
		return PolicySkip, nil
	}
	return PolicyStop, fmt.Errorf("unknown unsupported-sensor policy %q (want stop or skip)", s)
}

// Assembler decodes whole notifications. It holds no per-call state and may
// be shared between goroutines.
type Assembler struct {
	registry *Registry
	policy   UnsupportedPolicy
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithUnsupportedPolicy overrides the default PolicyStop.
func WithUnsupportedPolicy(p UnsupportedPolicy) AssemblerOption {
	return func(a *Assembler) { a.policy = p }
}

// NewAssembler returns an assembler backed by reg, or by DefaultRegistry when
// reg is nil.
func NewAssembler(reg *Registry, opts ...AssemblerOption) *Assembler {
	if reg == nil {
		reg = DefaultRegistry()
	}
	a := &Assembler{registry: reg}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Registry returns the registry the assembler decodes with.
func (a *Assembler) Registry() *Registry { return a.registry }

// Assemble decodes one raw notification captured at capturedAt.
//
// Unknown sensor ids are kept under UnknownLabel with their raw bytes, one
// reading per unknown sub-report.
// Sub-reports too short for their layout fail the whole call with an error
// wrapping ErrMalformedFrame.
func (a *Assembler) Assemble(notification []byte, capturedAt time.Time) (*Report, error) {
	if len(notification) < headerSize {
		return nil, malformed("notification has %d bytes, header needs %d", len(notification), headerSize)
	}
	payload := notification[headerSize:]
	report := newReport(capturedAt)

	offset := 0
	for sub := range a.registry.Split(payload) {
		at := offset
		offset += len(sub)

		def, ok := a.registry.Lookup(sub[0])
		if !ok {
			// Every unknown chunk is kept; UNKNOWN is never overwritten.
			unknown, _ := report.Get(UnknownLabel)
			report.Set(UnknownLabel, append(unknown, Reading{Key: UnknownLabel, Value: RawValue(sub)}))
			continue
		}
		decode := def.Group.Decoder()
		if decode == nil {
			report.Unsupported = append(report.Unsupported, &UnsupportedError{
				ID:     def.ID,
				Label:  def.Label,
				Group:  def.Group,
				Offset: at,
				Data:   RawValue(sub).Raw(),
			})
			if a.policy == PolicyStop {
				report.Truncated = offset < len(payload)
				break
			}
			continue
		}
		readings, err := decode(def, sub)
		if err != nil {
			return nil, fmt.Errorf("decode %s at offset %d: %w", def.Label, at, err)
		}
		report.Set(def.Label, readings)
	}
	return report, nil
}
