package sensors

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is wrapped by every error caused by a notification or
	// sub-report too short for its layout.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnsupportedGroup matches *UnsupportedError.
	ErrUnsupportedGroup = errors.New("unsupported sensor group")
)

// UnsupportedError records a known sensor id whose group has no decoder.
type UnsupportedError struct {
	ID     byte
	Label  string
	Group  Group
	Offset int // offset of the sub-report within the post-header payload
	Data   []byte
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("sensor %d (%s) in group %s has no decoder", e.ID, e.Label, e.Group)
}

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupportedGroup }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}
