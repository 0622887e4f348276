package transmission

import (
	"context"

	"github.com/jkaberg/iotkit-logger/internal/sensors"
)

// Transmitter defines the interface for transmitting decoded reports
type Transmitter interface {
	Name() string
	Transmit(ctx context.Context, r *sensors.Report) error
	IsConnected() bool
}

// Observer is implemented by transmitters that want to see every report,
// not only the ones picked at their transmit interval.
type Observer interface {
	Observe(r *sensors.Report)
}
