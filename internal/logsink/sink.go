package logsink

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"github.com/sirupsen/logrus"
)

// LineFormatter renders entries as "<unix seconds with 6 decimals><message>".
// Messages produced by sensors.FormatLogLine start with a space, which gives
// lines like "1700000000.250000 TEMPERATURE=10.0".
type LineFormatter struct{}

// Format implements logrus.Formatter.
func (LineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	ts := float64(e.Time.Unix()) + float64(e.Time.Nanosecond())/1e9
	b := make([]byte, 0, 32+len(e.Message))
	b = strconv.AppendFloat(b, ts, 'f', 6, 64)
	b = append(b, e.Message...)
	return append(b, '\n'), nil
}

// Sink appends one line per report to a data log.
type Sink struct {
	logger *logrus.Logger
	closer io.Closer
}

// New writes lines to w.
func New(w io.Writer) *Sink {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(LineFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return &Sink{logger: l}
}

// OpenFile appends to the file at path, creating it when missing.
func OpenFile(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open data log %s: %w", path, err)
	}
	s := New(f)
	s.closer = f
	return s, nil
}

// Write logs the formatted report, stamped with its capture time. Empty
// reports produce no line.
func (s *Sink) Write(r *sensors.Report) bool {
	line := sensors.FormatLogLine(r)
	if line == "" {
		return false
	}
	s.logger.WithTime(r.CapturedAt).Info(line)
	return true
}

// Close releases the underlying file, if the sink owns one.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
