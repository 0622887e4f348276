// Package replay feeds previously captured notifications through the decoder.
//
// A capture file holds one hex encoded notification per line. Blank lines
// and lines starting with '#' are ignored. A line may carry a leading
// timestamp separated by whitespace; only the last field is decoded.
package replay

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Source replays a capture once, as if it came from a live link.
type Source struct {
	r      io.Reader
	closer io.Closer
	name   string
	logger *logrus.Logger
	used   atomic.Bool
}

// OpenFile opens the capture file at path. A missing or unreadable capture
// fails here rather than inside Run, where it would look like a dropped link.
func OpenFile(path string, logger *logrus.Logger) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return &Source{r: f, closer: f, name: path, logger: logger}, nil
}

// NewReaderSource replays r.
func NewReaderSource(r io.Reader, logger *logrus.Logger) *Source {
	return &Source{r: r, name: "reader", logger: logger}
}

// Close releases the capture file, if the source owns one.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ParseLine decodes one capture line. ok is false for lines that carry no
// notification.
func ParseLine(line string) (payload []byte, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, false, nil
	}
	fields := strings.Fields(line)
	field := strings.TrimPrefix(fields[len(fields)-1], "0x")
	payload, err = hex.DecodeString(field)
	if err != nil {
		return nil, false, fmt.Errorf("decode hex %q: %w", field, err)
	}
	return payload, true, nil
}

// Run calls handler with every notification in the capture, in order. Bad
// lines are logged and skipped. It returns io.EOF once the capture is
// exhausted, and on every later call, so callers can tell a finished replay
// from a failure.
func (s *Source) Run(ctx context.Context, handler func([]byte)) error {
	if s.used.Swap(true) {
		return io.EOF
	}

	scanner := bufio.NewScanner(s.r)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		payload, ok, err := ParseLine(scanner.Text())
		if err != nil {
			s.logger.WithError(err).WithField("line", lineNo).Warn("Skipping capture line")
			continue
		}
		if ok {
			handler(payload)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read capture %s: %w", s.name, err)
	}
	return io.EOF
}
