package logsink

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func temperatureReport(t *testing.T, at time.Time) *sensors.Report {
	t.Helper()
	r, err := sensors.NewAssembler(nil).Assemble([]byte{0xAA, 0xBB, 6, 0, 0, 0xE8, 0x03, 0, 0}, at)
	require.NoError(t, err)
	return r
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	assert.True(t, s.Write(temperatureReport(t, time.Unix(1700000000, 250000000))))
	assert.Equal(t, "1700000000.250000 TEMPERATURE=10.0\n", buf.String())
}

func TestWriteSkipsEmpty(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)

	r, err := sensors.NewAssembler(nil).Assemble([]byte{0xAA, 0xBB}, time.Unix(1, 0))
	require.NoError(t, err)
	assert.False(t, s.Write(r))
	assert.Empty(t, buf.String())
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.log")

	for i := 0; i < 2; i++ {
		s, err := OpenFile(path)
		require.NoError(t, err)
		s.Write(temperatureReport(t, time.Unix(int64(100+i), 0)))
		require.NoError(t, s.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "100.000000 TEMPERATURE=10.0\n101.000000 TEMPERATURE=10.0\n", string(data))
}

func TestOpenFileError(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing", "data.log"))
	assert.Error(t, err)
}
