package sensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fusionFrame(w, x, y, z int16) []byte {
	frame := []byte{0xAA, 0xBB, 7, 0, 0}
	for _, v := range []int16{w, x, y, z} {
		frame = append(frame, int16Bytes(v)...)
	}
	return frame
}

func TestDeriveOrientationIdentity(t *testing.T) {
	report, err := NewAssembler(nil).Assemble(fusionFrame(32767, 0, 0, 0), capturedAt)
	require.NoError(t, err)

	o, ok := DeriveOrientation(report)
	require.True(t, ok)
	assert.InDelta(t, 0, o.Roll, 1e-9)
	assert.InDelta(t, 0, o.Pitch, 1e-9)
	assert.InDelta(t, 0, o.Yaw, 1e-9)
}

func TestDeriveOrientationYaw90(t *testing.T) {
	// w = z = sqrt(2)/2
	report, err := NewAssembler(nil).Assemble(fusionFrame(23170, 0, 0, 23170), capturedAt)
	require.NoError(t, err)

	o, ok := DeriveOrientation(report)
	require.True(t, ok)
	assert.InDelta(t, 90, o.Yaw, 1e-6)
	assert.InDelta(t, 0, o.Roll, 1e-6)
}

func TestDeriveOrientationMissing(t *testing.T) {
	report, err := NewAssembler(nil).Assemble(mustHex(t, "AA BB 06 00 00 E8 03 00 00"), capturedAt)
	require.NoError(t, err)
	_, ok := DeriveOrientation(report)
	assert.False(t, ok)

	_, ok = DeriveOrientation(nil)
	assert.False(t, ok)

	report, err = NewAssembler(nil).Assemble(fusionFrame(0, 0, 0, 0), capturedAt)
	require.NoError(t, err)
	_, ok = DeriveOrientation(report)
	assert.False(t, ok)
}

func TestValidateReport(t *testing.T) {
	a := NewAssembler(nil)

	report, err := a.Assemble(mustHex(t, "AA BB 06 00 00 E8 03 00 00"), capturedAt)
	require.NoError(t, err)
	assert.Empty(t, ValidateReport(report))

	// 0x3A98 = 15000 → 150.0 °C
	report, err = a.Assemble(mustHex(t, "AA BB 06 00 00 98 3A 00 00"), capturedAt)
	require.NoError(t, err)
	assert.Len(t, ValidateReport(report), 1)

	report, err = a.Assemble(mustHex(t, "AA BB 63 01"), capturedAt)
	require.NoError(t, err)
	warnings := ValidateReport(report)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "6301")

	report, err = a.Assemble(mustHex(t, "AA BB 0D 00 00 01"), capturedAt)
	require.NoError(t, err)
	assert.Len(t, ValidateReport(report), 1)
}
