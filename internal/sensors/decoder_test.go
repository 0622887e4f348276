package sensors

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int16Bytes(v int16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

func accelSubReport(id byte, x, y, z int16) []byte {
	sub := []byte{id, 0x00, 0x00}
	sub = append(sub, int16Bytes(x)...)
	sub = append(sub, int16Bytes(y)...)
	return append(sub, int16Bytes(z)...)
}

func TestDecodeAccelerometerFamily(t *testing.T) {
	reg := DefaultRegistry()
	for _, id := range []byte{1, 2, 3} {
		def, ok := reg.Lookup(id)
		require.True(t, ok)
		require.Equal(t, GroupAccelerometer, def.Group)

		sub := accelSubReport(id, 403, -14778, 29131)
		require.Len(t, sub, 9)

		readings, err := def.Group.Decoder()(def, sub)
		require.NoError(t, err)
		require.Len(t, readings, 3)

		assert.Equal(t, def.Label+"_X", readings[0].Key)
		assert.Equal(t, def.Label+"_Y", readings[1].Key)
		assert.Equal(t, def.Label+"_Z", readings[2].Key)

		for i, want := range []float64{403 / 32768.0, -14778 / 32768.0, 29131 / 32768.0} {
			got, ok := readings[i].Value.Float()
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
	}
}

func TestDecodeAccelerometerExtremes(t *testing.T) {
	def, _ := DefaultRegistry().Lookup(1)
	readings, err := decodeAccelerometer(def, accelSubReport(1, -32768, 32767, 0))
	require.NoError(t, err)

	x, _ := readings[0].Value.Float()
	y, _ := readings[1].Value.Float()
	assert.Equal(t, -1.0, x)
	assert.Less(t, y, 1.0)
}

func TestAssembleSmallAccelerationUsesExponent(t *testing.T) {
	frame := append([]byte{0xAA, 0x10}, accelSubReport(1, 1, 3, -1)...)
	report, err := NewAssembler(nil).Assemble(frame, capturedAt)
	require.NoError(t, err)
	assert.Equal(t,
		" ACCELEROMETER_X=3.0517578125e-05 ACCELEROMETER_Y=9.1552734375e-05 ACCELEROMETER_Z=-3.0517578125e-05",
		FormatLogLine(report))
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{10, "10.0"},
		{-0.5, "-0.5"},
		{0.98, "0.98"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{1.0 / 32768, "3.0517578125e-05"},
		{123456789012345.0, "123456789012345.0"},
		{1e16, "1e+16"},
		{2.5e17, "2.5e+17"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFloat(tt.in), "%v", tt.in)
	}
}

func TestDecodeEnvironment(t *testing.T) {
	reg := DefaultRegistry()
	tests := []struct {
		id   byte
		raw  uint16
		want string
	}{
		{6, 1000, "10.0"},
		{6, 2345, "23.45"},
		{4, 10000, "100.0"},
		{5, 1000, "0.98"},
		{5, 0, "0.0"},
		{11, 1234, "1234"},
	}
	for _, tt := range tests {
		def, ok := reg.Lookup(tt.id)
		require.True(t, ok)

		sub := []byte{tt.id, 0, 0, 0, 0, 0, 0}
		binary.LittleEndian.PutUint16(sub[3:], tt.raw)

		readings, err := decodeEnvironment(def, sub)
		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, def.Label, readings[0].Key)
		assert.Equal(t, tt.want, readings[0].Value.String(), "%s raw=%d", def.Label, tt.raw)
	}
}

func TestDecodeHumidityRounding(t *testing.T) {
	def, _ := DefaultRegistry().Lookup(5)
	readings, err := decodeEnvironment(def, []byte{5, 0, 0, 0xE8, 0x03, 0, 0})
	require.NoError(t, err)

	h, ok := readings[0].Value.Float()
	require.True(t, ok)
	assert.Equal(t, 0.98, h)
}

func TestDecodeLightProximity(t *testing.T) {
	reg := DefaultRegistry()
	light, _ := reg.Lookup(9)
	prox, _ := reg.Lookup(10)

	readings, err := decodeLightProximity(light, []byte{9, 0, 0, 0xE8, 0x03, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, "AMBIENT_LIGHT", readings[0].Key)
	assert.Equal(t, "250.0", readings[0].Value.String())

	readings, err = decodeLightProximity(prox, []byte{10, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, "OFF", readings[0].Value.String())

	for _, raw := range []uint16{1, 0x0100, 0xFFFF} {
		sub := []byte{10, 0, 0, 0, 0, 0, 0}
		binary.LittleEndian.PutUint16(sub[3:], raw)
		readings, err = decodeLightProximity(prox, sub)
		require.NoError(t, err)
		assert.Equal(t, "ON", readings[0].Value.String(), "raw=%d", raw)
	}
}

func TestDecodeFusion(t *testing.T) {
	def, _ := DefaultRegistry().Lookup(7)
	sub := []byte{7, 0, 0}
	for _, v := range []int16{16384, -8192, 0, 32767} {
		sub = append(sub, int16Bytes(v)...)
	}

	readings, err := decodeFusion(def, sub)
	require.NoError(t, err)
	require.Len(t, readings, 4)

	keys := make([]string, len(readings))
	for i, r := range readings {
		keys[i] = r.Key
	}
	assert.Equal(t, []string{"FUSION_W", "FUSION_X", "FUSION_Y", "FUSION_Z"}, keys)

	w, _ := readings[0].Value.Float()
	x, _ := readings[1].Value.Float()
	assert.Equal(t, 0.5, w)
	assert.Equal(t, -0.25, x)
}

func TestDecodersRejectShortInput(t *testing.T) {
	reg := DefaultRegistry()
	tests := []struct {
		id  byte
		sub []byte
	}{
		{1, []byte{1, 0, 0, 1, 2, 3, 4, 5}},
		{6, []byte{6, 0, 0, 0xE8}},
		{10, []byte{10, 0}},
		{7, []byte{7, 0, 0, 1, 2, 3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		def, _ := reg.Lookup(tt.id)
		_, err := def.Group.Decoder()(def, tt.sub)
		assert.ErrorIs(t, err, ErrMalformedFrame, def.Label)
	}
}
