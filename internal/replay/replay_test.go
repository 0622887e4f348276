package replay

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want []byte
		ok   bool
		err  bool
	}{
		{"aabb0a00000100", []byte{0xAA, 0xBB, 0x0A, 0, 0, 1, 0}, true, false},
		{"  0xAABB  ", []byte{0xAA, 0xBB}, true, false},
		{"1700000000.25 aabb", []byte{0xAA, 0xBB}, true, false},
		{"", nil, false, false},
		{"# comment", nil, false, false},
		{"zz", nil, false, true},
		{"abc", nil, false, true},
	}
	for _, tt := range tests {
		got, ok, err := ParseLine(tt.line)
		if tt.err {
			assert.Error(t, err, tt.line)
			continue
		}
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestRunDeliversInOrder(t *testing.T) {
	capture := "aabb01\n# skipped\nnot-hex\n\naabb02\n"
	src := NewReaderSource(strings.NewReader(capture), quietLogger())

	var got [][]byte
	err := src.Run(context.Background(), func(b []byte) { got = append(got, b) })
	assert.ErrorIs(t, err, io.EOF)
	want := [][]byte{{0xAA, 0xBB, 0x01}, {0xAA, 0xBB, 0x02}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("replayed payloads mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.hex")
	require.NoError(t, os.WriteFile(path, []byte("aabb0a00000100\n"), 0o644))

	calls := 0
	src, err := OpenFile(path, quietLogger())
	require.NoError(t, err)
	defer src.Close()
	err = src.Run(context.Background(), func([]byte) { calls++ })
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, calls)

	// a finished replay stays finished
	err = src.Run(context.Background(), func([]byte) { calls++ })
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, calls)
}

func TestOpenFileMissing(t *testing.T) {
	src, err := OpenFile(filepath.Join(t.TempDir(), "nope"), quietLogger())
	require.Error(t, err)
	assert.Nil(t, src)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewReaderSource(strings.NewReader("aabb\n"), quietLogger()).Run(ctx, func([]byte) {
		t.Fatal("handler called after cancel")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
