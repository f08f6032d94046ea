package pktline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Writef(&buf, "want %s\n", strings.Repeat("a", 40)))
	require.NoError(t, Flush(&buf))

	payload, ok, err := Read(&buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "want "+strings.Repeat("a", 40)+"\n", string(payload))

	payload, ok, err = Read(&buf)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, payload)
}

func TestReadRejectsLengthBelowMinimum(t *testing.T) {
	_, _, err := Read(strings.NewReader("0003x"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadRejectsNonHexHeader(t *testing.T) {
	_, _, err := Read(strings.NewReader("zzzz"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWriteRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, make([]byte, MaxPayloadLen+1))
	assert.Error(t, err)
}

func TestReadSurfacesEOF(t *testing.T) {
	_, _, err := Read(strings.NewReader(""))
	assert.Error(t, err)
}
