package bitio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriter_BitsAreMSBFirst(t *testing.T) {
	w := NewWriter()
	defer w.Release()

	w.WriteBit(1)
	w.WriteBit(0)
	w.WriteBit(1)
	w.WriteBits(0x1F, 5)

	require.Equal(t, []byte{0xBF}, w.Bytes())
	require.Equal(t, 8, w.BitsWritten())
}

func TestWriterReader_RoundTrip(t *testing.T) {
	tests := []struct {
		value uint64
		bits  int
	}{
		{1, 1},
		{0x5, 3},
		{0xABCD, 16},
		{0x123456789, 37},
		{0xFFFFFFFFFFFFFFFF, 64},
		{0, 7},
		{0xDEADBEEFCAFEF00D, 64},
	}

	w := NewWriter()
	defer w.Release()
	for _, tt := range tests {
		w.WriteBits(tt.value, tt.bits)
	}
	data := w.Bytes()

	r := NewReader(data)
	for _, tt := range tests {
		require.Equal(t, tt.value, r.ReadBits(tt.bits))
	}
	require.Equal(t, 0, r.Overrun())
}

func TestReader_PadsWithZeros(t *testing.T) {
	r := NewReader([]byte{0x80})

	require.Equal(t, uint32(1), r.ReadBit())
	require.Equal(t, uint64(0), r.ReadBits(7))
	require.Equal(t, 0, r.Overrun())

	require.Equal(t, uint32(0), r.ReadBit())
	require.Equal(t, uint64(0), r.ReadBits(10))
	require.Equal(t, 11, r.Overrun())
	require.Equal(t, 19, r.BitsRead())
}

func TestReader_PartialOverrun(t *testing.T) {
	r := NewReader([]byte{0xFF})

	// 8 real bits followed by 4 padding bits.
	require.Equal(t, uint64(0xFF0), r.ReadBits(12))
	require.Equal(t, 4, r.Overrun())
}
