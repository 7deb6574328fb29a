package memento

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/deltapack/errs"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	w := NewWriter(nil)
	w.Uint8(0xAB)
	w.Uint16(0xBEEF)
	w.Uint32(0xDEADBEEF)
	w.Uint64(math.MaxUint64 - 1)
	w.Int64(-12345)
	w.Float64(math.Pi)
	w.Bool(true)
	w.Bool(false)
	require.Equal(t, 1+2+4+8+8+8+1+1, w.Len())

	r := NewReader(w.Bytes())
	require.Equal(t, uint8(0xAB), r.Uint8())
	require.Equal(t, uint16(0xBEEF), r.Uint16())
	require.Equal(t, uint32(0xDEADBEEF), r.Uint32())
	require.Equal(t, uint64(math.MaxUint64-1), r.Uint64())
	require.Equal(t, int64(-12345), r.Int64())
	require.Equal(t, math.Pi, r.Float64())
	require.True(t, r.Bool())
	require.False(t, r.Bool())
	require.Zero(t, r.Remaining())
	require.NoError(t, r.Done())
}

func TestWriter_LittleEndian(t *testing.T) {
	w := NewWriter(make([]byte, 8))
	w.Uint32(0x01020304)
	require.Equal(t, []byte{4, 3, 2, 1}, w.Bytes())

	w.Reset()
	require.Zero(t, w.Len())
}

func TestReader_ShortReadIsSticky(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	require.Equal(t, uint16(0x0201), r.Uint16())
	require.Zero(t, r.Uint32())
	require.ErrorIs(t, r.Err(), errs.ErrMementoCorrupt)
	require.Zero(t, r.Uint8())
	require.ErrorIs(t, r.Done(), errs.ErrMementoCorrupt)
}

func TestReader_TrailingBytes(t *testing.T) {
	r := NewReader([]byte{1, 2})
	r.Uint8()
	require.NoError(t, r.Err())
	require.ErrorIs(t, r.Done(), errs.ErrMementoCorrupt)
}

func TestSet(t *testing.T) {
	s := NewSet(2)
	require.Equal(t, 2, s.Len())
	require.Nil(t, s.Get(0))
	require.Nil(t, s.Get(-1))
	require.Nil(t, s.Get(9))

	data := []byte{1, 2, 3}
	s.Put(1, data)
	data[0] = 9
	require.Equal(t, []byte{1, 2, 3}, s.Get(1))

	s.Put(4, []byte{7})
	require.Equal(t, 5, s.Len())
	require.Equal(t, []byte{7}, s.Get(4))

	c := s.Clone()
	s.Clear(1)
	require.Nil(t, s.Get(1))
	require.Equal(t, []byte{1, 2, 3}, c.Get(1))

	s.Reset()
	require.Nil(t, s.Get(4))
	require.Equal(t, 5, s.Len())
}

func TestWriterReader_RawBytes(t *testing.T) {
	w := NewWriter(nil)
	w.Uint8(3)
	w.Append([]byte("abc"))

	r := NewReader(w.Bytes())
	require.Equal(t, []byte("abc"), r.Next(int(r.Uint8())))
	require.NoError(t, r.Done())
	require.Nil(t, r.Next(1))
	require.ErrorIs(t, r.Err(), errs.ErrMementoCorrupt)
}
