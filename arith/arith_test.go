package arith

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/deltapack/errs"
)

type testSymbol struct {
	total, low, size uint32
}

func randomSymbols(rng *rand.Rand, n int) []testSymbol {
	symbols := make([]testSymbol, n)
	for i := range symbols {
		total := uint32(rng.Intn(MaxTotal-1)) + 2
		low := uint32(rng.Intn(int(total - 1)))
		size := uint32(rng.Intn(int(total-low))) + 1
		symbols[i] = testSymbol{total, low, size}
	}

	return symbols
}

func TestEncoder_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	symbols := randomSymbols(rng, 2000)

	enc := NewEncoder()
	defer enc.Release()
	for _, s := range symbols {
		require.NoError(t, enc.Encode(s.total, s.low, s.size))
	}
	data := enc.Finish()
	require.NotEmpty(t, data)
	require.Equal(t, len(symbols), enc.Symbols())

	dec := NewDecoder(data)
	for i, s := range symbols {
		target, err := dec.Decode(s.total)
		require.NoError(t, err)
		require.GreaterOrEqual(t, target, s.low, "symbol %d", i)
		require.Less(t, target, s.low+s.size, "symbol %d", i)
		require.NoError(t, dec.Update(s.total, s.low, s.size))
	}
	require.NoError(t, dec.Err())
}

func TestEncoder_SkewedSymbolsCompress(t *testing.T) {
	enc := NewEncoder()
	defer enc.Release()

	for range 1000 {
		require.NoError(t, enc.Encode(1024, 0, 1020))
	}
	data := enc.Finish()

	// 1000 symbols at p=1020/1024 carry ~5.6 bits in total.
	require.Less(t, len(data), 8)
	require.InDelta(t, 5.6, enc.Entropy(), 0.5)
}

func TestEncoder_Bits(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		bits  int
	}{
		{"zero width", 0, 0},
		{"single bit", 1, 1},
		{"byte", 0xAB, 8},
		{"seventeen bits", 0x1FFFF, 17},
		{"thirty two bits", 0xDEADBEEF, 32},
		{"sixty four bits", 0xFEDCBA9876543210, 64},
	}

	enc := NewEncoder()
	defer enc.Release()
	for _, tt := range tests {
		require.NoError(t, enc.EncodeBits(tt.value, tt.bits), tt.name)
	}
	data := enc.Finish()

	dec := NewDecoder(data)
	for _, tt := range tests {
		got, err := dec.DecodeBits(tt.bits)
		require.NoError(t, err, tt.name)
		require.Equal(t, tt.value, got, tt.name)
	}
}

func TestEncoder_InvalidBitCount(t *testing.T) {
	enc := NewEncoder()
	defer enc.Release()

	require.ErrorIs(t, enc.EncodeBits(0, 65), errs.ErrInvalidBitCount)
	require.ErrorIs(t, enc.EncodeBits(0, -1), errs.ErrInvalidBitCount)

	dec := NewDecoder(nil)
	_, err := dec.DecodeBits(65)
	require.ErrorIs(t, err, errs.ErrInvalidBitCount)
}

func TestEncoder_Uniform(t *testing.T) {
	tests := []struct {
		n, v uint64
	}{
		{1, 0},
		{2, 1},
		{3, 2},
		{MaxTotal, MaxTotal - 1},
		{MaxTotal + 1, MaxTotal},
		{1_000_003, 999_999},
		{1 << 40, 1<<40 - 1},
		{1<<63 + 12345, 1 << 63},
		{^uint64(0), ^uint64(0) - 1},
	}

	enc := NewEncoder()
	defer enc.Release()
	for _, tt := range tests {
		require.NoError(t, enc.EncodeUniform(tt.n, tt.v))
	}
	data := enc.Finish()

	dec := NewDecoder(data)
	for _, tt := range tests {
		got, err := dec.DecodeUniform(tt.n)
		require.NoError(t, err)
		require.Equal(t, tt.v, got, "n=%d", tt.n)
	}
}

func TestEncoder_UniformOutOfRange(t *testing.T) {
	enc := NewEncoder()
	defer enc.Release()

	require.ErrorIs(t, enc.EncodeUniform(10, 10), errs.ErrValueOutOfRange)
	require.ErrorIs(t, enc.EncodeUniform(1, 1), errs.ErrValueOutOfRange)
}

func TestEncoder_Bool(t *testing.T) {
	values := []bool{true, true, false, true, false, false, false, true}

	enc := NewEncoder()
	defer enc.Release()
	for _, v := range values {
		require.NoError(t, enc.EncodeBool(v, 900, 1024))
	}
	data := enc.Finish()

	dec := NewDecoder(data)
	for _, want := range values {
		got, err := dec.DecodeBool(900, 1024)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestEncoder_InvalidFrequency(t *testing.T) {
	tests := []struct {
		name             string
		total, low, size uint32
	}{
		{"zero total", 0, 0, 1},
		{"total above cap", MaxTotal + 1, 0, 1},
		{"empty symbol", 10, 3, 0},
		{"symbol past total", 10, 8, 3},
	}

	enc := NewEncoder()
	defer enc.Release()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, enc.Encode(tt.total, tt.low, tt.size), errs.ErrInvalidFrequency)
		})
	}
}

func TestDecoder_TruncatedStreamFails(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	enc := NewEncoder()
	defer enc.Release()
	values := make([]uint64, 200)
	for i := range values {
		values[i] = rng.Uint64() & 0xFFFF
		require.NoError(t, enc.EncodeBits(values[i], 16))
	}
	data := enc.Finish()

	dec := NewDecoder(data[:len(data)/2])
	var err error
	for range values {
		if _, err = dec.DecodeBits(16); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, errs.ErrBufferExhausted)

	// The failure is sticky.
	_, err = dec.Decode(2)
	require.ErrorIs(t, err, errs.ErrBufferExhausted)
}

func TestDecoder_EmptyStream(t *testing.T) {
	enc := NewEncoder()
	defer enc.Release()
	data := enc.Finish()

	require.Equal(t, data, enc.Finish())
	require.Equal(t, len(data)*8, enc.BitCount())

	dec := NewDecoder(data)
	require.NoError(t, dec.Err())
}

func BenchmarkEncoder_Encode(b *testing.B) {
	for b.Loop() {
		enc := NewEncoder()
		for i := range 256 {
			_ = enc.Encode(256, uint32(i), 1)
		}
		_ = enc.Finish()
		enc.Release()
	}
}

func BenchmarkDecoder_Decode(b *testing.B) {
	enc := NewEncoder()
	for i := range 256 {
		_ = enc.Encode(256, uint32(i), 1)
	}
	data := append([]byte(nil), enc.Finish()...)
	enc.Release()

	b.ResetTimer()
	for b.Loop() {
		dec := NewDecoder(data)
		for range 256 {
			_, _ = dec.DecodeSymbol(256)
		}
	}
}
