package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWireType(t *testing.T) {
	tests := []struct {
		typ        WireType
		valid      bool
		integer    bool
		components int
		width      int
		signed     bool
	}{
		{TypeBool, true, true, 0, 1, false},
		{TypeInt8, true, true, 0, 8, true},
		{TypeUint16, true, true, 0, 16, false},
		{TypeInt64, true, true, 0, 64, true},
		{TypeID, true, true, 0, 32, false},
		{TypeFloat, true, false, 1, 32, false},
		{TypeVec3, true, false, 3, 0, false},
		{TypeQuat, true, false, 4, 0, false},
		{TypeString, true, false, 0, 0, false},
		{TypeInvalid, false, false, 0, 0, false},
		{TypeOptionalGroup, false, false, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			require.Equal(t, tt.valid, tt.typ.Valid())
			require.Equal(t, tt.integer, tt.typ.IsInteger())
			require.Equal(t, tt.components, tt.typ.Components())
			require.Equal(t, tt.width, tt.typ.BitWidth())
			require.Equal(t, tt.signed, tt.typ.Signed())

			if tt.valid {
				parsed, err := ParseWireType(tt.typ.String())
				require.NoError(t, err)
				require.Equal(t, tt.typ, parsed)
			}
		})
	}

	_, err := ParseWireType("OptionalGroup")
	require.Error(t, err)
	require.Equal(t, "Unknown", WireType(200).String())
}

func TestParse(t *testing.T) {
	for _, m := range []QuantizeMethod{TruncateLeft, TruncateCenter, RoundLeft, RoundLeftWithMidpoint, NeverLower} {
		got, err := ParseQuantizeMethod(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
	_, err := ParseQuantizeMethod("Up")
	require.Error(t, err)

	for _, b := range []TimeBase{TimeBaseAge, TimeBaseWallTime} {
		got, err := ParseTimeBase(b.String())
		require.NoError(t, err)
		require.Equal(t, b, got)
	}

	c, err := ParseCompressionType("zstd")
	require.NoError(t, err)
	require.Equal(t, CompressionZstd, c)
	require.Equal(t, ".zst", c.Extension())
	require.Empty(t, CompressionNone.Extension())

	f, err := ParseStatsFormat("MsgPack")
	require.NoError(t, err)
	require.Equal(t, StatsMsgpack, f)
	require.Equal(t, ".msgpack", f.Extension())
	require.Equal(t, ".yaml", StatsYAML.Extension())
}
