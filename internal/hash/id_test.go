package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest_EmptyIsXXHash(t *testing.T) {
	assert.Equal(t, uint64(0xef46db3751d8e999), NewDigest().Sum64())
}

func TestTag16(t *testing.T) {
	require.Equal(t, uint16(0), Tag16(0))
	require.Equal(t, uint16(0x0001), Tag16(0x0001))
	require.Equal(t, uint16(0x0003), Tag16(0x0000_0002_0000_0001))
	require.Equal(t, uint16(0x0005), Tag16(0x0004_0000_0001_0000))
}

func TestDigest(t *testing.T) {
	a := NewDigest()
	a.WriteString("ab")
	a.WriteString("c")

	b := NewDigest()
	b.WriteString("a")
	b.WriteString("bc")

	require.NotEqual(t, a.Sum64(), b.Sum64(), "field boundaries are part of the fingerprint")

	c := NewDigest()
	c.WriteString("ab")
	c.WriteString("c")
	require.Equal(t, a.Sum64(), c.Sum64())

	d := NewDigest()
	require.NoError(t, d.WriteByte(7))
	require.NotEqual(t, NewDigest().Sum64(), d.Sum64())
}

func BenchmarkDigest(b *testing.B) {
	fields := []string{"pos:Vec3:position", "hp:Uint8:health", "?name", "label:String:label"}
	for b.Loop() {
		d := NewDigest()
		for _, f := range fields {
			d.WriteString(f)
		}
		d.Sum64()
	}
}
