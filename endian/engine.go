// Package endian provides the byte order engine used for memento and
// statistics encodings.
//
// An EndianEngine combines binary.ByteOrder with binary.AppendByteOrder so
// that callers can both decode in place and append without a scratch buffer:
//
//	engine := endian.GetLittleEndianEngine()
//	buf = engine.AppendUint32(buf, v)
//	v = engine.Uint32(buf[off:])
//
// Memento bytes are always little-endian so that mementos written by one host
// can be restored on another.
package endian

import (
	"encoding/binary"
)

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary.
//
// binary.LittleEndian and binary.BigEndian both satisfy it.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
