package policy

import (
	"fmt"
	"math"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
)

const (
	// DefaultKey names the pass-through policy every registry carries.
	DefaultKey = "default"

	// MaxStringLength is the longest string any policy codes.
	MaxStringLength = 1<<16 - 1

	stringLengthBits = 16
)

// Default is the pass-through policy: every value is written at its natural
// fixed width without prediction or state. Floats travel as float32.
type Default struct {
	key string
}

var _ Policy = (*Default)(nil)

// NewDefault returns a pass-through policy named key.
func NewDefault(key string) *Default {
	if key == "" {
		key = DefaultKey
	}

	return &Default{key: key}
}

// Key returns the configured policy name.
func (p *Default) Key() string { return p.key }

// Supports reports true for every valid wire type.
func (p *Default) Supports(t format.WireType) bool { return t.Valid() }

// NewState returns nil; Default keeps no per-field state.
func (p *Default) NewState(format.WireType) State { return nil }

// ReadMemento consumes nothing and returns a nil state.
func (p *Default) ReadMemento(format.WireType, *memento.Reader) (State, error) { return nil, nil }

// WriteMemento writes nothing.
func (p *Default) WriteMemento(*memento.Writer, State) {}

// WriteValue writes v at its natural width. Floats are narrowed to float32.
func (p *Default) WriteValue(enc *arith.Encoder, v Value, _ State, _ Call) error {
	if !p.Supports(v.Type) {
		return unsupported(p, v.Type)
	}

	return writeRaw(enc, v)
}

// ReadValue reads a value of type t written by WriteValue.
func (p *Default) ReadValue(dec *arith.Decoder, t format.WireType, _ State, _ Call) (Value, error) {
	if !p.Supports(t) {
		return Value{}, unsupported(p, t)
	}

	return readRaw(dec, t)
}

// writeRaw writes v at its natural width.
func writeRaw(enc *arith.Encoder, v Value) error {
	switch v.Type {
	case format.TypeFloat, format.TypeVec3, format.TypeQuat:
		for _, c := range v.Components() {
			if err := enc.EncodeBits(uint64(math.Float32bits(float32(c))), 32); err != nil {
				return err
			}
		}

		return nil
	case format.TypeString:
		return writeRawString(enc, v.Str)
	case format.TypeBool, format.TypeInt8, format.TypeUint8, format.TypeInt16, format.TypeUint16,
		format.TypeInt32, format.TypeUint32, format.TypeInt64, format.TypeUint64, format.TypeID:
		return enc.EncodeBits(rawBits(v), v.Type.BitWidth())
	case format.TypeInvalid, format.TypeOptionalGroup:
		return fmt.Errorf("%w: %s", errs.ErrUnsupportedType, v.Type)
	default:
		return fmt.Errorf("%w: %s", errs.ErrUnsupportedType, v.Type)
	}
}

// readRaw reads a value of type t written by writeRaw.
func readRaw(dec *arith.Decoder, t format.WireType) (Value, error) {
	switch t {
	case format.TypeFloat, format.TypeVec3, format.TypeQuat:
		v := Zero(t)
		for i := range t.Components() {
			bits, err := dec.DecodeBits(32)
			if err != nil {
				return Value{}, err
			}
			v.Vec[i] = float64(math.Float32frombits(uint32(bits))) //nolint: gosec
		}

		return v, nil
	case format.TypeString:
		s, err := readRawString(dec)
		if err != nil {
			return Value{}, err
		}

		return StringValue(s), nil
	case format.TypeBool, format.TypeInt8, format.TypeUint8, format.TypeInt16, format.TypeUint16,
		format.TypeInt32, format.TypeUint32, format.TypeInt64, format.TypeUint64, format.TypeID:
		bits, err := dec.DecodeBits(t.BitWidth())
		if err != nil {
			return Value{}, err
		}

		return fromRawBits(t, bits), nil
	case format.TypeInvalid, format.TypeOptionalGroup:
		return Value{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, t)
	default:
		return Value{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, t)
	}
}

func checkString(s string, maxLen int) error {
	if len(s) > maxLen {
		return fmt.Errorf("%w: %d bytes, limit %d", errs.ErrStringTooLong, len(s), maxLen)
	}

	return nil
}

func writeRawString(enc *arith.Encoder, s string) error {
	if err := checkString(s, MaxStringLength); err != nil {
		return err
	}
	if err := enc.EncodeBits(uint64(len(s)), stringLengthBits); err != nil {
		return err
	}
	for i := range len(s) {
		if err := enc.EncodeBits(uint64(s[i]), 8); err != nil {
			return err
		}
	}

	return nil
}

func readRawString(dec *arith.Decoder) (string, error) {
	n, err := dec.DecodeBits(stringLengthBits)
	if err != nil {
		return "", err
	}

	buf := make([]byte, n)
	for i := range buf {
		b, err := dec.DecodeBits(8)
		if err != nil {
			return "", err
		}
		buf[i] = byte(b)
	}

	return string(buf), nil
}
