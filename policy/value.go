package policy

import (
	"fmt"
	"math"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
)

// Value is a tagged field value. Integer types, booleans and IDs live in Int
// (unsigned 64-bit values as their bit pattern), float types in Vec
// (Float uses Vec[0]) and strings in Str.
type Value struct {
	Type format.WireType
	Int  int64
	Vec  [4]float64
	Str  string
}

// BoolValue returns a Bool value.
func BoolValue(b bool) Value {
	v := Value{Type: format.TypeBool}
	if b {
		v.Int = 1
	}

	return v
}

// IntValue returns a signed or unsigned integer value of type t, truncated
// to t's width.
func IntValue(t format.WireType, i int64) Value {
	return Value{Type: t, Int: truncate(t, i)}
}

// UintValue returns an integer value of type t holding the bit pattern of u.
func UintValue(t format.WireType, u uint64) Value {
	return IntValue(t, int64(u)) //nolint: gosec
}

// FloatValue returns a Float value.
func FloatValue(f float64) Value {
	return Value{Type: format.TypeFloat, Vec: [4]float64{f}}
}

// Vec3Value returns a Vec3 value.
func Vec3Value(x, y, z float64) Value {
	return Value{Type: format.TypeVec3, Vec: [4]float64{x, y, z}}
}

// QuatValue returns a Quat value with components in x, y, z, w order.
func QuatValue(x, y, z, w float64) Value {
	return Value{Type: format.TypeQuat, Vec: [4]float64{x, y, z, w}}
}

// StringValue returns a String value.
func StringValue(s string) Value {
	return Value{Type: format.TypeString, Str: s}
}

// IDValue returns an object reference value.
func IDValue(id uint32) Value {
	return Value{Type: format.TypeID, Int: int64(id)}
}

// Zero returns the zero value of t.
func Zero(t format.WireType) Value {
	return Value{Type: t}
}

// Bool returns the value as a boolean.
func (v Value) Bool() bool {
	return v.Int != 0
}

// Uint returns the integer payload reinterpreted as unsigned.
func (v Value) Uint() uint64 {
	return uint64(v.Int) //nolint: gosec
}

// Float returns the first float component.
func (v Value) Float() float64 {
	return v.Vec[0]
}

// ID returns the object reference.
func (v Value) ID() uint32 {
	return uint32(v.Int) //nolint: gosec
}

// Components returns the float components of a Float, Vec3 or Quat value.
func (v Value) Components() []float64 {
	return v.Vec[:v.Type.Components()]
}

// Equal reports whether v and o hold the same type and value. Float
// components compare by bit pattern so NaN equals NaN.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}

	switch v.Type {
	case format.TypeFloat, format.TypeVec3, format.TypeQuat:
		for i := range v.Type.Components() {
			if math.Float64bits(v.Vec[i]) != math.Float64bits(o.Vec[i]) {
				return false
			}
		}

		return true
	case format.TypeString:
		return v.Str == o.Str
	case format.TypeBool:
		return v.Bool() == o.Bool()
	case format.TypeInt8, format.TypeUint8, format.TypeInt16, format.TypeUint16,
		format.TypeInt32, format.TypeUint32, format.TypeInt64, format.TypeUint64, format.TypeID:
		return v.Int == o.Int
	case format.TypeInvalid, format.TypeOptionalGroup:
		return true
	default:
		return false
	}
}

// String formats v for logs and test failures.
func (v Value) String() string {
	switch v.Type {
	case format.TypeBool:
		return fmt.Sprintf("Bool(%t)", v.Bool())
	case format.TypeUint8, format.TypeUint16, format.TypeUint32, format.TypeUint64:
		return fmt.Sprintf("%s(%d)", v.Type, v.Uint())
	case format.TypeInt8, format.TypeInt16, format.TypeInt32, format.TypeInt64, format.TypeID:
		return fmt.Sprintf("%s(%d)", v.Type, v.Int)
	case format.TypeFloat, format.TypeVec3, format.TypeQuat:
		return fmt.Sprintf("%s%v", v.Type, v.Components())
	case format.TypeString:
		return fmt.Sprintf("String(%q)", v.Str)
	case format.TypeInvalid, format.TypeOptionalGroup:
		return v.Type.String()
	default:
		return v.Type.String()
	}
}

// Check returns errs.ErrTypeMismatch unless v has type t.
func (v Value) Check(t format.WireType) error {
	if v.Type != t {
		return fmt.Errorf("%w: %s value for %s field", errs.ErrTypeMismatch, v.Type, t)
	}

	return nil
}

// truncate wraps i into the range of t: sign-extended for signed types,
// zero-extended for unsigned ones.
func truncate(t format.WireType, i int64) int64 {
	switch t { //nolint: exhaustive
	case format.TypeBool:
		if i != 0 {
			return 1
		}

		return 0
	case format.TypeInt8:
		return int64(int8(i)) //nolint: gosec
	case format.TypeUint8:
		return int64(uint8(i)) //nolint: gosec
	case format.TypeInt16:
		return int64(int16(i)) //nolint: gosec
	case format.TypeUint16:
		return int64(uint16(i)) //nolint: gosec
	case format.TypeInt32:
		return int64(int32(i)) //nolint: gosec
	case format.TypeUint32, format.TypeID:
		return int64(uint32(i)) //nolint: gosec
	default:
		return i
	}
}

// rawBits returns the fixed-width bit pattern of an integer value.
func rawBits(v Value) uint64 {
	w := v.Type.BitWidth()
	if w >= 64 {
		return uint64(v.Int) //nolint: gosec
	}

	return uint64(v.Int) & (uint64(1)<<w - 1) //nolint: gosec
}

// fromRawBits rebuilds an integer value of type t from its bit pattern.
func fromRawBits(t format.WireType, bits uint64) Value {
	return IntValue(t, int64(bits)) //nolint: gosec
}
