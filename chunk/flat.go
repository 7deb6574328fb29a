package chunk

import (
	"fmt"
	"math"

	"github.com/arloliu/deltapack/endian"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/policy"
)

// Flat buffer layout, in op order:
//
//	group flag     1 byte, 0 or 1
//	Bool, 8 bit    1 byte
//	16 bit         2 bytes
//	32 bit, ID     4 bytes
//	64 bit         8 bytes
//	Float/Vec/Quat 8 bytes (float64 bits) per component
//	String         uint16 length + bytes
//
// Integers are little-endian.
var engine = endian.GetLittleEndianEngine()

func appendFlag(dst []byte, on bool) []byte {
	if on {
		return append(dst, 1)
	}

	return append(dst, 0)
}

func appendValue(dst []byte, v policy.Value) ([]byte, error) {
	switch v.Type {
	case format.TypeBool, format.TypeInt8, format.TypeUint8:
		return append(dst, byte(v.Int)), nil //nolint: gosec
	case format.TypeInt16, format.TypeUint16:
		return engine.AppendUint16(dst, uint16(v.Int)), nil //nolint: gosec
	case format.TypeInt32, format.TypeUint32, format.TypeID:
		return engine.AppendUint32(dst, uint32(v.Int)), nil //nolint: gosec
	case format.TypeInt64, format.TypeUint64:
		return engine.AppendUint64(dst, uint64(v.Int)), nil //nolint: gosec
	case format.TypeFloat, format.TypeVec3, format.TypeQuat:
		for _, c := range v.Components() {
			dst = engine.AppendUint64(dst, math.Float64bits(c))
		}

		return dst, nil
	case format.TypeString:
		if len(v.Str) > policy.MaxStringLength {
			return dst, fmt.Errorf("%w: %d bytes", errs.ErrStringTooLong, len(v.Str))
		}
		dst = engine.AppendUint16(dst, uint16(len(v.Str))) //nolint: gosec

		return append(dst, v.Str...), nil
	case format.TypeInvalid, format.TypeOptionalGroup:
		return dst, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, v.Type)
	default:
		return dst, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, v.Type)
	}
}

// flatReader walks a flat buffer.
type flatReader struct {
	data []byte
	off  int
}

func (r *flatReader) remaining() int {
	return len(r.data) - r.off
}

func (r *flatReader) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", errs.ErrShortBuffer, n, r.off, r.remaining())
	}
	b := r.data[r.off : r.off+n]
	r.off += n

	return b, nil
}

func (r *flatReader) flag() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	if b[0] > 1 {
		return false, fmt.Errorf("%w: group flag %d at offset %d", errs.ErrLayoutDrift, b[0], r.off-1)
	}

	return b[0] == 1, nil
}

func (r *flatReader) value(t format.WireType) (policy.Value, error) {
	switch t {
	case format.TypeBool, format.TypeInt8, format.TypeUint8:
		b, err := r.take(1)
		if err != nil {
			return policy.Value{}, err
		}

		return policy.UintValue(t, uint64(b[0])), nil
	case format.TypeInt16, format.TypeUint16:
		b, err := r.take(2)
		if err != nil {
			return policy.Value{}, err
		}

		return policy.UintValue(t, uint64(engine.Uint16(b))), nil
	case format.TypeInt32, format.TypeUint32, format.TypeID:
		b, err := r.take(4)
		if err != nil {
			return policy.Value{}, err
		}

		return policy.UintValue(t, uint64(engine.Uint32(b))), nil
	case format.TypeInt64, format.TypeUint64:
		b, err := r.take(8)
		if err != nil {
			return policy.Value{}, err
		}

		return policy.UintValue(t, engine.Uint64(b)), nil
	case format.TypeFloat, format.TypeVec3, format.TypeQuat:
		v := policy.Zero(t)
		b, err := r.take(8 * t.Components())
		if err != nil {
			return policy.Value{}, err
		}
		for i := range t.Components() {
			v.Vec[i] = math.Float64frombits(engine.Uint64(b[8*i:]))
		}

		return v, nil
	case format.TypeString:
		b, err := r.take(2)
		if err != nil {
			return policy.Value{}, err
		}
		s, err := r.take(int(engine.Uint16(b)))
		if err != nil {
			return policy.Value{}, err
		}

		return policy.StringValue(string(s)), nil
	case format.TypeInvalid, format.TypeOptionalGroup:
		return policy.Value{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, t)
	default:
		return policy.Value{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, t)
	}
}
