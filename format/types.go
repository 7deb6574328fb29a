package format

import (
	"fmt"
	"strings"
)

type (
	WireType        uint8
	QuantizeMethod  uint8
	TimeBase        uint8
	CompressionType uint8
	StatsFormat     uint8
)

// Wire types form a closed set. Adding one means extending every switch over
// WireType in policy and chunk.
const (
	TypeInvalid WireType = iota
	TypeBool
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat
	TypeVec3
	TypeQuat
	TypeString
	TypeID // TypeID is a 32-bit reference to another networked object.

	// TypeOptionalGroup marks the start of an optional group inside a chunk.
	// It never reaches a policy.
	TypeOptionalGroup
)

const (
	TruncateLeft          QuantizeMethod = 0x1 // floor(scaled * 2^bits)
	TruncateCenter        QuantizeMethod = 0x2 // floor storage, bucket-center reconstruction
	RoundLeft             QuantizeMethod = 0x3 // round(scaled * (2^bits - 1))
	RoundLeftWithMidpoint QuantizeMethod = 0x4 // RoundLeft with an exact midpoint code
	NeverLower            QuantizeMethod = 0x5 // ceil, never below the input
)

const (
	TimeBaseAge      TimeBase = 0x1 // elapsed memento generations
	TimeBaseWallTime TimeBase = 0x2 // elapsed wall time fraction ticks
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

const (
	StatsYAML    StatsFormat = 0x1
	StatsMsgpack StatsFormat = 0x2
)

var wireTypeNames = [...]string{
	TypeInvalid:       "Invalid",
	TypeBool:          "Bool",
	TypeInt8:          "Int8",
	TypeUint8:         "Uint8",
	TypeInt16:         "Int16",
	TypeUint16:        "Uint16",
	TypeInt32:         "Int32",
	TypeUint32:        "Uint32",
	TypeInt64:         "Int64",
	TypeUint64:        "Uint64",
	TypeFloat:         "Float",
	TypeVec3:          "Vec3",
	TypeQuat:          "Quat",
	TypeString:        "String",
	TypeID:            "ID",
	TypeOptionalGroup: "OptionalGroup",
}

func (t WireType) String() string {
	if int(t) < len(wireTypeNames) {
		return wireTypeNames[t]
	}

	return "Unknown"
}

// Valid reports whether t is a value wire type a policy can code.
func (t WireType) Valid() bool {
	return t > TypeInvalid && t < TypeOptionalGroup
}

// IsInteger reports whether t is carried in Value.Int.
func (t WireType) IsInteger() bool {
	switch t {
	case TypeBool, TypeInt8, TypeUint8, TypeInt16, TypeUint16,
		TypeInt32, TypeUint32, TypeInt64, TypeUint64, TypeID:
		return true
	case TypeInvalid, TypeFloat, TypeVec3, TypeQuat, TypeString, TypeOptionalGroup:
		return false
	default:
		return false
	}
}

// Components returns the number of float components of t, or 0 for non-float types.
func (t WireType) Components() int {
	switch t {
	case TypeFloat:
		return 1
	case TypeVec3:
		return 3
	case TypeQuat:
		return 4
	case TypeInvalid, TypeBool, TypeInt8, TypeUint8, TypeInt16, TypeUint16,
		TypeInt32, TypeUint32, TypeInt64, TypeUint64, TypeString, TypeID, TypeOptionalGroup:
		return 0
	default:
		return 0
	}
}

// BitWidth returns the natural fixed width of an integer wire type in bits.
func (t WireType) BitWidth() int {
	switch t {
	case TypeBool:
		return 1
	case TypeInt8, TypeUint8:
		return 8
	case TypeInt16, TypeUint16:
		return 16
	case TypeInt32, TypeUint32, TypeID, TypeFloat:
		return 32
	case TypeInt64, TypeUint64:
		return 64
	case TypeInvalid, TypeVec3, TypeQuat, TypeString, TypeOptionalGroup:
		return 0
	default:
		return 0
	}
}

// Signed reports whether t is a signed integer type.
func (t WireType) Signed() bool {
	switch t { //nolint: exhaustive
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return true
	default:
		return false
	}
}

// ParseWireType parses the String form of a wire type.
func ParseWireType(s string) (WireType, error) {
	for i, name := range wireTypeNames {
		if name == s && WireType(i).Valid() { //nolint: gosec
			return WireType(i), nil //nolint: gosec
		}
	}

	return TypeInvalid, fmt.Errorf("unknown wire type %q", s)
}

func (m QuantizeMethod) String() string {
	switch m {
	case TruncateLeft:
		return "TruncateLeft"
	case TruncateCenter:
		return "TruncateCenter"
	case RoundLeft:
		return "RoundLeft"
	case RoundLeftWithMidpoint:
		return "RoundLeftWithMidpoint"
	case NeverLower:
		return "NeverLower"
	default:
		return "Unknown"
	}
}

// ParseQuantizeMethod parses the String form of a rounding method.
func ParseQuantizeMethod(s string) (QuantizeMethod, error) {
	for _, m := range []QuantizeMethod{TruncateLeft, TruncateCenter, RoundLeft, RoundLeftWithMidpoint, NeverLower} {
		if m.String() == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("unknown quantize method %q", s)
}

func (b TimeBase) String() string {
	switch b {
	case TimeBaseAge:
		return "Age"
	case TimeBaseWallTime:
		return "WallTime"
	default:
		return "Unknown"
	}
}

// ParseTimeBase parses the String form of a time base.
func ParseTimeBase(s string) (TimeBase, error) {
	switch s {
	case "Age":
		return TimeBaseAge, nil
	case "WallTime":
		return TimeBaseWallTime, nil
	default:
		return 0, fmt.Errorf("unknown time base %q", s)
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// Extension returns the file name suffix used for payloads compressed with c.
func (c CompressionType) Extension() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionS2:
		return ".s2"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ParseCompressionType parses the String form of a compression type, ignoring case.
func ParseCompressionType(s string) (CompressionType, error) {
	for _, c := range []CompressionType{CompressionNone, CompressionZstd, CompressionS2, CompressionLZ4} {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}

	return 0, fmt.Errorf("unknown compression type %q", s)
}

func (f StatsFormat) String() string {
	switch f {
	case StatsYAML:
		return "yaml"
	case StatsMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// Extension returns the file name suffix of a stats file in format f.
func (f StatsFormat) Extension() string {
	switch f {
	case StatsMsgpack:
		return ".msgpack"
	default:
		return ".yaml"
	}
}

// ParseStatsFormat parses the String form of a stats format, ignoring case.
func ParseStatsFormat(s string) (StatsFormat, error) {
	switch strings.ToLower(s) {
	case "yaml":
		return StatsYAML, nil
	case "msgpack":
		return StatsMsgpack, nil
	default:
		return 0, fmt.Errorf("unknown stats format %q", s)
	}
}
