package chunk

import (
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/policy"
)

// Mode is the pass a Serializer is making over an object.
type Mode uint8

const (
	// ModeBuild enumerates the layout. Every group is entered.
	ModeBuild Mode = iota + 1
	// ModeCollect reads field values out of the object.
	ModeCollect
	// ModeApply writes field values into the object.
	ModeApply
)

func (m Mode) String() string {
	switch m {
	case ModeBuild:
		return "Build"
	case ModeCollect:
		return "Collect"
	case ModeApply:
		return "Apply"
	default:
		return "Unknown"
	}
}

// Serializer is the visitor an Object drives through its fields.
//
// Value visits one scalar field. In ModeApply the field's new value is stored
// in *v; in the other modes *v is read. BeginGroup opens an optional group
// guarded by cond and reports whether its children must be visited; in
// ModeApply it reports the stored condition instead of cond. EndGroup closes
// the innermost open group and must only be called when BeginGroup returned
// true.
type Serializer interface {
	Mode() Mode
	Value(name, key string, v *policy.Value) error
	BeginGroup(name string, cond bool) (bool, error)
	EndGroup() error
}

// Object is a game object model that can enumerate its synchronized fields.
//
// NetSerialize must visit the same fields in the same order for a given
// profile every time it is called, except that the children of a group are
// skipped when its BeginGroup returns false.
type Object interface {
	NetSerialize(s Serializer, profile uint8) error
}

// Bool visits a boolean field.
func Bool(s Serializer, name, key string, p *bool) error {
	v := policy.BoolValue(*p)
	if err := s.Value(name, key, &v); err != nil {
		return err
	}
	*p = v.Bool()

	return nil
}

// Int visits a signed integer field of type t.
func Int(s Serializer, name, key string, t format.WireType, p *int64) error {
	v := policy.IntValue(t, *p)
	if err := s.Value(name, key, &v); err != nil {
		return err
	}
	*p = v.Int

	return nil
}

// Uint visits an unsigned integer field of type t.
func Uint(s Serializer, name, key string, t format.WireType, p *uint64) error {
	v := policy.UintValue(t, *p)
	if err := s.Value(name, key, &v); err != nil {
		return err
	}
	*p = v.Uint()

	return nil
}

// Float visits a scalar float field.
func Float(s Serializer, name, key string, p *float64) error {
	v := policy.FloatValue(*p)
	if err := s.Value(name, key, &v); err != nil {
		return err
	}
	*p = v.Float()

	return nil
}

// Vec3 visits a three-component vector field.
func Vec3(s Serializer, name, key string, p *[3]float64) error {
	v := policy.Vec3Value(p[0], p[1], p[2])
	if err := s.Value(name, key, &v); err != nil {
		return err
	}
	copy(p[:], v.Vec[:3])

	return nil
}

// Quat visits a quaternion field.
func Quat(s Serializer, name, key string, p *[4]float64) error {
	v := policy.QuatValue(p[0], p[1], p[2], p[3])
	if err := s.Value(name, key, &v); err != nil {
		return err
	}
	*p = v.Vec

	return nil
}

// String visits a string field.
func String(s Serializer, name, key string, p *string) error {
	v := policy.StringValue(*p)
	if err := s.Value(name, key, &v); err != nil {
		return err
	}
	*p = v.Str

	return nil
}

// Ref visits an object reference field.
func Ref(s Serializer, name, key string, p *uint32) error {
	v := policy.IDValue(*p)
	if err := s.Value(name, key, &v); err != nil {
		return err
	}
	*p = v.ID()

	return nil
}

// Group visits an optional group. present is the group's condition; in
// ModeApply it receives the stored condition. body visits the children and
// runs only when they must be visited.
func Group(s Serializer, name string, present *bool, body func() error) error {
	on, err := s.BeginGroup(name, *present)
	if err != nil {
		return err
	}
	if s.Mode() == ModeApply {
		*present = on
	}
	if !on {
		return nil
	}
	if err := body(); err != nil {
		return err
	}

	return s.EndGroup()
}
