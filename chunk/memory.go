package chunk

import (
	"fmt"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/policy"
)

// cursor tracks a replay's position in the op list and verifies that the
// object visits fields in compiled order.
type cursor struct {
	ops  []Op
	pos  int
	ends []int
}

func (c *cursor) next(name string, group bool) (*Op, error) {
	if c.pos >= len(c.ops) {
		return nil, fmt.Errorf("%w: field %q beyond the %d compiled ops", errs.ErrLayoutDrift, name, len(c.ops))
	}
	op := &c.ops[c.pos]
	if op.Name != name || op.IsGroup() != group {
		return nil, fmt.Errorf("%w: op %d is %q, object visited %q", errs.ErrLayoutDrift, c.pos, op.Name, name)
	}
	c.pos++

	return op, nil
}

// enter opens the group at op, or skips its children when on is false.
func (c *cursor) enter(op *Op, on bool) {
	if on {
		c.ends = append(c.ends, c.pos+op.Skip)
	} else {
		c.pos += op.Skip
	}
}

func (c *cursor) leave() error {
	if len(c.ends) == 0 {
		return errs.ErrUnbalancedGroup
	}
	end := c.ends[len(c.ends)-1]
	c.ends = c.ends[:len(c.ends)-1]
	if c.pos != end {
		return fmt.Errorf("%w: group closed at op %d, compiled end is %d", errs.ErrLayoutDrift, c.pos, end)
	}

	return nil
}

func (c *cursor) done() error {
	if len(c.ends) != 0 {
		return fmt.Errorf("%w: %d groups left open", errs.ErrUnbalancedGroup, len(c.ends))
	}
	if c.pos != len(c.ops) {
		return fmt.Errorf("%w: object visited %d of %d ops", errs.ErrLayoutDrift, c.pos, len(c.ops))
	}

	return nil
}

// collector is the Serializer of the replay to memory.
type collector struct {
	cursor
	buf []byte
}

var _ Serializer = (*collector)(nil)

func (w *collector) Mode() Mode { return ModeCollect }

func (w *collector) Value(name, _ string, v *policy.Value) error {
	op, err := w.next(name, false)
	if err != nil {
		return err
	}
	if err := v.Check(op.Type); err != nil {
		return fmt.Errorf("%w: field %q: %w", errs.ErrLayoutDrift, name, err)
	}

	w.buf, err = appendValue(w.buf, *v)

	return err
}

func (w *collector) BeginGroup(name string, cond bool) (bool, error) {
	op, err := w.next(name, true)
	if err != nil {
		return false, err
	}
	w.buf = appendFlag(w.buf, cond)
	w.enter(op, cond)

	return cond, nil
}

func (w *collector) EndGroup() error {
	return w.leave()
}

// Collect replays c against obj and appends the field values to dst as a
// flat buffer. It returns the extended buffer; on error its contents are
// unspecified.
func Collect(obj Object, c *Chunk, dst []byte) ([]byte, error) {
	if err := c.check(); err != nil {
		return dst, err
	}

	w := &collector{cursor: cursor{ops: c.ops}, buf: dst}
	if err := obj.NetSerialize(w, c.profile); err != nil {
		return w.buf, err
	}
	if err := w.done(); err != nil {
		return w.buf, err
	}

	return w.buf, nil
}

// applier is the Serializer of the replay from memory.
type applier struct {
	cursor
	r flatReader
}

var _ Serializer = (*applier)(nil)

func (a *applier) Mode() Mode { return ModeApply }

func (a *applier) Value(name, _ string, v *policy.Value) error {
	op, err := a.next(name, false)
	if err != nil {
		return err
	}
	if err := v.Check(op.Type); err != nil {
		return fmt.Errorf("%w: field %q: %w", errs.ErrLayoutDrift, name, err)
	}

	decoded, err := a.r.value(op.Type)
	if err != nil {
		return err
	}
	*v = decoded

	return nil
}

func (a *applier) BeginGroup(name string, _ bool) (bool, error) {
	op, err := a.next(name, true)
	if err != nil {
		return false, err
	}
	on, err := a.r.flag()
	if err != nil {
		return false, err
	}
	a.enter(op, on)

	return on, nil
}

func (a *applier) EndGroup() error {
	return a.leave()
}

// Apply replays c against obj, storing the values of the flat buffer data
// into its fields. Fields are written in op order, so on error the fields
// before the failure have already been updated.
func Apply(obj Object, c *Chunk, data []byte) error {
	if err := c.check(); err != nil {
		return err
	}

	a := &applier{cursor: cursor{ops: c.ops}, r: flatReader{data: data}}
	if err := obj.NetSerialize(a, c.profile); err != nil {
		return err
	}
	if err := a.done(); err != nil {
		return err
	}
	if a.r.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", errs.ErrLayoutDrift, a.r.remaining())
	}

	return nil
}
