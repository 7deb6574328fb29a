package chunk

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/memento"
	"github.com/arloliu/deltapack/policy"
)

// staging holds the mementos produced by one replay until it succeeds.
type staging struct {
	w     *memento.Writer
	buf   []byte
	slots []int
	ends  []int
}

func newStaging(n int) *staging {
	return &staging{
		w:     memento.NewWriter(nil),
		slots: make([]int, 0, n),
		ends:  make([]int, 0, n),
	}
}

func (s *staging) save(slot int, p policy.Policy, st policy.State) {
	s.buf = append(s.buf, policy.SaveState(p, s.w, st)...)
	s.slots = append(s.slots, slot)
	s.ends = append(s.ends, len(s.buf))
}

func (s *staging) commit(set *memento.Set) {
	start := 0
	for i, slot := range s.slots {
		set.Put(slot, s.buf[start:s.ends[i]])
		start = s.ends[i]
	}
}

func (c *Chunk) state(op *Op, slot int, set *memento.Set) (policy.State, error) {
	st, err := policy.LoadState(op.Policy, op.Type, set.Get(slot))
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", op.Name, err)
	}

	return st, nil
}

// WriteStream codes the flat buffer data produced by Collect through each
// field's policy into enc. Group conditions are coded as one raw bit.
//
// The mementos in set are replaced only when every field was written, so a
// failed write leaves every field's memento as it was.
func WriteStream(c *Chunk, data []byte, enc *arith.Encoder, set *memento.Set, call policy.Call) error {
	if err := c.check(); err != nil {
		return err
	}

	r := flatReader{data: data}
	stage := newStaging(len(c.ops))
	for i := 0; i < len(c.ops); i++ {
		op := &c.ops[i]
		if op.IsGroup() {
			on, err := r.flag()
			if err != nil {
				return err
			}
			if err := enc.EncodeBool(on, 1, 2); err != nil {
				return err
			}
			if !on {
				i += op.Skip
			}

			continue
		}

		v, err := r.value(op.Type)
		if err != nil {
			return err
		}
		st, err := c.state(op, i, set)
		if err != nil {
			return err
		}
		if err := op.Policy.WriteValue(enc, v, st, call); err != nil {
			return fmt.Errorf("field %q: %w", op.Name, err)
		}
		stage.save(i, op.Policy, st)
	}
	if r.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", errs.ErrLayoutDrift, r.remaining())
	}

	stage.commit(set)

	return nil
}

// ReadStream decodes one object's fields from dec and appends them to dst as
// a flat buffer suitable for Apply.
//
// As with WriteStream, set is only updated when every field was read.
func ReadStream(c *Chunk, dec *arith.Decoder, dst []byte, set *memento.Set, call policy.Call) ([]byte, error) {
	if err := c.check(); err != nil {
		return dst, err
	}

	stage := newStaging(len(c.ops))
	for i := 0; i < len(c.ops); i++ {
		op := &c.ops[i]
		if op.IsGroup() {
			on, err := dec.DecodeBool(1, 2)
			if err != nil {
				return dst, err
			}
			dst = appendFlag(dst, on)
			if !on {
				i += op.Skip
			}

			continue
		}

		st, err := c.state(op, i, set)
		if err != nil {
			return dst, err
		}
		v, err := op.Policy.ReadValue(dec, op.Type, st, call)
		if err != nil {
			return dst, fmt.Errorf("field %q: %w", op.Name, err)
		}
		if dst, err = appendValue(dst, v); err != nil {
			return dst, err
		}
		stage.save(i, op.Policy, st)
	}

	stage.commit(set)

	return dst, nil
}
