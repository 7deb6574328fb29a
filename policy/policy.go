// Package policy defines named compression policies: the per-wire-type coding
// strategies a chunk applies to each field.
//
// Policies are immutable after construction and safe to share between
// connections. Everything a policy learns about one field on one connection
// lives in a State, which the caller restores from the field's memento before
// a call and saves back afterwards:
//
//	st, err := p.ReadMemento(t, memento.NewReader(saved)) // or p.NewState(t)
//	err = p.WriteValue(enc, v, st, call)
//	p.WriteMemento(w, st)
//
// A State is only meaningful to the policy that produced it.
package policy

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
	"github.com/arloliu/deltapack/model"
)

// Call carries the per-call context of one field read or write.
type Call struct {
	// Age is the number of updates since the field was last coded on this
	// connection; 1 for consecutive updates.
	Age uint32
	// Now is the wall clock in milliseconds.
	Now uint64
	// Own is set when the receiving peer controls the object.
	Own bool
	// Model is the connection direction's shared adaptive models, or nil.
	Model *model.ChannelModel
}

// State is policy-specific per-field state.
type State any

// Policy codes the values of one field kind.
type Policy interface {
	// Key returns the configured policy name.
	Key() string
	// Supports reports whether the policy can code values of type t.
	Supports(t format.WireType) bool
	// NewState returns the neutral state for a field without a memento.
	NewState(t format.WireType) State
	// ReadMemento restores a state saved by WriteMemento.
	ReadMemento(t format.WireType, r *memento.Reader) (State, error)
	// WriteMemento saves s.
	WriteMemento(w *memento.Writer, s State)
	// WriteValue codes v and advances s.
	WriteValue(enc *arith.Encoder, v Value, s State, call Call) error
	// ReadValue decodes a value of type t and advances s.
	ReadValue(dec *arith.Decoder, t format.WireType, s State, call Call) (Value, error)
}

// LoadState restores a state from memento bytes, or returns the neutral
// state when data is empty.
func LoadState(p Policy, t format.WireType, data []byte) (State, error) {
	if len(data) == 0 {
		return p.NewState(t), nil
	}

	r := memento.NewReader(data)
	s, err := p.ReadMemento(t, r)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", p.Key(), err)
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("policy %q: %w", p.Key(), err)
	}

	return s, nil
}

// SaveState appends s to w and returns the memento bytes.
func SaveState(p Policy, w *memento.Writer, s State) []byte {
	w.Reset()
	p.WriteMemento(w, s)

	return w.Bytes()
}

// BitCount estimates the number of bits p would spend on v, leaving s and
// call.Model untouched.
func BitCount(p Policy, v Value, s State, call Call) (float64, error) {
	w := memento.NewWriter(nil)
	scratch, err := LoadState(p, v.Type, SaveState(p, w, s))
	if err != nil {
		return 0, err
	}
	if call.Model != nil {
		call.Model = call.Model.Clone()
	}

	enc := arith.NewEncoder()
	defer enc.Release()
	if err := p.WriteValue(enc, v, scratch, call); err != nil {
		return 0, err
	}

	return enc.Entropy(), nil
}

func unsupported(p Policy, t format.WireType) error {
	return fmt.Errorf("%w: policy %q cannot code %s", errs.ErrUnsupportedType, p.Key(), t)
}

// stateAs asserts a state to the policy's concrete type.
func stateAs[T any](p Policy, s State) (T, error) {
	st, ok := s.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: policy %q got state %T", errs.ErrMementoCorrupt, p.Key(), s)
	}

	return st, nil
}
