package policy

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
)

// OwnOther dispatches to one of two policies depending on whether the
// receiving peer controls the object. Both sub-states are kept so a field
// can switch sides without losing history.
type OwnOther struct {
	key   string
	own   Policy
	other Policy
}

var _ Policy = (*OwnOther)(nil)

type ownOtherState struct {
	own, other State
}

// NewOwnOther returns a composite policy.
func NewOwnOther(key string, own, other Policy) (*OwnOther, error) {
	if own == nil || other == nil {
		return nil, fmt.Errorf("%w: own/other %q needs both sub-policies", errs.ErrInvalidPolicyConfig, key)
	}

	return &OwnOther{key: key, own: own, other: other}, nil
}

// Key returns the configured policy name.
func (p *OwnOther) Key() string { return p.key }

// Own returns the policy used for the receiver's own objects.
func (p *OwnOther) Own() Policy { return p.own }

// Other returns the policy used for everyone else's objects.
func (p *OwnOther) Other() Policy { return p.other }

// Supports reports whether both sub-policies support t.
func (p *OwnOther) Supports(t format.WireType) bool {
	return p.own.Supports(t) && p.other.Supports(t)
}

// NewState returns fresh states for both sub-policies.
func (p *OwnOther) NewState(t format.WireType) State {
	return &ownOtherState{own: p.own.NewState(t), other: p.other.NewState(t)}
}

// ReadMemento restores both sub-states from their length-prefixed mementos.
func (p *OwnOther) ReadMemento(t format.WireType, r *memento.Reader) (State, error) {
	own, err := readSub(p.own, t, r)
	if err != nil {
		return nil, err
	}
	other, err := readSub(p.other, t, r)
	if err != nil {
		return nil, err
	}

	return &ownOtherState{own: own, other: other}, nil
}

// WriteMemento saves the own state, then the other state.
func (p *OwnOther) WriteMemento(w *memento.Writer, s State) {
	st, ok := s.(*ownOtherState)
	if !ok {
		return
	}
	writeSub(p.own, w, st.own)
	writeSub(p.other, w, st.other)
}

func (p *OwnOther) pick(s State, own bool) (Policy, *State, error) {
	st, err := stateAs[*ownOtherState](p, s)
	if err != nil {
		return nil, nil, err
	}
	if own {
		return p.own, &st.own, nil
	}

	return p.other, &st.other, nil
}

// WriteValue delegates to the own policy when call.Own is set and to the
// other policy otherwise. Only the chosen sub-state advances.
func (p *OwnOther) WriteValue(enc *arith.Encoder, v Value, s State, call Call) error {
	sub, st, err := p.pick(s, call.Own)
	if err != nil {
		return err
	}

	return sub.WriteValue(enc, v, *st, call)
}

// ReadValue mirrors WriteValue.
func (p *OwnOther) ReadValue(dec *arith.Decoder, t format.WireType, s State, call Call) (Value, error) {
	sub, st, err := p.pick(s, call.Own)
	if err != nil {
		return Value{}, err
	}

	return sub.ReadValue(dec, t, *st, call)
}

// Sub-mementos are length-prefixed so each side restores independently.
func writeSub(p Policy, w *memento.Writer, s State) {
	sub := memento.NewWriter(nil)
	p.WriteMemento(sub, s)
	w.Uint16(uint16(sub.Len())) //nolint: gosec
	w.Append(sub.Bytes())
}

func readSub(p Policy, t format.WireType, r *memento.Reader) (State, error) {
	data := r.Next(int(r.Uint16()))
	if err := r.Err(); err != nil {
		return nil, err
	}

	return LoadState(p, t, data)
}
