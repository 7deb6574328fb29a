package policy

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
)

// RecentID codes object references through the channel's move-to-front
// cache, so references to recently mentioned objects cost a few bits.
type RecentID struct {
	key string
}

var _ Policy = (*RecentID)(nil)

// NewRecentID returns a move-to-front reference policy named key.
func NewRecentID(key string) *RecentID {
	return &RecentID{key: key}
}

// Key returns the configured policy name.
func (p *RecentID) Key() string { return p.key }

// Supports reports whether t is TypeID.
func (p *RecentID) Supports(t format.WireType) bool { return t == format.TypeID }

// NewState returns nil; RecentID keeps no per-field state.
func (p *RecentID) NewState(format.WireType) State { return nil }

// ReadMemento consumes nothing and returns a nil state.
func (p *RecentID) ReadMemento(format.WireType, *memento.Reader) (State, error) { return nil, nil }

// WriteMemento writes nothing.
func (p *RecentID) WriteMemento(*memento.Writer, State) {}

// WriteValue codes the reference through call.Model's ID cache.
//
// Returns errs.ErrNoChannelModel when call carries no channel model.
func (p *RecentID) WriteValue(enc *arith.Encoder, v Value, _ State, call Call) error {
	if !p.Supports(v.Type) {
		return unsupported(p, v.Type)
	}
	if call.Model == nil {
		return fmt.Errorf("%w: policy %q", errs.ErrNoChannelModel, p.key)
	}

	return call.Model.IDs().WriteValue(enc, uint64(v.ID()))
}

// ReadValue decodes a reference written by WriteValue, updating the same cache.
func (p *RecentID) ReadValue(dec *arith.Decoder, t format.WireType, _ State, call Call) (Value, error) {
	if !p.Supports(t) {
		return Value{}, unsupported(p, t)
	}
	if call.Model == nil {
		return Value{}, fmt.Errorf("%w: policy %q", errs.ErrNoChannelModel, p.key)
	}

	id, err := call.Model.IDs().ReadValue(dec)
	if err != nil {
		return Value{}, err
	}

	return IDValue(uint32(id)), nil //nolint: gosec
}

// Symbol16 codes 8 and 16-bit integers through the channel's adaptive
// 16-bit symbol model; suited to enumerations such as animation or item ids.
type Symbol16 struct {
	key string
}

var _ Policy = (*Symbol16)(nil)

// NewSymbol16 returns a small-integer symbol policy named key.
func NewSymbol16(key string) *Symbol16 {
	return &Symbol16{key: key}
}

// Key returns the configured policy name.
func (p *Symbol16) Key() string { return p.key }

// Supports reports whether t is an 8 or 16-bit integer type.
func (p *Symbol16) Supports(t format.WireType) bool {
	switch t { //nolint: exhaustive
	case format.TypeInt8, format.TypeUint8, format.TypeInt16, format.TypeUint16:
		return true
	default:
		return false
	}
}

// NewState returns nil; Symbol16 keeps no per-field state.
func (p *Symbol16) NewState(format.WireType) State { return nil }

// ReadMemento consumes nothing and returns a nil state.
func (p *Symbol16) ReadMemento(format.WireType, *memento.Reader) (State, error) { return nil, nil }

// WriteMemento writes nothing.
func (p *Symbol16) WriteMemento(*memento.Writer, State) {}

// WriteValue codes the value's bit pattern as one symbol of call.Model's
// 16-bit model.
//
// Returns errs.ErrNoChannelModel when call carries no channel model.
func (p *Symbol16) WriteValue(enc *arith.Encoder, v Value, _ State, call Call) error {
	if !p.Supports(v.Type) {
		return unsupported(p, v.Type)
	}
	if call.Model == nil {
		return fmt.Errorf("%w: policy %q", errs.ErrNoChannelModel, p.key)
	}

	return call.Model.Symbols().WriteSymbol(enc, int(rawBits(v)))
}

// ReadValue decodes a symbol written by WriteValue. A symbol wider than t
// yields errs.ErrValueOutOfRange.
func (p *Symbol16) ReadValue(dec *arith.Decoder, t format.WireType, _ State, call Call) (Value, error) {
	if !p.Supports(t) {
		return Value{}, unsupported(p, t)
	}
	if call.Model == nil {
		return Value{}, fmt.Errorf("%w: policy %q", errs.ErrNoChannelModel, p.key)
	}

	sym, err := call.Model.Symbols().ReadSymbol(dec)
	if err != nil {
		return Value{}, err
	}
	if t.BitWidth() < 16 && sym>>t.BitWidth() != 0 {
		return Value{}, fmt.Errorf("%w: symbol %d for %s", errs.ErrValueOutOfRange, sym, t)
	}

	return fromRawBits(t, uint64(sym)), nil //nolint: gosec
}
