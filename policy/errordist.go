package policy

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errdist"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
	"github.com/arloliu/deltapack/predict"
	"github.com/arloliu/deltapack/quant"
)

// ErrorDist quantizes each float component, predicts its next code and codes
// the prediction error through a learned error distribution.
//
// The first value of a field, which has nothing to predict from, is written
// as a raw code.
type ErrorDist struct {
	key     string
	channel string
	desc    quant.Descriptor
	params  predict.Params
	model   *errdist.Model
}

var _ Policy = (*ErrorDist)(nil)

// ErrorDistState is the per-component predictor and error-coder state.
type ErrorDistState struct {
	Components [4]ErrorDistComponent
}

// ErrorDistComponent is the state of one float component.
type ErrorDistComponent struct {
	Pred predict.State
	Err  errdist.State
}

// NewErrorDist returns an error-distribution policy. channel names the
// statistics record the policy's observations are saved under.
func NewErrorDist(key, channel string, desc quant.Descriptor, params predict.Params) (*ErrorDist, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	// Errors span (-2^bits, 2^bits), so zigzag indices need one extra bit.
	m, err := errdist.NewModel(desc.Bits + 1)
	if err != nil {
		return nil, err
	}

	return &ErrorDist{key: key, channel: channel, desc: desc, params: params.Normalize(), model: m}, nil
}

// Key returns the configured policy name.
func (p *ErrorDist) Key() string { return p.key }

// Channel returns the statistics channel name.
func (p *ErrorDist) Channel() string { return p.channel }

// Model returns the shared error model.
func (p *ErrorDist) Model() *errdist.Model { return p.model }

// Supports reports whether t has float components.
func (p *ErrorDist) Supports(t format.WireType) bool { return t.Components() > 0 }

// NewState returns a state with no prediction history and zeroed run tracking.
func (p *ErrorDist) NewState(format.WireType) State {
	s := &ErrorDistState{}
	for i := range s.Components {
		s.Components[i].Err = errdist.NewState()
	}

	return s
}

// ReadMemento restores the predictor and error-run state of the leading
// components.
//
// Returns errs.ErrMementoCorrupt when the memento names more components than
// t has.
func (p *ErrorDist) ReadMemento(t format.WireType, r *memento.Reader) (State, error) {
	s, _ := p.NewState(t).(*ErrorDistState)
	n := int(r.Uint8())
	if n > t.Components() {
		return nil, fmt.Errorf("%w: %d components for %s", errs.ErrMementoCorrupt, n, t)
	}
	for i := range n {
		c := &s.Components[i]
		if err := c.Pred.Unmarshal(r); err != nil {
			return nil, err
		}
		if err := c.Err.Unmarshal(r); err != nil {
			return nil, err
		}
	}

	return s, r.Err()
}

// WriteMemento saves components up to the last one with history.
func (p *ErrorDist) WriteMemento(w *memento.Writer, s State) {
	st, ok := s.(*ErrorDistState)
	if !ok {
		return
	}
	n := 0
	for i := range st.Components {
		if st.Components[i].Pred.Valid {
			n = i + 1
		}
	}
	w.Uint8(uint8(n)) //nolint: gosec
	for i := range n {
		st.Components[i].Pred.Marshal(w)
		st.Components[i].Err.Marshal(w)
	}
}

// WriteValue codes each component's prediction error through the shared
// error distribution model, which also counts the error for learning. A
// component without history travels as a raw quantizer code.
//
// Parameters:
//   - enc: destination encoder
//   - v: value to code, of a supported type
//   - s: state from NewState or ReadMemento, advanced in place
//   - call: per-call context; Age and Now drive the predictor
//
// Returns an error when v's type is unsupported or s belongs to another policy.
func (p *ErrorDist) WriteValue(enc *arith.Encoder, v Value, s State, call Call) error {
	if !p.Supports(v.Type) {
		return unsupported(p, v.Type)
	}
	st, err := stateAs[*ErrorDistState](p, s)
	if err != nil {
		return err
	}

	for i, x := range v.Components() {
		c := &st.Components[i]
		code := int64(p.desc.Quantize(x))
		elapsed := p.params.Elapsed(&c.Pred, call.Age, call.Now)
		center, _, _ := p.params.Predict(&c.Pred, elapsed, 0, int64(p.desc.MaxCode()))

		if !c.Pred.Valid {
			if err := enc.EncodeBits(uint64(code), p.desc.Bits); err != nil { //nolint: gosec
				return err
			}
		} else if err := p.model.WriteValue(enc, code-center, c.Pred.Last-center, &c.Err); err != nil {
			return err
		}
		p.params.Update(&c.Pred, code, center, elapsed, call.Now)
	}

	return nil
}

// ReadValue decodes errors written by WriteValue and rebuilds the components.
func (p *ErrorDist) ReadValue(dec *arith.Decoder, t format.WireType, s State, call Call) (Value, error) {
	if !p.Supports(t) {
		return Value{}, unsupported(p, t)
	}
	st, err := stateAs[*ErrorDistState](p, s)
	if err != nil {
		return Value{}, err
	}

	maxCode := int64(p.desc.MaxCode())
	v := Zero(t)
	for i := range t.Components() {
		c := &st.Components[i]
		elapsed := p.params.Elapsed(&c.Pred, call.Age, call.Now)
		center, _, _ := p.params.Predict(&c.Pred, elapsed, 0, maxCode)

		var code int64
		if !c.Pred.Valid {
			raw, err := dec.DecodeBits(p.desc.Bits)
			if err != nil {
				return Value{}, err
			}
			code = int64(raw) //nolint: gosec
		} else {
			e, err := p.model.ReadValue(dec, c.Pred.Last-center, &c.Err)
			if err != nil {
				return Value{}, err
			}
			code = center + e
		}
		if code < 0 || code > maxCode {
			return Value{}, fmt.Errorf("%w: decoded code %d beyond %d", errs.ErrValueOutOfRange, code, maxCode)
		}

		p.params.Update(&c.Pred, code, center, elapsed, call.Now)
		v.Vec[i] = p.desc.Dequantize(uint32(code)) //nolint: gosec
	}

	return v, nil
}
