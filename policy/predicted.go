package policy

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
	"github.com/arloliu/deltapack/predict"
	"github.com/arloliu/deltapack/pulse"
	"github.com/arloliu/deltapack/quant"
)

// Predicted quantizes each float component, predicts its next code from the
// field's history and codes the code against the predicted window with a
// pulse coder.
type Predicted struct {
	key    string
	desc   quant.Descriptor
	params predict.Params
	coder  pulse.Coder
}

var _ Policy = (*Predicted)(nil)

// PredictedState is the per-component predictor history.
type PredictedState struct {
	Components [4]predict.State
}

// NewPredicted returns a predicting policy. The coder's domain width is
// taken from the descriptor.
func NewPredicted(key string, desc quant.Descriptor, params predict.Params, coder pulse.Coder) (*Predicted, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	coder.Bits = desc.Bits
	if err := coder.Validate(); err != nil {
		return nil, err
	}

	return &Predicted{key: key, desc: desc, params: params.Normalize(), coder: coder}, nil
}

// Key returns the configured policy name.
func (p *Predicted) Key() string { return p.key }

// Supports reports whether t has float components.
func (p *Predicted) Supports(t format.WireType) bool { return t.Components() > 0 }

// NewState returns a state with no prediction history.
func (p *Predicted) NewState(format.WireType) State { return &PredictedState{} }

// ReadMemento restores the prediction history of the leading components.
//
// Returns errs.ErrMementoCorrupt when the memento names more components than
// t has.
func (p *Predicted) ReadMemento(t format.WireType, r *memento.Reader) (State, error) {
	s := &PredictedState{}
	n := int(r.Uint8())
	if n > t.Components() {
		return nil, fmt.Errorf("%w: %d components for %s", errs.ErrMementoCorrupt, n, t)
	}
	for i := range n {
		if err := s.Components[i].Unmarshal(r); err != nil {
			return nil, err
		}
	}

	return s, r.Err()
}

// WriteMemento saves components up to the last one with history.
func (p *Predicted) WriteMemento(w *memento.Writer, s State) {
	st, ok := s.(*PredictedState)
	if !ok {
		return
	}
	n := 0
	for i := range st.Components {
		if st.Components[i].Valid {
			n = i + 1
		}
	}
	w.Uint8(uint8(n)) //nolint: gosec
	for i := range n {
		st.Components[i].Marshal(w)
	}
}

// WriteValue quantizes each component and codes it against the predicted
// code, then folds the value into s.
func (p *Predicted) WriteValue(enc *arith.Encoder, v Value, s State, call Call) error {
	if !p.Supports(v.Type) {
		return unsupported(p, v.Type)
	}
	st, err := stateAs[*PredictedState](p, s)
	if err != nil {
		return err
	}

	maxCode := int64(p.desc.MaxCode())
	for i, c := range v.Components() {
		ps := &st.Components[i]
		code := int64(p.desc.Quantize(c))
		elapsed := p.params.Elapsed(ps, call.Age, call.Now)
		center, left, right := p.params.Predict(ps, elapsed, 0, maxCode)

		//nolint: gosec
		if err := p.coder.Write(enc, uint64(code), uint64(center), uint64(left), uint64(right)); err != nil {
			return err
		}
		p.params.Update(ps, code, center, elapsed, call.Now)
	}

	return nil
}

// ReadValue decodes components written by WriteValue and advances s the same way.
func (p *Predicted) ReadValue(dec *arith.Decoder, t format.WireType, s State, call Call) (Value, error) {
	if !p.Supports(t) {
		return Value{}, unsupported(p, t)
	}
	st, err := stateAs[*PredictedState](p, s)
	if err != nil {
		return Value{}, err
	}

	maxCode := int64(p.desc.MaxCode())
	v := Zero(t)
	for i := range t.Components() {
		ps := &st.Components[i]
		elapsed := p.params.Elapsed(ps, call.Age, call.Now)
		center, left, right := p.params.Predict(ps, elapsed, 0, maxCode)

		//nolint: gosec
		code, err := p.coder.Read(dec, uint64(center), uint64(left), uint64(right))
		if err != nil {
			return Value{}, err
		}
		p.params.Update(ps, int64(code), center, elapsed, call.Now) //nolint: gosec
		v.Vec[i] = p.desc.Dequantize(uint32(code))                  //nolint: gosec
	}

	return v, nil
}
