package policy

import (
	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
	"github.com/arloliu/deltapack/quant"
)

// Quantized codes every float component as a fixed-width quantized code.
type Quantized struct {
	key  string
	desc quant.Descriptor
}

var _ Policy = (*Quantized)(nil)

// NewQuantized returns a stateless quantizing policy.
func NewQuantized(key string, desc quant.Descriptor) (*Quantized, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	return &Quantized{key: key, desc: desc}, nil
}

// Key returns the configured policy name.
func (p *Quantized) Key() string { return p.key }

// Descriptor returns the quantizer.
func (p *Quantized) Descriptor() quant.Descriptor { return p.desc }

// Supports reports whether t has float components.
func (p *Quantized) Supports(t format.WireType) bool { return t.Components() > 0 }

// NewState returns nil; Quantized keeps no per-field state.
func (p *Quantized) NewState(format.WireType) State { return nil }

// ReadMemento consumes nothing and returns a nil state.
func (p *Quantized) ReadMemento(format.WireType, *memento.Reader) (State, error) { return nil, nil }

// WriteMemento writes nothing.
func (p *Quantized) WriteMemento(*memento.Writer, State) {}

// WriteValue writes each component as a fixed-width quantizer code.
func (p *Quantized) WriteValue(enc *arith.Encoder, v Value, _ State, _ Call) error {
	if !p.Supports(v.Type) {
		return unsupported(p, v.Type)
	}

	for _, c := range v.Components() {
		if err := enc.EncodeBits(uint64(p.desc.Quantize(c)), p.desc.Bits); err != nil {
			return err
		}
	}

	return nil
}

// ReadValue reads the codes written by WriteValue and dequantizes them.
func (p *Quantized) ReadValue(dec *arith.Decoder, t format.WireType, _ State, _ Call) (Value, error) {
	if !p.Supports(t) {
		return Value{}, unsupported(p, t)
	}

	v := Zero(t)
	for i := range t.Components() {
		code, err := dec.DecodeBits(p.desc.Bits)
		if err != nil {
			return Value{}, err
		}
		v.Vec[i] = p.desc.Dequantize(uint32(code)) //nolint: gosec
	}

	return v, nil
}
