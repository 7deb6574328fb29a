package policy

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/memento"
	"github.com/arloliu/deltapack/model"
)

// String codes strings byte by byte through the channel's adaptive byte
// model, terminated by an end-of-string symbol. Without a channel model it
// writes a raw length and raw bytes.
type String struct {
	key    string
	maxLen int
}

var _ Policy = (*String)(nil)

// NewString returns a string policy accepting up to maxLen bytes; 0 means
// MaxStringLength.
func NewString(key string, maxLen int) (*String, error) {
	if maxLen == 0 {
		maxLen = MaxStringLength
	}
	if maxLen < 0 || maxLen > MaxStringLength {
		return nil, fmt.Errorf("%w: string %q: max length %d not in [1,%d]", errs.ErrInvalidPolicyConfig, key, maxLen, MaxStringLength)
	}

	return &String{key: key, maxLen: maxLen}, nil
}

// Key returns the configured policy name.
func (p *String) Key() string { return p.key }

// Supports reports whether t is TypeString.
func (p *String) Supports(t format.WireType) bool { return t == format.TypeString }

// NewState returns nil; String keeps no per-field state.
func (p *String) NewState(format.WireType) State { return nil }

// ReadMemento consumes nothing and returns a nil state.
func (p *String) ReadMemento(format.WireType, *memento.Reader) (State, error) { return nil, nil }

// WriteMemento writes nothing.
func (p *String) WriteMemento(*memento.Writer, State) {}

// WriteValue codes the string through call.Model's adaptive byte model, or
// raw when call has no model.
//
// Returns errs.ErrStringTooLong when v exceeds the configured limit.
func (p *String) WriteValue(enc *arith.Encoder, v Value, _ State, call Call) error {
	if !p.Supports(v.Type) {
		return unsupported(p, v.Type)
	}
	if err := checkString(v.Str, p.maxLen); err != nil {
		return err
	}
	if call.Model == nil {
		return writeRawString(enc, v.Str)
	}

	bytes := call.Model.Bytes()
	for i := range len(v.Str) {
		if err := bytes.WriteSymbol(enc, int(v.Str[i])); err != nil {
			return err
		}
	}

	return bytes.WriteSymbol(enc, model.EndOfString)
}

// ReadValue decodes a string written by WriteValue.
func (p *String) ReadValue(dec *arith.Decoder, t format.WireType, _ State, call Call) (Value, error) {
	if !p.Supports(t) {
		return Value{}, unsupported(p, t)
	}

	if call.Model == nil {
		s, err := readRawString(dec)
		if err != nil {
			return Value{}, err
		}
		if len(s) > p.maxLen {
			return Value{}, fmt.Errorf("%w: %d bytes, limit %d", errs.ErrStringTooLong, len(s), p.maxLen)
		}

		return StringValue(s), nil
	}

	bytes := call.Model.Bytes()
	var buf []byte
	for {
		sym, err := bytes.ReadSymbol(dec)
		if err != nil {
			return Value{}, err
		}
		if sym == model.EndOfString {
			return StringValue(string(buf)), nil
		}
		if len(buf) == p.maxLen {
			return Value{}, fmt.Errorf("%w: no terminator within %d bytes", errs.ErrStringTooLong, p.maxLen)
		}
		buf = append(buf, byte(sym))
	}
}
