// Package arith implements the arithmetic (range) coder that every deltapack
// model and policy writes through.
//
// # Overview
//
// A symbol is described by a half-open frequency range [low, low+size) out of
// total. The Encoder narrows its 32-bit interval to that sub-range and emits
// settled bits to an MSB-first bit sink; the Decoder mirrors the interval and
// returns, from Decode(total), a target in [0,total) that the caller maps back
// to a symbol before confirming it with Update(total, low, size).
//
//	enc := arith.NewEncoder()
//	_ = enc.Encode(4, 1, 2) // symbol occupying [1,3) of 4
//	data := enc.Finish()
//
//	dec := arith.NewDecoder(data)
//	target, _ := dec.Decode(4) // 1 or 2
//	_ = dec.Update(4, 1, 2)
//
// # Limits
//
// total is capped at 1<<16 (MaxTotal) so range*total never overflows the
// 64-bit renormalization product and every symbol keeps a non-empty sub-range.
//
// Values wider than 16 bits are coded with EncodeBits (raw bits) or
// EncodeUniform (uniform over an arbitrary [0,n)), both of which split the
// value into 16-bit digits.
//
// # Exhaustion
//
// The decoder treats reads past the end of its buffer as zero bits, up to a
// slack of 32 bits that covers the encoder's termination. Any read beyond that
// slack makes the call fail with errs.ErrBufferExhausted, and every later call
// fails the same way, so a truncated stream fails as a whole.
//
// # Thread Safety
//
// Encoder and Decoder are not safe for concurrent use. One stream belongs to
// one connection's send or receive step.
package arith
