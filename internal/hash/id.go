// Package hash provides the layout fingerprints and integrity tags of
// compiled chunks.
package hash

import "github.com/cespare/xxhash/v2"

// Tag16 folds a 64-bit fingerprint into the 16-bit tag sent on the wire.
func Tag16(fp uint64) uint16 {
	fp ^= fp >> 32
	fp ^= fp >> 16

	return uint16(fp) //nolint: gosec
}

// Digest builds a fingerprint incrementally.
type Digest struct {
	d *xxhash.Digest
}

// NewDigest returns an empty digest.
func NewDigest() Digest {
	return Digest{d: xxhash.New()}
}

// WriteString appends s followed by a separator, so adjacent fields never
// merge.
func (d Digest) WriteString(s string) {
	_, _ = d.d.WriteString(s)
	_, _ = d.d.Write([]byte{0})
}

// WriteByte appends one byte.
func (d Digest) WriteByte(b byte) error {
	_, err := d.d.Write([]byte{b})
	return err
}

// Sum64 returns the fingerprint of everything written so far.
func (d Digest) Sum64() uint64 {
	return d.d.Sum64()
}
