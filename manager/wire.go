package manager

import (
	"fmt"

	"github.com/arloliu/deltapack/arith"
	"github.com/arloliu/deltapack/chunk"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/internal/pool"
	"github.com/arloliu/deltapack/memento"
	"github.com/arloliu/deltapack/policy"
)

// Object update layout:
//
//	object id   32 raw bits
//	profile      8 raw bits
//	tag         16 raw bits, integrity only
//	op count    16 raw bits, integrity only
//	fields      chunk values in op order
const (
	objectIDBits = 32
	profileBits  = 8
	tagBits      = 16
	opCountBits  = 16
)

// Header is the leading identifier pair of one object update.
type Header struct {
	ObjectID uint32
	Profile  uint8
}

// NewMementos returns an empty memento set sized for obj's layout.
func (m *Manager) NewMementos(obj chunk.Object, profile uint8) (*memento.Set, error) {
	c, err := m.ChunkFor(obj, profile)
	if err != nil {
		return nil, err
	}

	return memento.NewSet(c.Len()), nil
}

// WriteObject codes one update of obj. Nothing is written to enc when the
// object cannot be collected; after a failure past that point the packet
// must be discarded.
func (m *Manager) WriteObject(enc *arith.Encoder, objID uint32, obj chunk.Object, profile uint8, set *memento.Set, call policy.Call) error {
	c, err := m.ChunkFor(obj, profile)
	if err != nil {
		return err
	}

	bb := pool.GetChunkBuffer()
	defer pool.PutChunkBuffer(bb)

	if bb.B, err = chunk.Collect(obj, c, bb.B[:0]); err != nil {
		return fmt.Errorf("object %d: %w", objID, err)
	}

	if err := enc.EncodeBits(uint64(objID), objectIDBits); err != nil {
		return err
	}
	if err := enc.EncodeBits(uint64(profile), profileBits); err != nil {
		return err
	}
	if m.integrity {
		if err := enc.EncodeBits(uint64(c.Tag()), tagBits); err != nil {
			return err
		}
		if err := enc.EncodeBits(uint64(c.Len()&0xFFFF), opCountBits); err != nil { //nolint: gosec
			return err
		}
	}

	if err := chunk.WriteStream(c, bb.B, enc, set, call); err != nil {
		return fmt.Errorf("object %d: %w", objID, err)
	}

	return nil
}

// ReadHeader decodes the header of the next object update.
func ReadHeader(dec *arith.Decoder) (Header, error) {
	id, err := dec.DecodeBits(objectIDBits)
	if err != nil {
		return Header{}, err
	}
	profile, err := dec.DecodeBits(profileBits)
	if err != nil {
		return Header{}, err
	}

	return Header{ObjectID: uint32(id), Profile: uint8(profile)}, nil //nolint: gosec
}

// ReadObject decodes the rest of the update announced by h into obj. The
// integrity fields, when enabled, must match obj's local layout; a mismatch
// aborts the read with errs.ErrIntegrityMismatch before any field is decoded.
func (m *Manager) ReadObject(dec *arith.Decoder, h Header, obj chunk.Object, set *memento.Set, call policy.Call) error {
	c, err := m.ChunkFor(obj, h.Profile)
	if err != nil {
		return err
	}

	if m.integrity {
		if err := checkIntegrity(dec, c); err != nil {
			return fmt.Errorf("object %d: %w", h.ObjectID, err)
		}
	}

	bb := pool.GetChunkBuffer()
	defer pool.PutChunkBuffer(bb)

	if bb.B, err = chunk.ReadStream(c, dec, bb.B[:0], set, call); err != nil {
		return fmt.Errorf("object %d: %w", h.ObjectID, err)
	}
	if err := chunk.Apply(obj, c, bb.B); err != nil {
		return fmt.Errorf("object %d: %w", h.ObjectID, err)
	}

	return nil
}

func checkIntegrity(dec *arith.Decoder, c *chunk.Chunk) error {
	tag, err := dec.DecodeBits(tagBits)
	if err != nil {
		return err
	}
	count, err := dec.DecodeBits(opCountBits)
	if err != nil {
		return err
	}

	if uint16(tag) != c.Tag() { //nolint: gosec
		return fmt.Errorf("%w: tag %04x, local layout %04x", errs.ErrIntegrityMismatch, tag, c.Tag())
	}
	if int(count) != c.Len()&0xFFFF {
		return fmt.Errorf("%w: %d ops, local layout has %d", errs.ErrIntegrityMismatch, count, c.Len())
	}

	return nil
}
