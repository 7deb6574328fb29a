package model

const (
	// ByteAlphabet holds every byte value plus an end-of-string symbol.
	ByteAlphabet   = 257
	EndOfString    = 256
	recentIDs      = 32
	idWidth        = 32
	symbolAlphabet = 1 << 16
)

// ChannelModel bundles the adaptive models one connection direction shares
// across all of its fields.
//
// A ChannelModel belongs to the thread that owns the connection's send or
// receive step; the sending and receiving peer each keep one per direction.
type ChannelModel struct {
	bytes   *FlatModel
	ids     *MoveToFrontModel
	symbols *HierarchicalModel
}

// NewChannelModel creates a fresh channel model.
func NewChannelModel() *ChannelModel {
	bytes, _ := NewFlatModel(ByteAlphabet)
	ids, _ := NewMoveToFrontModel(recentIDs, idWidth)

	return &ChannelModel{bytes: bytes, ids: ids}
}

// Bytes returns the order-0 byte model used for strings.
func (c *ChannelModel) Bytes() *FlatModel {
	return c.bytes
}

// IDs returns the move-to-front cache of object references.
func (c *ChannelModel) IDs() *MoveToFrontModel {
	return c.ids
}

// Symbols returns the 16-bit symbol model, allocating it on first use.
func (c *ChannelModel) Symbols() *HierarchicalModel {
	if c.symbols == nil {
		c.symbols, _ = NewHierarchicalModel(symbolAlphabet)
	}

	return c.symbols
}

// Clone returns an independent copy of every model in c.
func (c *ChannelModel) Clone() *ChannelModel {
	clone := &ChannelModel{bytes: c.bytes.Clone(), ids: c.ids.Clone()}
	if c.symbols != nil {
		clone.symbols = c.symbols.Clone()
	}

	return clone
}
