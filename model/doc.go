// Package model provides the adaptive order-0 probability models that feed
// the arithmetic coder.
//
// Every model maps a symbol to a (total, low, size) frequency range, codes it
// through arith, and then increments that symbol's count. When a count would
// pass its cap, every count is halved (floor, minimum 1) so that each symbol
// keeps a non-zero probability.
//
// Available shapes:
//   - FlatModel: small alphabets (up to MaxFlatSymbols), single table.
//   - HierarchicalModel: large alphabets, counts grouped into fixed-size
//     segments (outer, middle, leaf) coded in three stages so lookup,
//     increment and rescale touch O(segment) entries rather than O(N).
//   - MoveToFrontModel: temporally clustered streams; codes a symbol's
//     position in a recency list with an escape for unseen symbols.
//   - BitModel: a two-symbol adaptive counter small enough to live in a memento.
//
// Models are not safe for concurrent use. Encoder and decoder each own a copy
// and stay in lockstep as long as they see the same symbol sequence.
package model

import (
	"github.com/arloliu/deltapack/arith"
)

// Model is the common surface of the adaptive symbol models.
type Model interface {
	// WriteSymbol codes s and adapts the model.
	WriteSymbol(enc *arith.Encoder, s int) error
	// ReadSymbol decodes one symbol and adapts the model identically.
	ReadSymbol(dec *arith.Decoder) (int, error)
	// NumSymbols returns the alphabet size.
	NumSymbols() int
	// Count returns the current count of s.
	Count(s int) uint32
	// Low returns the cumulative count of all symbols below s.
	Low(s int) uint32
	// Total returns the sum of all counts.
	Total() uint32
	// RecalculateProbabilities rebuilds every derived cumulative value from the counts.
	RecalculateProbabilities()
}
