package compress

// ZstdCompressor provides Zstandard compression.
//
// The implementation is selected at build time; see the package
// documentation.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a Zstd codec with the default level.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
