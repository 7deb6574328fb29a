// Package compress provides the payload codecs used for persisted statistics.
//
// Statistics snapshots are small, repetitive documents (long runs of zero
// counts in YAML or msgpack) and compress well with general purpose
// algorithms. The supported algorithms are:
//   - None: payload stored as-is
//   - Zstd: best ratio, the default for archived statistics
//   - S2: fast with a reasonable ratio
//   - LZ4: fastest decode
//
// The algorithm of a stored file is identified by its extension (see
// format.CompressionType.Extension and ForFile), so files can be inspected
// with the standard command line tools of each algorithm.
//
// Zstd uses the pure Go klauspost/compress implementation unless the module
// is built with cgo and the gozstd build tag, in which case valyala/gozstd is
// used. Both produce standard zstd frames.
package compress
