// Package chunk compiles an object's field layout into a serialization
// program and replays it.
//
// Build walks an Object once and records one Op per scalar field (its wire
// type and resolved policy) and one marker per optional group, whose Skip is
// patched when the group closes. The compiled Chunk is then replayed:
//
//   - Collect copies the object's current field values into a flat buffer.
//   - WriteStream codes a flat buffer through each field's policy.
//   - ReadStream decodes a flat buffer from the stream.
//   - Apply stores a flat buffer back into an object.
//
// Group conditions travel as one flag byte in flat buffers and one bit in
// streams, ahead of the group's fields; a false group skips its ops in one
// step. Every replay checks that the object still visits the compiled ops in
// order and fails with errs.ErrLayoutDrift otherwise.
//
// Per-field coder state is kept in a memento.Set with one slot per op. Stream
// replays only commit the set after every field succeeded.
package chunk
