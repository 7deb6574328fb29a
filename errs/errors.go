// Package errs defines the sentinel errors returned by deltapack packages.
//
// Errors are wrapped with context at the call site; use errors.Is to test for them.
package errs

import "errors"

// Arithmetic coder errors.
var (
	ErrBufferExhausted  = errors.New("arithmetic stream exhausted")
	ErrInvalidFrequency = errors.New("invalid frequency range")
	ErrInvalidBitCount  = errors.New("invalid bit count")
)

// Model and value coding errors.
var (
	ErrSymbolOutOfRange = errors.New("symbol out of range")
	ErrValueOutOfRange  = errors.New("value out of range")
	ErrStringTooLong    = errors.New("string too long")
	ErrUnsupportedType  = errors.New("wire type not supported by policy")
	ErrTypeMismatch     = errors.New("value type does not match wire type")
	ErrNoChannelModel   = errors.New("policy requires a channel model")
	ErrMementoCorrupt   = errors.New("memento corrupt")
	ErrInvalidQuantizer = errors.New("invalid quantizer descriptor")
)

// Configuration errors.
var (
	ErrInvalidPolicyConfig   = errors.New("invalid policy configuration")
	ErrUnknownImplementation = errors.New("unknown policy implementation")
	ErrUnresolvedAlias       = errors.New("unresolved policy alias")
	ErrPolicyNotFound        = errors.New("policy not found")
	ErrDuplicatePolicy       = errors.New("duplicate policy name")
)

// Chunk and stream errors.
var (
	ErrIntegrityMismatch = errors.New("chunk integrity mismatch")
	ErrLayoutDrift       = errors.New("object layout does not match compiled chunk")
	ErrChunkBuildFailed  = errors.New("chunk build failed")
	ErrChunkNotFound     = errors.New("chunk not found")
	ErrChunkNotCompiled  = errors.New("chunk not compiled")
	ErrUnbalancedGroup   = errors.New("unbalanced optional group")
	ErrShortBuffer       = errors.New("flat buffer too short")
	ErrInvalidLayout     = errors.New("invalid chunk layout")
	ErrDuplicateLayout   = errors.New("chunk layout already tracked")
)

// Statistics errors.
var (
	ErrStatsNotFound = errors.New("statistics not found")
	ErrStoreClosed   = errors.New("statistics store closed")
	ErrNoStore       = errors.New("no statistics store configured")
	ErrNoSeedSource  = errors.New("no statistics seed source configured")
	ErrTaskRunning   = errors.New("statistics task already running")
)
