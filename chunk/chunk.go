package chunk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/internal/hash"
	"github.com/arloliu/deltapack/policy"
)

// Resolver maps policy keys to policies. *registry.Registry satisfies it.
// A registry holding a default under a misconfigured key still resolves it.
type Resolver interface {
	Lookup(key string) (policy.Policy, bool)
}

// Op is one step of a compiled chunk.
type Op struct {
	Name string
	// Type is the field's wire type, or format.TypeOptionalGroup for a
	// group marker.
	Type format.WireType
	// Key is the policy key the field was declared with.
	Key    string
	Policy policy.Policy
	// Skip is the number of ops inside a group; zero for fields.
	Skip int
}

// IsGroup reports whether op is an optional-group marker.
func (op *Op) IsGroup() bool {
	return op.Type == format.TypeOptionalGroup
}

func (op *Op) sameShape(o *Op) bool {
	return op.Name == o.Name && op.Type == o.Type && op.Key == o.Key && op.Skip == o.Skip
}

// Chunk is the compiled serialization program of one object layout.
//
// A Chunk is immutable and safe to share between connections; per
// connection state lives in a memento.Set indexed by op.
type Chunk struct {
	ops         []Op
	profile     uint8
	fingerprint uint64
	compiled    bool
}

// Build makes one pass over obj's fields for profile and compiles the
// resulting program. Policies are resolved by key through resolver; an empty
// key selects policy.DefaultKey.
//
// Any failure, including a key the resolver does not know, discards the
// chunk and returns an error wrapping errs.ErrChunkBuildFailed.
func Build(obj Object, profile uint8, resolver Resolver) (*Chunk, error) {
	b := &builder{resolver: resolver, digest: hash.NewDigest()}
	if err := obj.NetSerialize(b, profile); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrChunkBuildFailed, err)
	}
	if len(b.open) != 0 {
		return nil, fmt.Errorf("%w: %w: %d groups left open", errs.ErrChunkBuildFailed, errs.ErrUnbalancedGroup, len(b.open))
	}

	_ = b.digest.WriteByte(profile)

	return &Chunk{
		ops:         b.ops,
		profile:     profile,
		fingerprint: b.digest.Sum64(),
		compiled:    true,
	}, nil
}

// Ops returns the compiled program. The slice must not be modified.
func (c *Chunk) Ops() []Op {
	return c.ops
}

// Len returns the number of ops, which is also the memento slot count.
func (c *Chunk) Len() int {
	return len(c.ops)
}

// Profile returns the profile the chunk was built for.
func (c *Chunk) Profile() uint8 {
	return c.profile
}

// Fingerprint returns the structural hash of the program.
func (c *Chunk) Fingerprint() uint64 {
	return c.fingerprint
}

// Tag returns the 16-bit integrity tag of the program.
func (c *Chunk) Tag() uint16 {
	return hash.Tag16(c.fingerprint)
}

// Compiled reports whether c came out of a successful Build.
func (c *Chunk) Compiled() bool {
	return c != nil && c.compiled
}

// Compatible reports whether c and other have the same op sequence.
func (c *Chunk) Compatible(other *Chunk) bool {
	if !c.Compiled() || !other.Compiled() || len(c.ops) != len(other.ops) || c.profile != other.profile {
		return false
	}
	for i := range c.ops {
		if !c.ops[i].sameShape(&other.ops[i]) {
			return false
		}
	}

	return true
}

// Signature returns a readable description of the program.
func (c *Chunk) Signature() string {
	var sb strings.Builder
	sb.WriteString("p")
	sb.WriteString(strconv.Itoa(int(c.profile)))
	sb.WriteByte('[')
	for i := range c.ops {
		writeOp(&sb, &c.ops[i])
	}
	sb.WriteByte(']')

	return sb.String()
}

func writeOp(sb *strings.Builder, op *Op) {
	if op.IsGroup() {
		sb.WriteByte('?')
		sb.WriteString(op.Name)
		sb.WriteByte('/')
		sb.WriteString(strconv.Itoa(op.Skip))
	} else {
		sb.WriteString(op.Name)
		sb.WriteByte(':')
		sb.WriteString(op.Type.String())
		sb.WriteByte(':')
		sb.WriteString(op.Key)
	}
	sb.WriteByte(';')
}

func (c *Chunk) check() error {
	if !c.Compiled() {
		return errs.ErrChunkNotCompiled
	}

	return nil
}

// builder is the Serializer of the build pass.
type builder struct {
	resolver Resolver
	ops      []Op
	open     []int
	digest   hash.Digest
}

var _ Serializer = (*builder)(nil)

func (b *builder) Mode() Mode { return ModeBuild }

func (b *builder) Value(name, key string, v *policy.Value) error {
	if !v.Type.Valid() {
		return fmt.Errorf("field %q: %w: %s", name, errs.ErrUnsupportedType, v.Type)
	}
	if key == "" {
		key = policy.DefaultKey
	}

	p, ok := b.resolver.Lookup(key)
	if !ok || p == nil {
		return fmt.Errorf("field %q: %w: %q", name, errs.ErrPolicyNotFound, key)
	}
	if !p.Supports(v.Type) {
		return fmt.Errorf("field %q: policy %q: %w: %s", name, key, errs.ErrUnsupportedType, v.Type)
	}

	b.append(Op{Name: name, Type: v.Type, Key: key, Policy: p})

	return nil
}

func (b *builder) BeginGroup(name string, _ bool) (bool, error) {
	b.open = append(b.open, len(b.ops))
	b.append(Op{Name: name, Type: format.TypeOptionalGroup})

	return true, nil
}

func (b *builder) EndGroup() error {
	if len(b.open) == 0 {
		return errs.ErrUnbalancedGroup
	}
	start := b.open[len(b.open)-1]
	b.open = b.open[:len(b.open)-1]
	b.ops[start].Skip = len(b.ops) - start - 1
	// Skip is only known here, so it is hashed as a closing element.
	b.digest.WriteString(")" + strconv.Itoa(b.ops[start].Skip))

	return nil
}

func (b *builder) append(op Op) {
	b.ops = append(b.ops, op)
	var sb strings.Builder
	writeOp(&sb, &op)
	b.digest.WriteString(sb.String())
}
