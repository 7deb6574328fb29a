// Package registry maps compression policy keys to configured policy
// instances.
//
// A Registry starts out holding only the default pass-through policy. Policy
// documents (YAML) add named instances built by factories, one factory per
// implementation name. Documents may reference other entries (aliases and
// own/other composites); such entries are retried until a pass makes no
// progress, so document order does not matter.
package registry

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/deltapack/errdist"
	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/internal/options"
	"github.com/arloliu/deltapack/policy"
)

// Entry is one policy declaration inside a document.
type Entry struct {
	Name   string    `yaml:"name"`
	Impl   string    `yaml:"impl,omitempty"`
	Alias  string    `yaml:"alias,omitempty"`
	Params yaml.Node `yaml:"params,omitempty"`
}

// Document is the top-level shape of a policy file.
type Document struct {
	Policies []Entry `yaml:"policies"`
}

// Lookup returns an already registered policy by key.
type Lookup func(key string) (policy.Policy, bool)

// Factory builds a policy named name from its params node.
//
// params is never nil; an entry without params passes an empty node.
// Factories that depend on other policies resolve them through lookup and
// return an error wrapping errs.ErrUnresolvedAlias when a dependency is not
// registered yet.
type Factory func(name string, params *yaml.Node, lookup Lookup) (policy.Policy, error)

// Option configures a Registry.
type Option = options.Option[*Registry]

// WithLogger sets the logger used for configuration warnings.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	})
}

// WithFactory registers an extra implementation at construction time.
func WithFactory(impl string, f Factory) Option {
	return options.New(func(r *Registry) error {
		return r.RegisterFactory(impl, f)
	})
}

// Registry holds policy factories and configured policy instances.
//
// All methods are safe for concurrent use. Policies are immutable once
// registered.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	policies  map[string]policy.Policy
	order     []string
	def       policy.Policy
	logger    *slog.Logger
}

// New creates a registry holding the builtin factories and the default policy.
func New(opts ...Option) (*Registry, error) {
	def := policy.NewDefault(policy.DefaultKey)
	r := &Registry{
		factories: builtinFactories(),
		policies:  map[string]policy.Policy{policy.DefaultKey: def},
		order:     []string{policy.DefaultKey},
		def:       def,
		logger:    slog.Default(),
	}

	if err := options.Apply(r, opts...); err != nil {
		return nil, err
	}

	return r, nil
}

// RegisterFactory adds or replaces the factory for impl.
func (r *Registry) RegisterFactory(impl string, f Factory) error {
	if impl == "" || f == nil {
		return fmt.Errorf("%w: factory for %q", errs.ErrInvalidPolicyConfig, impl)
	}

	r.mu.Lock()
	r.factories[impl] = f
	r.mu.Unlock()

	return nil
}

// Register adds a constructed policy under its key.
//
// Returns errs.ErrDuplicatePolicy if the key is taken.
func (r *Registry) Register(p policy.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registerLocked(p.Key(), p)
}

func (r *Registry) registerLocked(key string, p policy.Policy) error {
	if _, ok := r.policies[key]; ok {
		return fmt.Errorf("%w: %q", errs.ErrDuplicatePolicy, key)
	}
	r.policies[key] = p
	r.order = append(r.order, key)

	return nil
}

// Lookup returns the policy registered under key.
func (r *Registry) Lookup(key string) (policy.Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[key]

	return p, ok
}

// MustLookup returns the policy registered under key and panics on a miss.
func (r *Registry) MustLookup(key string) policy.Policy {
	p, ok := r.Lookup(key)
	if !ok {
		panic(fmt.Sprintf("registry: %v: %q", errs.ErrPolicyNotFound, key))
	}

	return p
}

// Default returns the default pass-through policy.
func (r *Registry) Default() policy.Policy {
	return r.def
}

// Policies iterates registered policies in registration order.
func (r *Registry) Policies() iter.Seq2[string, policy.Policy] {
	r.mu.RLock()
	keys := slices.Clone(r.order)
	snapshot := make([]policy.Policy, len(keys))
	for i, k := range keys {
		snapshot[i] = r.policies[k]
	}
	r.mu.RUnlock()

	return func(yield func(string, policy.Policy) bool) {
		for i, k := range keys {
			if !yield(k, snapshot[i]) {
				return
			}
		}
	}
}

// ErrorModel names an error-distribution model owned by a registered policy.
type ErrorModel struct {
	Key     string
	Channel string
	Model   *errdist.Model
}

// ErrorModels returns every distinct error-distribution model reachable from
// the registered policies, including those nested in own/other composites.
func (r *Registry) ErrorModels() []ErrorModel {
	var out []ErrorModel
	seen := make(map[*errdist.Model]struct{})

	var walk func(p policy.Policy)
	walk = func(p policy.Policy) {
		switch v := p.(type) {
		case *policy.ErrorDist:
			if _, ok := seen[v.Model()]; ok {
				return
			}
			seen[v.Model()] = struct{}{}
			out = append(out, ErrorModel{Key: v.Key(), Channel: v.Channel(), Model: v.Model()})
		case *policy.OwnOther:
			walk(v.Own())
			walk(v.Other())
		}
	}

	for _, p := range r.Policies() {
		walk(p)
	}

	return out
}

// ReadFiles reads and parses every policy document in paths and merges them
// into one document. It fails on the first unreadable or malformed file.
func ReadFiles(paths ...string) (Document, error) {
	var merged Document
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("read policy file %s: %w", path, err)
		}

		doc, err := ParseDocument(data)
		if err != nil {
			return Document{}, fmt.Errorf("parse policy file %s: %w", path, err)
		}
		merged.Policies = append(merged.Policies, doc.Policies...)
	}

	return merged, nil
}

// LoadFiles loads every policy document in paths as one merged document.
func (r *Registry) LoadFiles(paths ...string) error {
	doc, err := ReadFiles(paths...)
	if err != nil {
		return err
	}

	return r.Load(doc)
}

// LoadDocument parses and loads a YAML policy document.
func (r *Registry) LoadDocument(data []byte) error {
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}

	return r.Load(doc)
}

// ParseDocument decodes a YAML policy document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", errs.ErrInvalidPolicyConfig, err)
	}

	return doc, nil
}

// Load registers every entry of doc.
//
// An entry whose parameters are rejected by its factory is registered as the
// default policy under its name and a warning is logged, so a bad entry never
// makes its fields unreadable. Entries that reference unregistered names are
// retried until a pass makes no progress; the ones left are reported as an
// error wrapping errs.ErrUnresolvedAlias. Unknown implementations and
// duplicate names are returned as errors after the rest has loaded.
//
// Every skipped entry is logged as a warning, so callers that only need a
// usable registry may ignore the error.
func (r *Registry) Load(doc Document) error {
	pending := slices.Clone(doc.Policies)
	var failures []error

	for len(pending) > 0 {
		var next []Entry
		for i := range pending {
			e := &pending[i]
			err := r.loadEntry(e)
			switch {
			case err == nil:
			case errors.Is(err, errs.ErrUnresolvedAlias):
				next = append(next, *e)
			default:
				failures = append(failures, err)
			}
		}

		if len(next) == len(pending) {
			for _, e := range next {
				failures = append(failures, fmt.Errorf("%w: policy %q", errs.ErrUnresolvedAlias, e.Name))
			}

			break
		}
		pending = next
	}

	for _, err := range failures {
		r.logger.Warn("skipped compression policy", slog.Any("error", err))
	}

	return errors.Join(failures...)
}

func (r *Registry) loadEntry(e *Entry) error {
	if e.Name == "" {
		return fmt.Errorf("%w: policy entry without a name", errs.ErrInvalidPolicyConfig)
	}

	if e.Alias != "" {
		target, ok := r.Lookup(e.Alias)
		if !ok {
			return fmt.Errorf("%w: %q -> %q", errs.ErrUnresolvedAlias, e.Name, e.Alias)
		}

		return r.registerAlias(e.Name, target)
	}

	r.mu.RLock()
	f, ok := r.factories[e.Impl]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q for policy %q", errs.ErrUnknownImplementation, e.Impl, e.Name)
	}

	p, err := f(e.Name, &e.Params, r.Lookup)
	if errors.Is(err, errs.ErrUnresolvedAlias) {
		return err
	}
	if err != nil {
		r.logger.Warn("invalid compression policy config, using default",
			slog.String("policy", e.Name),
			slog.String("impl", e.Impl),
			slog.Any("error", err))
		p = policy.NewDefault(e.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registerLocked(e.Name, p)
}

func (r *Registry) registerAlias(name string, target policy.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registerLocked(name, target)
}
