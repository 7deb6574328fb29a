package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/deltapack/errs"
	"github.com/arloliu/deltapack/format"
	"github.com/arloliu/deltapack/policy"
	"github.com/arloliu/deltapack/predict"
	"github.com/arloliu/deltapack/pulse"
	"github.com/arloliu/deltapack/quant"
)

// Builtin implementation names.
const (
	ImplDefault   = "default"
	ImplRangedInt = "ranged_int"
	ImplQuantized = "quantized"
	ImplPredicted = "predicted"
	ImplErrorDist = "error_dist"
	ImplString    = "string"
	ImplRecentID  = "recent_id"
	ImplSymbol16  = "symbol16"
	ImplOwnOther  = "own_other"
)

func builtinFactories() map[string]Factory {
	return map[string]Factory{
		ImplDefault:   newDefault,
		ImplRangedInt: newRangedInt,
		ImplQuantized: newQuantized,
		ImplPredicted: newPredicted,
		ImplErrorDist: newErrorDist,
		ImplString:    newString,
		ImplRecentID:  newRecentID,
		ImplSymbol16:  newSymbol16,
		ImplOwnOther:  newOwnOther,
	}
}

type quantParams struct {
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Bits   int     `yaml:"bits"`
	Method string  `yaml:"method"`
}

func (q quantParams) descriptor() (quant.Descriptor, error) {
	method := format.RoundLeft
	if q.Method != "" {
		m, err := format.ParseQuantizeMethod(q.Method)
		if err != nil {
			return quant.Descriptor{}, fmt.Errorf("%w: %w", errs.ErrInvalidPolicyConfig, err)
		}
		method = m
	}

	return quant.New(q.Min, q.Max, q.Bits, method)
}

type predictParams struct {
	TimeBase  string  `yaml:"time_base"`
	Alpha     float64 `yaml:"alpha"`
	FastAlpha float64 `yaml:"fast_alpha"`
	OffMin    float64 `yaml:"off_min"`
	OffMax    float64 `yaml:"off_max"`
	OffDecay  float64 `yaml:"off_decay"`
	TimeUnit  float64 `yaml:"time_unit"`
}

func (p predictParams) params() (predict.Params, error) {
	out := predict.Params{
		Alpha:     p.Alpha,
		FastAlpha: p.FastAlpha,
		OffMin:    p.OffMin,
		OffMax:    p.OffMax,
		OffDecay:  p.OffDecay,
		TimeUnit:  p.TimeUnit,
	}
	if p.TimeBase != "" {
		tb, err := format.ParseTimeBase(p.TimeBase)
		if err != nil {
			return predict.Params{}, fmt.Errorf("%w: %w", errs.ErrInvalidPolicyConfig, err)
		}
		out.TimeBase = tb
	}

	return out.Normalize(), nil
}

type pulseParams struct {
	InRangeWeight uint32 `yaml:"in_range_weight"`
	CenterHeight  uint32 `yaml:"center_height"`
	SideHeight    uint32 `yaml:"side_height"`
	HalfSquareHit uint32 `yaml:"half_square_hit"`
	MaxDepth      int    `yaml:"max_depth"`
}

// apply overrides the non-zero fields of c.
func (p pulseParams) apply(c pulse.Coder) pulse.Coder {
	if p.InRangeWeight != 0 {
		c.InRangeWeight = p.InRangeWeight
	}
	if p.CenterHeight != 0 {
		c.CenterHeight = p.CenterHeight
	}
	if p.SideHeight != 0 {
		c.SideHeight = p.SideHeight
	}
	if p.HalfSquareHit != 0 {
		c.HalfSquareHit = p.HalfSquareHit
	}
	if p.MaxDepth != 0 {
		c.MaxDepth = p.MaxDepth
	}

	return c
}

func decode(params *yaml.Node, out any) error {
	if params == nil || params.IsZero() {
		return nil
	}
	if err := params.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidPolicyConfig, err)
	}

	return nil
}

func newDefault(name string, _ *yaml.Node, _ Lookup) (policy.Policy, error) {
	return policy.NewDefault(name), nil
}

func newRangedInt(name string, params *yaml.Node, _ Lookup) (policy.Policy, error) {
	var cfg struct {
		Min int64 `yaml:"min"`
		Max int64 `yaml:"max"`
	}
	if err := decode(params, &cfg); err != nil {
		return nil, err
	}

	return policy.NewRangedInt(name, cfg.Min, cfg.Max)
}

func newQuantized(name string, params *yaml.Node, _ Lookup) (policy.Policy, error) {
	var cfg quantParams
	if err := decode(params, &cfg); err != nil {
		return nil, err
	}
	desc, err := cfg.descriptor()
	if err != nil {
		return nil, err
	}

	return policy.NewQuantized(name, desc)
}

func newPredicted(name string, params *yaml.Node, _ Lookup) (policy.Policy, error) {
	var cfg struct {
		quantParams   `yaml:",inline"`
		predictParams `yaml:",inline"`
		Pulse         pulseParams `yaml:"pulse"`
	}
	if err := decode(params, &cfg); err != nil {
		return nil, err
	}
	desc, err := cfg.descriptor()
	if err != nil {
		return nil, err
	}
	pp, err := cfg.params()
	if err != nil {
		return nil, err
	}

	return policy.NewPredicted(name, desc, pp, cfg.Pulse.apply(pulse.New(desc.Bits)))
}

func newErrorDist(name string, params *yaml.Node, _ Lookup) (policy.Policy, error) {
	var cfg struct {
		quantParams   `yaml:",inline"`
		predictParams `yaml:",inline"`
		Channel       string `yaml:"channel"`
	}
	if err := decode(params, &cfg); err != nil {
		return nil, err
	}
	desc, err := cfg.descriptor()
	if err != nil {
		return nil, err
	}
	pp, err := cfg.params()
	if err != nil {
		return nil, err
	}

	return policy.NewErrorDist(name, cfg.Channel, desc, pp)
}

func newString(name string, params *yaml.Node, _ Lookup) (policy.Policy, error) {
	var cfg struct {
		MaxLength int `yaml:"max_length"`
	}
	if err := decode(params, &cfg); err != nil {
		return nil, err
	}

	return policy.NewString(name, cfg.MaxLength)
}

func newRecentID(name string, _ *yaml.Node, _ Lookup) (policy.Policy, error) {
	return policy.NewRecentID(name), nil
}

func newSymbol16(name string, _ *yaml.Node, _ Lookup) (policy.Policy, error) {
	return policy.NewSymbol16(name), nil
}

func newOwnOther(name string, params *yaml.Node, lookup Lookup) (policy.Policy, error) {
	var cfg struct {
		Own   string `yaml:"own"`
		Other string `yaml:"other"`
	}
	if err := decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Own == "" || cfg.Other == "" {
		return nil, fmt.Errorf("%w: own_other needs both own and other", errs.ErrInvalidPolicyConfig)
	}

	own, ok := lookup(cfg.Own)
	if !ok {
		return nil, fmt.Errorf("%w: %q needs %q", errs.ErrUnresolvedAlias, name, cfg.Own)
	}
	other, ok := lookup(cfg.Other)
	if !ok {
		return nil, fmt.Errorf("%w: %q needs %q", errs.ErrUnresolvedAlias, name, cfg.Other)
	}

	return policy.NewOwnOther(name, own, other)
}
