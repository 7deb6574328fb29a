// Package stats persists the error statistics that the background task
// gathers from live sessions and that seed the error-distribution coders of
// future runs.
//
// A Snapshot is keyed by policy key and channel. Each live session writes its
// own record, and loading a key accumulates every session's record into one.
package stats

import (
	"fmt"
	"strings"
)

// Snapshot is one persisted statistics record.
type Snapshot struct {
	Key           string       `yaml:"key" msgpack:"key"`
	Channel       string       `yaml:"channel" msgpack:"channel"`
	Session       string       `yaml:"session,omitempty" msgpack:"session,omitempty"`
	Counts        []uint64     `yaml:"counts,flow" msgpack:"counts"`
	ZeroAfterZero [2][2]uint64 `yaml:"zero_after_zero,flow" msgpack:"zero_after_zero"`
	Buckets       []uint64     `yaml:"buckets,flow,omitempty" msgpack:"buckets,omitempty"`
}

// ID returns the store identifier of the snapshot's key and channel.
func (s *Snapshot) ID() string {
	return ID(s.Key, s.Channel)
}

// ID joins a policy key and a channel into a store identifier.
func ID(key, channel string) string {
	if channel == "" {
		return key
	}

	return key + "." + channel
}

// Empty reports whether the snapshot holds no observations.
func (s *Snapshot) Empty() bool {
	return s.Total() == 0 && sumCounts(s.Buckets) == 0 &&
		s.ZeroAfterZero[0][0]+s.ZeroAfterZero[0][1]+s.ZeroAfterZero[1][0]+s.ZeroAfterZero[1][1] == 0
}

// Total returns the number of histogram observations.
func (s *Snapshot) Total() uint64 {
	return sumCounts(s.Counts)
}

// Accumulate adds other's observations into s.
//
// The last histogram index is the escape. Histograms of different lengths
// keep the longer tracked range; the shorter one's escape count joins the
// result's escape.
func (s *Snapshot) Accumulate(other *Snapshot) {
	s.Counts = AccumulateHistogram(s.Counts, other.Counts)
	s.Buckets = addCounts(s.Buckets, other.Buckets)
	for i := range s.ZeroAfterZero {
		for j := range s.ZeroAfterZero[i] {
			s.ZeroAfterZero[i][j] += other.ZeroAfterZero[i][j]
		}
	}
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Counts = append([]uint64(nil), s.Counts...)
	c.Buckets = append([]uint64(nil), s.Buckets...)

	return &c
}

// Validate checks the identifying fields.
func (s *Snapshot) Validate() error {
	if s.Key == "" {
		return fmt.Errorf("stats snapshot without key")
	}
	if strings.ContainsAny(s.Key+s.Channel+s.Session, "/\\") {
		return fmt.Errorf("stats snapshot %q: key, channel and session must not contain path separators", s.ID())
	}

	return nil
}

// AccumulateHistogram adds src into dst, both with a trailing escape index,
// and returns the result. dst may be reused.
//
// The result tracks the longer of the two ranges. The fold is lossy: the
// escape count of the shorter histogram lands in the result's escape even
// though some of those errors fall inside the longer tracked range, so the
// merged histogram overstates the escape and never loses an observation.
// The total is always the sum of both totals.
func AccumulateHistogram(dst, src []uint64) []uint64 {
	switch {
	case len(src) == 0:
		return dst
	case len(dst) == 0:
		return append(dst, src...)
	}

	if len(src) > len(dst) {
		escape := dst[len(dst)-1]
		dst[len(dst)-1] = 0
		dst = append(dst, make([]uint64, len(src)-len(dst))...)
		dst[len(dst)-1] = escape
	}
	last := len(dst) - 1
	for i, c := range src[:len(src)-1] {
		dst[i] += c
	}
	dst[last] += src[len(src)-1]

	return dst
}

func addCounts(dst, src []uint64) []uint64 {
	if len(src) > len(dst) {
		dst = append(dst, make([]uint64, len(src)-len(dst))...)
	}
	for i, c := range src {
		dst[i] += c
	}

	return dst
}

func sumCounts(counts []uint64) uint64 {
	var sum uint64
	for _, c := range counts {
		sum += c
	}

	return sum
}
