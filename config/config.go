// Package config implements the name-indexed configuration token
// surface: short tokens such as "xvm" (X axis velocity max), "1sa"
// (motor 1 step angle), "ja" (junction acceleration), "ct" (chordal
// tolerance), "1mt" (motor 1 idle timeout) each resolve to a typed
// get/set pair. It is grounded in core.CommandRegistry's
// name-to-handler dictionary idiom (register once, dispatch by name,
// rebuild a self-describing listing), generalized here from
// byte-framed wire commands to typed configuration values reachable
// from both the gcode layer and the binary status-report side channel.
package config

import (
	"sort"

	"github.com/pkg/errors"

	"cncfw/statcode"
)

// Kind tags a token's value representation.
type Kind int

const (
	KindUint8 Kind = iota
	KindFloatLengthUnit // a length or velocity-like float, unit-converted at the shell boundary
	KindFloatPlain      // a float with no units conversion (ratios, angles in degrees, etc.)
	KindInt32
)

// Token is one registered configuration entry.
type Token struct {
	Name string
	Kind Kind
	Get  func() float64
	Set  func(v float64) error
}

// Registry is the full set of registered configuration tokens, indexed
// by name for G-code-console-style `$xvm=1000` style access and for
// the status reporter's self-description.
type Registry struct {
	tokens map[string]*Token
	order  []string
}

// NewRegistry returns an empty configuration token registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// Register adds a token. Registering the same name twice replaces the
// previous binding (last registration wins) and keeps the name's
// original position in the listing order.
func (r *Registry) Register(name string, kind Kind, get func() float64, set func(v float64) error) {
	if _, exists := r.tokens[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tokens[name] = &Token{Name: name, Kind: kind, Get: get, Set: set}
}

// Get returns a token's current value.
func (r *Registry) Get(name string) (float64, error) {
	t, ok := r.tokens[name]
	if !ok {
		return 0, statcode.Wrapf(statcode.ParameterNotFound, "unknown configuration token %q", name)
	}
	return t.Get(), nil
}

// Set assigns a token's value.
func (r *Registry) Set(name string, v float64) error {
	t, ok := r.tokens[name]
	if !ok {
		return statcode.Wrapf(statcode.ParameterNotFound, "unknown configuration token %q", name)
	}
	if t.Set == nil {
		return statcode.Wrapf(statcode.InputValueUnsupported, "token %q is read-only", name)
	}
	return t.Set(v)
}

// Kind returns a token's value kind, e.g. so the status reporter knows
// whether to unit-convert it before framing.
func (r *Registry) Kind(name string) (Kind, error) {
	t, ok := r.tokens[name]
	if !ok {
		return 0, errors.Errorf("unknown configuration token %q", name)
	}
	return t.Kind, nil
}

// Names returns every registered token name in registration order,
// mirroring core.CommandRegistry.GetDictionary's self-description role.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedNames returns every registered token name sorted
// lexicographically, for a deterministic `$$` listing.
func (r *Registry) SortedNames() []string {
	out := r.Names()
	sort.Strings(out)
	return out
}
