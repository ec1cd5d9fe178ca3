package bssr

import (
	"fmt"
	"slices"
	"strings"

	"github.com/advdv/bssr/internal/httppattern"
	"github.com/samber/lo"
)

// Reverser keeps track of named patterns and allows building URLs. Names of reversers that are
// mounted below a prefix can be reversed as well, their URLs carry the prefix.
type Reverser struct {
	pats   map[string]*httppattern.Pattern
	mounts []mountedReverser
}

type mountedReverser struct {
	prefix string
	rev    *Reverser
}

// NewReverser inits the reverser.
func NewReverser() *Reverser {
	return &Reverser{pats: make(map[string]*httppattern.Pattern)}
}

// Reverse reverses the named pattern into a url.
func (r *Reverser) Reverse(name string, vals ...string) (string, error) {
	if pat, ok := r.pats[name]; ok {
		res, err := httppattern.Build(pat, vals...)
		if err != nil {
			return "", fmt.Errorf("failed to build: %w", err)
		}

		return res, nil
	}

	for _, m := range r.mounts {
		if !m.rev.has(name) {
			continue
		}

		res, err := m.rev.Reverse(name, vals...)
		if err != nil {
			return "", err
		}

		return m.prefix + res, nil
	}

	return "", fmt.Errorf("no pattern named: %q, got: %v", name, r.Names()) //nolint:goerr113
}

// Names returns every name that can be reversed, including the names of mounted reversers.
func (r *Reverser) Names() []string {
	names := lo.Keys(r.pats)
	for _, m := range r.mounts {
		names = append(names, m.rev.Names()...)
	}

	slices.Sort(names)

	return names
}

// Named is a convenience method that panics if naming the pattern fails.
func (r *Reverser) Named(name, str string) string {
	str, err := r.NamedPattern(name, str)
	if err != nil {
		panic("bssr: " + err.Error())
	}

	return str
}

// NamedPattern will parse 's' as a path pattern while returning it as well.
func (r *Reverser) NamedPattern(name, str string) (string, error) {
	if r.has(name) {
		return str, fmt.Errorf("pattern with name %q already exists", name) //nolint:goerr113
	}

	pat, err := httppattern.ParsePattern(str)
	if err != nil {
		return str, fmt.Errorf("failed to parse pattern: %w", err)
	}

	r.pats[name] = pat

	return str, nil
}

// Mount makes the names of rev reversible through r, with prefix in front of the URLs it builds. Names
// must stay unique across mounted reversers.
func (r *Reverser) Mount(prefix string, rev *Reverser) error {
	if rev.mounted(r) {
		return fmt.Errorf("cannot mount reverser %q into itself", prefix) //nolint:goerr113
	}

	if dup, ok := lo.Find(rev.Names(), r.has); ok {
		return fmt.Errorf("pattern with name %q already exists", dup) //nolint:goerr113
	}

	r.mounts = append(r.mounts, mountedReverser{prefix: strings.TrimSuffix(prefix, "/"), rev: rev})

	return nil
}

func (r *Reverser) has(name string) bool {
	if _, ok := r.pats[name]; ok {
		return true
	}

	return slices.ContainsFunc(r.mounts, func(m mountedReverser) bool { return m.rev.has(name) })
}

// mounted reports whether other is r or is mounted somewhere below it.
func (r *Reverser) mounted(other *Reverser) bool {
	return r == other || slices.ContainsFunc(r.mounts, func(m mountedReverser) bool { return m.rev.mounted(other) })
}
