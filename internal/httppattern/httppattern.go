// Package httppattern parses the route patterns understood by net/http's ServeMux
// and builds concrete paths from them.
package httppattern

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

type segment struct {
	s     string // literal text or wildcard name
	wild  bool
	multi bool // "{name...}" or a trailing slash
	end   bool // "{$}"
}

// Pattern is a parsed route pattern.
type Pattern struct {
	str      string
	method   string
	host     string
	segments []segment
}

// String returns the pattern as it was parsed.
func (p *Pattern) String() string { return p.str }

// Method returns the method part of the pattern, empty when it matches all methods.
func (p *Pattern) Method() string { return p.method }

// NumWildcards returns how many values [Build] expects.
func (p *Pattern) NumWildcards() (n int) {
	for _, seg := range p.segments {
		if seg.wild {
			n++
		}
	}

	return n
}

// ParsePattern parses a pattern of the form "[METHOD ][HOST]/[PATH]".
func ParsePattern(s string) (*Pattern, error) {
	if s == "" {
		return nil, errors.New("empty pattern")
	}

	p := &Pattern{str: s}
	rest := s

	if idx := strings.IndexAny(rest, " \t"); idx >= 0 {
		p.method, rest = rest[:idx], strings.TrimLeft(rest[idx+1:], " \t")
	}

	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return nil, errors.Newf("host/path missing /: %q", s)
	}

	p.host, rest = rest[:idx], rest[idx+1:]

	seen := map[string]bool{}
	parts := strings.Split(rest, "/")

	for i, part := range parts {
		last := i == len(parts)-1

		switch {
		case part == "" && last:
			p.segments = append(p.segments, segment{multi: true})
		case strings.HasPrefix(part, "{"):
			if !strings.HasSuffix(part, "}") {
				return nil, errors.Newf("bad wildcard segment %q (must end with '}')", part)
			}

			name := part[1 : len(part)-1]
			if name == "$" {
				if !last {
					return nil, errors.New("{$} not at end")
				}

				p.segments = append(p.segments, segment{end: true})

				continue
			}

			seg := segment{wild: true}
			if n, ok := strings.CutSuffix(name, "..."); ok {
				if !last {
					return nil, errors.New("{...} wildcard not at end")
				}

				seg.multi, name = true, n
			}

			if !isIdent(name) {
				return nil, errors.Newf("bad wildcard name %q", name)
			}

			if seen[name] {
				return nil, errors.Newf("duplicate wildcard name %q", name)
			}

			seen[name] = true
			seg.s = name
			p.segments = append(p.segments, seg)
		case strings.ContainsAny(part, "{}"):
			return nil, errors.Newf("bad wildcard segment %q (must be the entire segment)", part)
		default:
			p.segments = append(p.segments, segment{s: part})
		}
	}

	return p, nil
}

// Build substitutes vals, in order, for the wildcards of p and returns the resulting path.
func Build(p *Pattern, vals ...string) (string, error) {
	if need := p.NumWildcards(); len(vals) < need {
		return "", fmt.Errorf("not enough values: pattern %q needs %d, got %d", p.str, need, len(vals)) //nolint:goerr113
	} else if len(vals) > need {
		return "", fmt.Errorf("too many values: pattern %q needs %d, got %d", p.str, need, len(vals)) //nolint:goerr113
	}

	var sb strings.Builder

	for _, seg := range p.segments {
		sb.WriteByte('/')

		switch {
		case seg.end:
		case seg.wild && seg.multi:
			parts := strings.Split(vals[0], "/")
			for i := range parts {
				parts[i] = url.PathEscape(parts[i])
			}

			sb.WriteString(strings.Join(parts, "/"))
			vals = vals[1:]
		case seg.wild:
			sb.WriteString(url.PathEscape(vals[0]))
			vals = vals[1:]
		default:
			sb.WriteString(seg.s)
		}
	}

	return sb.String(), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if c != '_' && !('a' <= c && c <= 'z') && !('A' <= c && c <= 'Z') && (i == 0 || !('0' <= c && c <= '9')) {
			return false
		}
	}

	return true
}
