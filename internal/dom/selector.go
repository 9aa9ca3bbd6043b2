package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Selector is a parsed, comma-separated list of compound selectors. It
// supports tag names, .class, [attr], and [attr=value] (value optionally
// quoted). Combinators are not supported.
type Selector []compound

type compound struct {
	tag     string
	atom    atom.Atom
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	name     string
	value    string
	hasValue bool
}

// ParseSelector parses s.
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("dom: empty selector in %q", s)
		}
		c, err := parseCompound(part)
		if err != nil {
			return nil, fmt.Errorf("dom: selector %q: %w", part, err)
		}
		sel = append(sel, c)
	}
	return sel, nil
}

// MustParseSelector is ParseSelector that panics on error. For constants.
func MustParseSelector(s string) Selector {
	sel, err := ParseSelector(s)
	if err != nil {
		panic(err)
	}
	return sel
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	readIdent := func() string {
		start := i
		for i < len(s) && isIdentByte(s[i]) {
			i++
		}
		return s[start:i]
	}

	if i < len(s) && isIdentByte(s[i]) {
		c.tag = strings.ToLower(readIdent())
		c.atom = atom.Lookup([]byte(c.tag))
	}
	for i < len(s) {
		switch s[i] {
		case '.':
			i++
			name := readIdent()
			if name == "" {
				return c, fmt.Errorf("missing class name at %d", i)
			}
			c.classes = append(c.classes, name)
		case '[':
			i++
			name := readIdent()
			if name == "" {
				return c, fmt.Errorf("missing attribute name at %d", i)
			}
			m := attrMatch{name: name}
			if i < len(s) && s[i] == '=' {
				i++
				m.hasValue = true
				if i < len(s) && (s[i] == '"' || s[i] == '\'') {
					q := s[i]
					end := strings.IndexByte(s[i+1:], q)
					if end < 0 {
						return c, fmt.Errorf("unterminated quote at %d", i)
					}
					m.value = s[i+1 : i+1+end]
					i += end + 2
				} else {
					end := strings.IndexByte(s[i:], ']')
					if end < 0 {
						return c, fmt.Errorf("unterminated attribute at %d", i)
					}
					m.value = strings.TrimSpace(s[i : i+end])
					i += end
				}
			}
			if i >= len(s) || s[i] != ']' {
				return c, fmt.Errorf("expected ] at %d", i)
			}
			i++
			c.attrs = append(c.attrs, m)
		default:
			return c, fmt.Errorf("unexpected %q at %d", s[i], i)
		}
	}
	return c, nil
}

func isIdentByte(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// Match reports whether n matches any alternative of the selector.
func (sel Selector) Match(n *Node) bool {
	if n == nil {
		return false
	}
	for _, c := range sel {
		if c.match(n) {
			return true
		}
	}
	return false
}

func (c compound) match(n *Node) bool {
	h := n.h
	if h.Type != html.ElementNode {
		return false
	}
	switch {
	case c.tag == "":
	case c.atom != 0:
		if h.DataAtom != c.atom {
			return false
		}
	case h.Data != c.tag:
		return false
	}
	for _, class := range c.classes {
		if !n.HasClass(class) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := n.Attr(a.name)
		if !ok || (a.hasValue && v != a.value) {
			return false
		}
	}
	return true
}
