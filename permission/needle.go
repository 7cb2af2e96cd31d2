package permission

import (
	"fmt"
	"sort"
)

// Set is a set of role (or group, or type) indices.
type Set map[string]struct{}

// NewSet returns a Set holding indices.
func NewSet(indices ...string) Set {
	s := make(Set, len(indices))
	for _, idx := range indices {
		s[idx] = struct{}{}
	}
	return s
}

func (s Set) Has(index string) bool {
	_, ok := s[index]
	return ok
}

func (s Set) Add(index string) {
	s[index] = struct{}{}
}

// Sorted returns the indices in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for idx := range s {
		out = append(out, idx)
	}
	sort.Strings(out)
	return out
}

// Needle is either a scalar role index or a group of nested needles.
//
// A group flips the evaluation mode of its parent: members of a group
// evaluated under AND are combined with OR, and vice versa.
type Needle struct {
	scalar  string
	members []Needle
	group   bool
}

// Scalar returns a needle matching a single index.
func Scalar(index string) Needle {
	return Needle{scalar: index}
}

// Group returns a nested needle list.
func Group(members ...Needle) Needle {
	return Needle{members: members, group: true}
}

// Roles converts plain indices into scalar needles.
func Roles(indices ...string) []Needle {
	out := make([]Needle, len(indices))
	for i, idx := range indices {
		out[i] = Scalar(idx)
	}
	return out
}

func (n Needle) IsGroup() bool {
	return n.group
}

func (n Needle) Index() string {
	return n.scalar
}

func (n Needle) Members() []Needle {
	return n.members
}

func (n Needle) String() string {
	if !n.group {
		return fmt.Sprintf("%q", n.scalar)
	}
	s := "["
	for i, m := range n.members {
		if i > 0 {
			s += ","
		}
		s += m.String()
	}
	return s + "]"
}

// Has evaluates needles against haystack. With or=false every needle must
// match; with or=true at least one must. Nested groups flip the mode.
// An empty list satisfies AND and fails OR.
func Has(needles []Needle, haystack Set, or bool) bool {
	if len(needles) == 0 {
		return !or
	}
	for _, n := range needles {
		var ok bool
		if n.group {
			ok = Has(n.members, haystack, !or)
		} else {
			ok = haystack.Has(n.scalar)
		}
		if or && ok {
			return true
		}
		if !or && !ok {
			return false
		}
	}
	return !or
}

// ParseNeedles converts a decoded JSON/YAML value into needles. Strings become
// scalars and nested lists become groups.
func ParseNeedles(value any) ([]Needle, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []Needle{Scalar(v)}, nil
	case []string:
		return Roles(v...), nil
	case []any:
		out := make([]Needle, 0, len(v))
		for _, item := range v {
			n, err := parseNeedle(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported needle type %T", value)
	}
}

func parseNeedle(value any) (Needle, error) {
	switch v := value.(type) {
	case string:
		return Scalar(v), nil
	case []string, []any:
		members, err := ParseNeedles(v)
		if err != nil {
			return Needle{}, err
		}
		return Group(members...), nil
	default:
		return Needle{}, fmt.Errorf("unsupported needle type %T", value)
	}
}
