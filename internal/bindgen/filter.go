package bindgen

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"go.uber.org/multierr"
)

// Rules are the raw declaration filter settings.
//
// IgnoreMacros and OpaqueTypes hold exact names. BlockItems, BlockTypes and
// BlockFunctions accept exact names or glob patterns such as "IPPORT_*".
// BlockItems apply to every kind of declaration.
type Rules struct {
	IgnoreMacros   []string
	BlockItems     []string
	BlockTypes     []string
	BlockFunctions []string
	OpaqueTypes    []string
}

type matcher struct {
	exact map[string]bool
	globs []glob.Glob
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func newMatcher(names []string) (*matcher, error) {
	m := &matcher{exact: make(map[string]bool)}
	var err error
	for _, name := range names {
		if !isPattern(name) {
			m.exact[name] = true
			continue
		}
		g, cerr := glob.Compile(name)
		if cerr != nil {
			err = multierr.Append(err, fmt.Errorf("bad pattern %q: %w", name, cerr))
			continue
		}
		m.globs = append(m.globs, g)
	}
	return m, err
}

func (m *matcher) match(name string) bool {
	if m == nil {
		return false
	}
	if m.exact[name] {
		return true
	}
	for _, g := range m.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Filter decides which parsed declarations reach the output. A nil *Filter
// keeps everything.
type Filter struct {
	ignore *matcher
	items  *matcher
	types  *matcher
	funcs  *matcher
	opaque *matcher
}

// NewFilter compiles r. A name may belong to only one of the ignored
// macros, the blocklist and the opaque types; every violation is reported.
func NewFilter(r Rules) (*Filter, error) {
	var err error
	compile := func(names []string) *matcher {
		m, merr := newMatcher(names)
		err = multierr.Append(err, merr)
		return m
	}
	f := &Filter{
		ignore: compile(r.IgnoreMacros),
		items:  compile(r.BlockItems),
		types:  compile(r.BlockTypes),
		funcs:  compile(r.BlockFunctions),
		opaque: compile(r.OpaqueTypes),
	}
	for _, name := range r.IgnoreMacros {
		if isPattern(name) {
			err = multierr.Append(err, fmt.Errorf("ignored macro %q must be an exact name", name))
		}
	}
	for _, name := range r.OpaqueTypes {
		if isPattern(name) {
			err = multierr.Append(err, fmt.Errorf("opaque type %q must be an exact name", name))
		}
	}
	if err != nil {
		return nil, err
	}

	blocked := func(name string) bool {
		return f.items.match(name) || f.types.match(name) || f.funcs.match(name)
	}
	for _, name := range r.IgnoreMacros {
		if blocked(name) {
			err = multierr.Append(err, fmt.Errorf("%q is both an ignored macro and blocklisted", name))
		}
		if f.opaque.match(name) {
			err = multierr.Append(err, fmt.Errorf("%q is both an ignored macro and an opaque type", name))
		}
	}
	for _, name := range r.OpaqueTypes {
		if blocked(name) {
			err = multierr.Append(err, fmt.Errorf("%q is both an opaque type and blocklisted", name))
		}
	}
	for _, list := range [][]string{r.BlockItems, r.BlockTypes, r.BlockFunctions} {
		for _, name := range list {
			if isPattern(name) {
				continue
			}
			if f.ignore.match(name) || f.opaque.match(name) {
				err = multierr.Append(err, fmt.Errorf("%q is blocklisted and listed in another rule set", name))
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// IgnoreMacro reports whether the macro is dropped while parsing.
func (f *Filter) IgnoreMacro(name string) bool {
	return f != nil && f.ignore.match(name)
}

// BlockItem reports whether any declaration with this name is omitted.
func (f *Filter) BlockItem(name string) bool {
	return f != nil && f.items.match(name)
}

// BlockType reports whether the type is omitted from the output.
func (f *Filter) BlockType(name string) bool {
	return f != nil && (f.types.match(name) || f.items.match(name))
}

// BlockFunction reports whether the function is omitted from the output.
func (f *Filter) BlockFunction(name string) bool {
	return f != nil && (f.funcs.match(name) || f.items.match(name))
}

// Opaque reports whether the type is emitted as a fixed-size placeholder.
func (f *Filter) Opaque(name string) bool {
	return f != nil && f.opaque.match(name)
}
