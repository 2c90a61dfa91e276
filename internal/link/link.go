// Package link describes what the host build must link against.
package link

import (
	"fmt"
	"io"
	"strings"
)

// Directive names one library and, optionally, the directory it is found in.
// An empty Search means the system library path.
type Directive struct {
	Lib    string
	Search string
}

// Set is the ordered list of directives.
type Set []Directive

// Spec is the full link specification handed to the host build.
type Spec struct {
	Directives Set
	// RerunIfChanged lists inputs whose change invalidates the generated
	// artifacts.
	RerunIfChanged []string
}

// Default returns the directives for libs, where libs[0] is the aggregated
// library living in outDir and the rest are system libraries.
func Default(outDir string, libs []string, rerun ...string) Spec {
	set := make(Set, 0, len(libs))
	for i, lib := range libs {
		d := Directive{Lib: lib}
		if i == 0 {
			d.Search = outDir
		}
		set = append(set, d)
	}
	return Spec{Directives: set, RerunIfChanged: rerun}
}

// SearchPaths returns the distinct non-empty search paths in order.
func (s Spec) SearchPaths() []string {
	var paths []string
	seen := make(map[string]bool)
	for _, d := range s.Directives {
		if d.Search == "" || seen[d.Search] {
			continue
		}
		seen[d.Search] = true
		paths = append(paths, d.Search)
	}
	return paths
}

// LDFlags renders the spec as linker flags: search paths first, then
// libraries in order.
func (s Spec) LDFlags() []string {
	var flags []string
	for _, p := range s.SearchPaths() {
		flags = append(flags, "-L"+p)
	}
	for _, d := range s.Directives {
		flags = append(flags, "-l"+d.Lib)
	}
	return flags
}

// CgoLDFlags renders a #cgo LDFLAGS directive line.
func (s Spec) CgoLDFlags() string {
	return "#cgo LDFLAGS: " + strings.Join(s.LDFlags(), " ")
}

// WriteText writes one key=value line per directive:
//
//	link-search=<dir>
//	link-lib=<name>
//	rerun-if-changed=<file>
func (s Spec) WriteText(w io.Writer) error {
	for _, p := range s.SearchPaths() {
		if _, err := fmt.Fprintf(w, "link-search=%s\n", p); err != nil {
			return err
		}
	}
	for _, d := range s.Directives {
		if _, err := fmt.Fprintf(w, "link-lib=%s\n", d.Lib); err != nil {
			return err
		}
	}
	for _, f := range s.RerunIfChanged {
		if _, err := fmt.Fprintf(w, "rerun-if-changed=%s\n", f); err != nil {
			return err
		}
	}
	return nil
}
