package bindgen

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/log"
	"golang.org/x/tools/imports"
)

// EmitOptions control the generated file.
type EmitOptions struct {
	Package string
	Source  string   // shown in the generated-code header
	Include string   // header named in the cgo preamble
	CFlags  []string // e.g. -I<dir>
	LDFlags []string

	// WrapDirs limits function wrappers to declarations from files below
	// these directories. Empty means every function is wrapped.
	WrapDirs []string
}

type emitter struct {
	h     *Header
	f     *Filter
	opts  EmitOptions
	types *typeMap
	names *namer

	// opaque maps the C spelling of an opaque type to its placeholder.
	opaque map[string]string

	body   bytes.Buffer
	unsafe bool
}

// Emit renders h as a cgo source file. Declarations the filter blocks are
// left out, opaque types become placeholders of the right size, and
// functions become thin Go wrappers.
func Emit(h *Header, f *Filter, opts EmitOptions) ([]byte, error) {
	e := &emitter{
		h:      h,
		f:      f,
		opts:   opts,
		types:  newTypeMap(h),
		names:  newNamer(),
		opaque: make(map[string]string),
	}
	e.constants()
	e.typeDecls()
	e.functions()

	var out bytes.Buffer
	src := opts.Source
	if src == "" {
		src = filepath.Base(opts.Include)
	}
	fmt.Fprintf(&out, "// Code generated by spdkgen from %s. DO NOT EDIT.\n\n", src)
	fmt.Fprintf(&out, "package %s\n\n", opts.Package)
	out.WriteString("/*\n")
	if len(opts.CFlags) > 0 {
		fmt.Fprintf(&out, "#cgo CFLAGS: %s\n", strings.Join(opts.CFlags, " "))
	}
	if len(opts.LDFlags) > 0 {
		fmt.Fprintf(&out, "#cgo LDFLAGS: %s\n", strings.Join(opts.LDFlags, " "))
	}
	out.WriteString("#include <stdbool.h>\n")
	fmt.Fprintf(&out, "#include %q\n", opts.Include)
	out.WriteString("*/\nimport \"C\"\n\n")
	if e.unsafe {
		out.WriteString("import \"unsafe\"\n\n")
	}
	out.Write(e.body.Bytes())

	formatted, err := imports.Process(opts.Package+".go", out.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("format bindings: %w", err)
	}
	return formatted, nil
}

func (e *emitter) block(keyword string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(&e.body, "%s (\n", keyword)
	for _, l := range lines {
		fmt.Fprintf(&e.body, "\t%s\n", l)
	}
	e.body.WriteString(")\n\n")
}

func (e *emitter) constants() {
	var lits []string
	for _, m := range e.h.Macros {
		if reserved(m.Name) || e.f.BlockItem(m.Name) {
			continue
		}
		v, ok := goLiteral(m.Value)
		if !ok {
			log.Debugf("bindgen: skip macro %s: not a literal: %s", m.Name, m.Value)
			continue
		}
		name := constName(m.Name)
		if !e.names.claim(name) {
			log.Debugf("bindgen: constant %s already defined", name)
			continue
		}
		lits = append(lits, fmt.Sprintf("%s = %s", name, v))
	}
	e.block("const", lits)

	var enums []string
	for _, en := range e.h.Enums {
		if en.Name != "" && e.f.BlockType(en.Name) {
			continue
		}
		for _, c := range en.Constants {
			if reserved(c.Name) || e.f.BlockItem(c.Name) {
				continue
			}
			name := constName(c.Name)
			if !e.names.claim(name) {
				log.Debugf("bindgen: constant %s already defined", name)
				continue
			}
			enums = append(enums, fmt.Sprintf("%s = C.%s", name, c.Name))
		}
	}
	e.block("const", enums)
}

func (e *emitter) typeDecls() {
	var aliases []string
	var opaque []string

	for _, r := range e.h.Records {
		if reserved(r.Name) || e.f.BlockType(r.Name) {
			continue
		}
		cname := r.Kind + "_" + r.Name
		name := e.names.unique(goName(r.Name), goName(r.Kind))
		if e.f.Opaque(r.Name) {
			e.opaque[r.Kind+" "+r.Name] = name
			opaque = append(opaque, placeholder(name, cname, r.Complete))
			continue
		}
		aliases = append(aliases, fmt.Sprintf("%s = C.%s", name, cname))
	}
	for _, en := range e.h.Enums {
		if en.Name == "" || reserved(en.Name) || e.f.BlockType(en.Name) {
			continue
		}
		name := e.names.unique(goName(en.Name), "Enum")
		aliases = append(aliases, fmt.Sprintf("%s = C.enum_%s", name, en.Name))
	}
	for _, td := range e.h.Typedefs {
		if reserved(td.Name) || e.f.BlockType(td.Name) || e.sameAsTag(td) {
			continue
		}
		if !e.types.aliasOK(td) {
			log.Debugf("bindgen: skip typedef %s (%s)", td.Name, td.Type)
			continue
		}
		name := e.names.unique(goName(td.Name), "T")
		if e.f.Opaque(td.Name) {
			e.opaque[td.Name] = name
			opaque = append(opaque, placeholder(name, td.Name, true))
			continue
		}
		aliases = append(aliases, fmt.Sprintf("%s = C.%s", name, td.Name))
	}

	e.block("type", aliases)
	for _, o := range opaque {
		e.body.WriteString(o)
	}
}

// sameAsTag reports `typedef struct x x;`, which adds no new Go name.
func (e *emitter) sameAsTag(td Typedef) bool {
	t := td.Type
	if t.Pointers != 0 || t.Func || t.Array {
		return false
	}
	for _, kind := range []string{"struct ", "union ", "enum "} {
		if t.Base == kind+td.Name {
			return true
		}
	}
	return false
}

func placeholder(name, cname string, complete bool) string {
	size := "C.sizeof_" + cname
	if !complete {
		size = "0"
	}
	return fmt.Sprintf("type %s struct {\n\t_ [%s]byte\n}\n\n", name, size)
}

func (e *emitter) wrapped(origin string) bool {
	if len(e.opts.WrapDirs) == 0 {
		return true
	}
	origin = filepath.Clean(origin)
	for _, dir := range e.opts.WrapDirs {
		dir = filepath.Clean(dir)
		if origin == dir || strings.HasPrefix(origin, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (e *emitter) functions() {
	for _, fn := range e.h.Functions {
		if reserved(fn.Name) || e.f.BlockFunction(fn.Name) || !e.wrapped(fn.Origin) {
			continue
		}
		if fn.Variadic {
			log.Debugf("bindgen: skip variadic function %s", fn.Name)
			continue
		}
		if !e.wrapper(fn) {
			log.Debugf("bindgen: skip function %s: unsupported types", fn.Name)
		}
	}
}

// spell returns the Go type of t in a wrapper signature and the cgo type
// the C function takes. They differ for opaque types, which are exposed as
// their placeholders.
func (e *emitter) spell(t CType) (goTyp, cgoTyp string, ok bool) {
	cgoTyp, ok = e.types.goType(t)
	if !ok {
		return "", "", false
	}
	if name, found := e.opaque[t.Base]; found && !t.Func {
		return strings.Repeat("*", t.Pointers) + name, cgoTyp, true
	}
	return cgoTyp, cgoTyp, true
}

// convert reinterprets expr as type to. Pointers convert directly; values
// go through their address.
func convert(expr, to string, pointer bool) string {
	if pointer {
		return fmt.Sprintf("(%s)(unsafe.Pointer(%s))", to, expr)
	}
	return fmt.Sprintf("*(*%s)(unsafe.Pointer(&%s))", to, expr)
}

func (e *emitter) wrapper(fn Function) bool {
	result, cresult, ok := e.spell(fn.Result)
	if !ok {
		return false
	}
	params := make([]string, len(fn.Params))
	args := make([]string, len(fn.Params))
	seen := make(map[string]bool)
	for i, p := range fn.Params {
		t := p.Type.Decay()
		typ, ctyp, ok := e.spell(t)
		if !ok || typ == "" {
			return false
		}
		name := paramName(p.Name, i)
		for seen[name] {
			name += "_"
		}
		seen[name] = true
		params[i] = name + " " + typ
		args[i] = name
		if typ != ctyp {
			args[i] = convert(name, ctyp, t.Pointers > 0)
			e.unsafe = true
		}
	}
	if strings.Contains(result, "unsafe.") || strings.Contains(strings.Join(params, ","), "unsafe.") {
		e.unsafe = true
	}

	name := e.names.unique(goName(fn.Name), "Func")
	fmt.Fprintf(&e.body, "func %s(%s)", name, strings.Join(params, ", "))
	if result != "" {
		fmt.Fprintf(&e.body, " %s", result)
	}
	call := fmt.Sprintf("C.%s(%s)", fn.Name, strings.Join(args, ", "))
	switch {
	case result == "":
	case result == cresult:
		call = "return " + call
	case fn.Result.Pointers > 0:
		call = "return " + convert(call, result, true)
		e.unsafe = true
	default:
		ret := "ret"
		for seen[ret] {
			ret += "_"
		}
		call = fmt.Sprintf("%s := %s\n\treturn %s", ret, call, convert(ret, result, false))
		e.unsafe = true
	}
	fmt.Fprintf(&e.body, " {\n\t%s\n}\n\n", call)
	return true
}
