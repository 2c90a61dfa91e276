package bindgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/qiniu/x/log"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// ParseError reports C the grammar could not handle.
type ParseError struct {
	File string
	Line int
	Near string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: syntax error near %q", e.File, e.Line, e.Near)
}

// Parse builds the declaration model of src. Macros ignored by f are
// dropped here; the rest of the filter applies when emitting.
func Parse(ctx context.Context, src *Source, f *Filter) (*Header, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src.Text)
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	p := &walker{src: src, filter: f, h: new(Header), index: make(map[string]int)}
	if err := p.check(root); err != nil {
		return nil, err
	}
	p.macros()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		p.topLevel(root.NamedChild(i))
	}
	return p.h, nil
}

type walker struct {
	src    *Source
	filter *Filter
	h      *Header
	index  map[string]int // "kind name" -> position in its Header list
}

func (p *walker) text(n *sitter.Node) string {
	return n.Content(p.src.Text)
}

func (p *walker) origin(n *sitter.Node) string {
	return p.src.Origin(int(n.StartPoint().Row))
}

func internal(origin string) bool {
	return origin == originBuiltin || origin == originCommandLine
}

// check reports the first syntax error outside function bodies. Bodies
// are never bound, so recovery inside them is harmless.
func (p *walker) check(root *sitter.Node) error {
	if !root.HasError() {
		return nil
	}
	n := findError(root)
	if n == nil {
		return nil
	}
	row := int(n.StartPoint().Row)
	near := strings.TrimSpace(p.text(n))
	if i := strings.IndexByte(near, '\n'); i >= 0 {
		near = near[:i]
	}
	if len(near) > 40 {
		near = near[:40]
	}
	return &ParseError{File: p.src.Origin(row), Line: p.src.Line(row), Near: near}
}

func findError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() || n.Type() == "compound_statement" {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if e := findError(n.Child(i)); e != nil {
			return e
		}
	}
	return nil
}

func (p *walker) macros() {
	pos := make(map[string]int)
	var list []Macro
	for _, d := range p.src.directives {
		if internal(d.origin) {
			continue
		}
		if d.undef {
			if i, ok := pos[d.name]; ok {
				list[i].Name = ""
				delete(pos, d.name)
			}
			continue
		}
		if d.funcLike {
			continue
		}
		if p.filter.IgnoreMacro(d.name) {
			log.Debugf("bindgen: ignore macro %s", d.name)
			continue
		}
		m := Macro{Name: d.name, Value: d.value, Origin: d.origin}
		if i, ok := pos[d.name]; ok {
			list[i] = m
			continue
		}
		pos[d.name] = len(list)
		list = append(list, m)
	}
	for _, m := range list {
		if m.Name != "" {
			p.h.Macros = append(p.h.Macros, m)
		}
	}
}

func (p *walker) topLevel(n *sitter.Node) {
	if n == nil || internal(p.origin(n)) {
		return
	}
	switch n.Type() {
	case "declaration", "function_definition":
		base := p.typeOf(n)
		for _, d := range fieldChildren(n, "declarator") {
			// Variables are not bound.
			if _, _, fn := p.declarator(base, d); fn != nil {
				fn.Origin = p.origin(n)
				p.addFunction(*fn)
			}
		}
	case "type_definition":
		base := p.typeOf(n)
		for _, d := range fieldChildren(n, "declarator") {
			name, t, fn := p.declarator(base, d)
			if fn != nil {
				name, t = fn.Name, CType{Func: true}
			}
			if name != "" {
				p.addTypedef(Typedef{Name: name, Type: t, Origin: p.origin(n)})
			}
		}
	case "struct_specifier", "union_specifier", "enum_specifier":
		p.specifier(n)
	case "linkage_specification":
		body := n.ChildByFieldName("body")
		if body == nil {
			return
		}
		if body.Type() != "declaration_list" {
			p.topLevel(body)
			return
		}
		for i := 0; i < int(body.NamedChildCount()); i++ {
			p.topLevel(body.NamedChild(i))
		}
	}
}

func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

// typeOf returns the base type of a declaration-like node.
func (p *walker) typeOf(n *sitter.Node) CType {
	var t CType
	if tn := n.ChildByFieldName("type"); tn != nil {
		t.Base = p.baseType(tn)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "type_qualifier" && p.text(child) == "const" {
			t.Const = true
		}
	}
	return t
}

func (p *walker) baseType(n *sitter.Node) string {
	switch n.Type() {
	case "primitive_type", "type_identifier":
		return p.text(n)
	case "sized_type_specifier":
		return canonicalInt(strings.Fields(p.text(n)))
	case "struct_specifier", "union_specifier", "enum_specifier":
		p.specifier(n)
		kind := strings.TrimSuffix(n.Type(), "_specifier")
		if name := n.ChildByFieldName("name"); name != nil {
			return kind + " " + p.text(name)
		}
		return kind
	}
	return strings.Join(strings.Fields(p.text(n)), " ")
}

// canonicalInt spells an integer or floating type the way the type map
// expects it, whatever the order of its specifiers.
func canonicalInt(words []string) string {
	var signed, unsigned, short bool
	var longs int
	base := ""
	for _, w := range words {
		switch w {
		case "signed":
			signed = true
		case "unsigned":
			unsigned = true
		case "short":
			short = true
		case "long":
			longs++
		case "int":
		default:
			if base != "" {
				return strings.Join(words, " ")
			}
			base = w
		}
	}
	switch base {
	case "":
	case "char":
		switch {
		case unsigned:
			return "unsigned char"
		case signed:
			return "signed char"
		}
		return "char"
	case "double":
		if longs > 0 {
			return "long double"
		}
		return "double"
	default:
		return strings.Join(words, " ")
	}
	s := "int"
	switch {
	case short:
		s = "short"
	case longs == 1:
		s = "long"
	case longs > 1:
		s = "long long"
	}
	if unsigned {
		return "unsigned " + s
	}
	return s
}

func isName(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "type_identifier", "field_identifier", "primitive_type":
		return true
	}
	return false
}

func unwrap(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "parenthesized_declarator", "attributed_declarator":
			n = n.NamedChild(0)
		default:
			return n
		}
	}
	return nil
}

// declarator applies the declarator d to the base type t. When d declares
// a function, fn describes it and t is its result type.
func (p *walker) declarator(t CType, d *sitter.Node) (name string, typ CType, fn *Function) {
	for d != nil {
		switch d.Type() {
		case "identifier", "type_identifier", "field_identifier", "primitive_type":
			return p.text(d), t, nil
		case "init_declarator":
			d = d.ChildByFieldName("declarator")
		case "parenthesized_declarator", "attributed_declarator":
			d = d.NamedChild(0)
		case "pointer_declarator", "abstract_pointer_declarator":
			t.Pointers++
			d = d.ChildByFieldName("declarator")
		case "array_declarator", "abstract_array_declarator":
			if t.Array {
				t.Unsupported = true
			}
			t.Array = true
			d = d.ChildByFieldName("declarator")
		case "function_declarator", "abstract_function_declarator":
			params, variadic := p.params(d.ChildByFieldName("parameters"))
			inner := unwrap(d.ChildByFieldName("declarator"))
			if inner != nil && isName(inner) {
				return p.text(inner), t, &Function{
					Name:     p.text(inner),
					Result:   t,
					Params:   params,
					Variadic: variadic,
				}
			}
			t = CType{Func: true}
			d = inner
		default:
			t.Unsupported = true
			return "", t, nil
		}
	}
	return "", t, nil
}

func (p *walker) params(list *sitter.Node) (params []Param, variadic bool) {
	if list == nil {
		return nil, false
	}
	for i := 0; i < int(list.ChildCount()); i++ {
		child := list.Child(i)
		switch child.Type() {
		case "...", "variadic_parameter":
			variadic = true
		case "parameter_declaration":
			name, t, fn := p.declarator(p.typeOf(child), child.ChildByFieldName("declarator"))
			if fn != nil {
				name, t = fn.Name, CType{Func: true}
			}
			params = append(params, Param{Name: name, Type: t})
		}
	}
	if len(params) == 1 && params[0].Name == "" && params[0].Type.IsVoid() {
		params = nil
	}
	return params, variadic
}

func (p *walker) specifier(n *sitter.Node) {
	kind := strings.TrimSuffix(n.Type(), "_specifier")
	name := ""
	if nn := n.ChildByFieldName("name"); nn != nil {
		name = p.text(nn)
	}
	body := n.ChildByFieldName("body")
	origin := p.origin(n)

	if kind == "enum" {
		if body == nil && name == "" {
			return
		}
		e := Enum{Name: name, Origin: origin}
		if body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				en := body.NamedChild(i)
				if en.Type() != "enumerator" {
					continue
				}
				c := Enumerator{Name: p.text(en.ChildByFieldName("name"))}
				if v := en.ChildByFieldName("value"); v != nil {
					c.Value = p.text(v)
				}
				e.Constants = append(e.Constants, c)
			}
		}
		p.addEnum(e)
		return
	}

	if name != "" {
		p.addRecord(Record{Kind: kind, Name: name, Complete: body != nil, Origin: origin})
	}
	if body != nil {
		p.nested(body)
	}
}

// nested registers the records and enums declared inside a record body.
func (p *walker) nested(body *sitter.Node) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		field := body.NamedChild(i)
		if field.Type() != "field_declaration" {
			continue
		}
		if tn := field.ChildByFieldName("type"); tn != nil {
			switch tn.Type() {
			case "struct_specifier", "union_specifier", "enum_specifier":
				p.specifier(tn)
			}
		}
	}
}

func (p *walker) addRecord(r Record) {
	key := r.Kind + " " + r.Name
	if i, ok := p.index[key]; ok {
		if r.Complete {
			p.h.Records[i].Complete = true
		}
		return
	}
	p.index[key] = len(p.h.Records)
	p.h.Records = append(p.h.Records, r)
}

func (p *walker) addEnum(e Enum) {
	if e.Name != "" {
		key := "enum " + e.Name
		if i, ok := p.index[key]; ok {
			if len(p.h.Enums[i].Constants) == 0 {
				p.h.Enums[i].Constants = e.Constants
			}
			return
		}
		p.index[key] = len(p.h.Enums)
	}
	p.h.Enums = append(p.h.Enums, e)
}

func (p *walker) addTypedef(t Typedef) {
	key := "typedef " + t.Name
	if _, ok := p.index[key]; ok {
		return
	}
	p.index[key] = len(p.h.Typedefs)
	p.h.Typedefs = append(p.h.Typedefs, t)
}

func (p *walker) addFunction(fn Function) {
	key := "func " + fn.Name
	if _, ok := p.index[key]; ok {
		return
	}
	p.index[key] = len(p.h.Functions)
	p.h.Functions = append(p.h.Functions, fn)
}
