package bindgen

import (
	"strings"
)

var primitives = map[string]string{
	"char":               "C.char",
	"signed char":        "C.schar",
	"unsigned char":      "C.uchar",
	"short":              "C.short",
	"unsigned short":     "C.ushort",
	"int":                "C.int",
	"unsigned int":       "C.uint",
	"long":               "C.long",
	"unsigned long":      "C.ulong",
	"long long":          "C.longlong",
	"unsigned long long": "C.ulonglong",
	"float":              "C.float",
	"double":             "C.double",
	"_Bool":              "C.bool",
	"bool":               "C.bool",
}

// Fragments of type names cgo cannot pass to or from C.
var unsupported = []string{
	"long double",
	"_Float",
	"__float128",
	"__int128",
	"_Complex",
	"complex",
	"va_list",
	"__va_list_tag",
}

// typeMap spells C types for cgo.
type typeMap struct {
	typedefs map[string]CType
	checking map[string]bool
}

func newTypeMap(h *Header) *typeMap {
	m := &typeMap{typedefs: make(map[string]CType), checking: make(map[string]bool)}
	for _, t := range h.Typedefs {
		m.typedefs[t.Name] = t.Type
	}
	return m
}

// goType returns the cgo spelling of t, or false if cgo cannot express it.
// Plain void is the empty string.
func (m *typeMap) goType(t CType) (string, bool) {
	if t.Unsupported || t.Array {
		return "", false
	}
	if t.Func {
		if t.Pointers == 0 {
			return "", false
		}
		return strings.Repeat("*", t.Pointers-1) + "*[0]byte", true
	}
	if t.Base == "void" {
		if t.Pointers == 0 {
			return "", true
		}
		return strings.Repeat("*", t.Pointers-1) + "unsafe.Pointer", true
	}
	base, ok := m.base(t.Base)
	if !ok {
		return "", false
	}
	return strings.Repeat("*", t.Pointers) + base, true
}

func (m *typeMap) base(name string) (string, bool) {
	for _, u := range unsupported {
		if strings.Contains(name, u) {
			return "", false
		}
	}
	if g, ok := primitives[name]; ok {
		return g, true
	}
	if kind, tag, ok := strings.Cut(name, " "); ok {
		switch kind {
		case "struct", "union", "enum":
			return "C." + kind + "_" + tag, true
		}
		return "", false
	}
	switch name {
	case "", "struct", "union", "enum":
		return "", false
	}
	if !m.typedefOK(name) {
		return "", false
	}
	return "C." + name, true
}

// typedefOK reports whether a value of the typedef name can cross a cgo
// call. Array typedefs cannot, since they decay in C parameter lists.
// Unknown names are trusted.
func (m *typeMap) typedefOK(name string) bool {
	t, ok := m.typedefs[name]
	if !ok {
		return true
	}
	if m.checking[name] {
		return false
	}
	m.checking[name] = true
	defer delete(m.checking, name)
	if t.Array {
		return false
	}
	_, ok = m.goType(t)
	return ok
}

// aliasOK reports whether the typedef can be named from Go at all.
func (m *typeMap) aliasOK(t Typedef) bool {
	m.checking[t.Name] = true
	defer delete(m.checking, t.Name)
	typ := t.Type
	typ.Array = false
	_, ok := m.goType(typ)
	return ok
}
