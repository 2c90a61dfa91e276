package bindgen

import (
	"strings"
)

// Header is the declaration model of a preprocessed umbrella header.
// Declarations keep their source order.
type Header struct {
	Macros    []Macro
	Records   []Record
	Enums     []Enum
	Typedefs  []Typedef
	Functions []Function
}

// Macro is an object-like macro.
type Macro struct {
	Name   string
	Value  string // replacement text
	Origin string
}

// Record is a struct or union.
type Record struct {
	Kind     string // "struct" or "union"
	Name     string
	Complete bool // a body was seen
	Origin   string
}

type Enum struct {
	Name      string // empty for anonymous enums
	Constants []Enumerator
	Origin    string
}

type Enumerator struct {
	Name  string
	Value string // explicit initializer, if any
}

type Typedef struct {
	Name   string
	Type   CType
	Origin string
}

type Function struct {
	Name     string
	Result   CType
	Params   []Param
	Variadic bool
	Origin   string
}

type Param struct {
	Name string // may be empty
	Type CType
}

// CType is a C type reduced to what a cgo wrapper needs: the base type
// spelling and the levels of indirection on top of it.
type CType struct {
	Base     string // "int", "unsigned long", "struct spdk_bdev", "size_t", ...
	Pointers int
	Const    bool // the base type is const qualified
	Array    bool // declared with [] (decays to a pointer in parameters)
	Func     bool // function type; with Pointers > 0 a function pointer

	// Unsupported marks declarator shapes that have no cgo spelling, such
	// as multi-dimensional arrays.
	Unsupported bool
}

func (t CType) String() string {
	var b strings.Builder
	if t.Const {
		b.WriteString("const ")
	}
	if t.Func {
		b.WriteString("func")
	} else {
		b.WriteString(t.Base)
	}
	if t.Pointers > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Repeat("*", t.Pointers))
	}
	if t.Array {
		b.WriteString("[]")
	}
	return b.String()
}

// IsVoid reports whether t is plain void.
func (t CType) IsVoid() bool {
	return t.Base == "void" && t.Pointers == 0 && !t.Func && !t.Array
}

// Decay returns t as seen in a parameter list: arrays and function types
// become pointers.
func (t CType) Decay() CType {
	if t.Array {
		t.Array = false
		t.Pointers++
	}
	if t.Func && t.Pointers == 0 {
		t.Pointers = 1
	}
	return t
}

// Record returns the record of the given kind and name.
func (h *Header) Record(kind, name string) (Record, bool) {
	for _, r := range h.Records {
		if r.Kind == kind && r.Name == name {
			return r, true
		}
	}
	return Record{}, false
}

// Typedef returns the typedef named name.
func (h *Header) Typedef(name string) (Typedef, bool) {
	for _, t := range h.Typedefs {
		if t.Name == name {
			return t, true
		}
	}
	return Typedef{}, false
}

// Function returns the function named name.
func (h *Header) Function(name string) (Function, bool) {
	for _, f := range h.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// Macro returns the macro named name.
func (h *Header) Macro(name string) (Macro, bool) {
	for _, m := range h.Macros {
		if m.Name == name {
			return m, true
		}
	}
	return Macro{}, false
}
