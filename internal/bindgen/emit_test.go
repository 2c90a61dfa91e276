package bindgen

import (
	"strings"
	"testing"
)

// flat collapses runs of whitespace so checks do not depend on gofmt
// alignment.
func flat(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func emitNVMe(t *testing.T, opts EmitOptions) string {
	t.Helper()
	f, err := NewFilter(spdkRules())
	if err != nil {
		t.Fatal(err)
	}
	h := parseString(t, nvmeOutput, f)
	if opts.Package == "" {
		opts.Package = "spdk"
	}
	if opts.Include == "" {
		opts.Include = "/src/wrapper.h"
	}
	code, err := Emit(h, f, opts)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	return string(code)
}

func TestEmit(t *testing.T) {
	got := emitNVMe(t, EmitOptions{
		CFlags:  []string{"-I/src/build/include"},
		LDFlags: []string{"-L/out", "-lspdk_fat", "-laio"},
	})
	if !strings.HasPrefix(got, "// Code generated by spdkgen from wrapper.h. DO NOT EDIT.\n") {
		t.Errorf("missing generated-code header:\n%s", got)
	}
	text := flat(got)
	for _, want := range []string{
		"package spdk",
		"#cgo CFLAGS: -I/src/build/include",
		"#cgo LDFLAGS: -L/out -lspdk_fat -laio",
		`#include "/src/wrapper.h" */ import "C"`,
		`import "unsafe"`,
		"SPDK_NVME_MAX = 16",
		`SPDK_NVME_NAME = "spdk"`,
		"SPDK_NVME_MASK = 0x1f",
		"SPDK_NVME_QPRIO_URGENT = C.SPDK_NVME_QPRIO_URGENT",
		"SPDK_ANON = C.SPDK_ANON",
		"SpdkNvmeCtrlr = C.struct_spdk_nvme_ctrlr",
		"SpdkNvmeInner = C.struct_spdk_nvme_inner",
		"SpdkNvmeQprio = C.enum_spdk_nvme_qprio",
		"SpdkNvmeCb = C.spdk_nvme_cb",
		"SpdkU64 = C.spdk_u64",
		"func SpdkNvmeCtrlrReset(ctrlr *C.struct_spdk_nvme_ctrlr) C.int { return C.spdk_nvme_ctrlr_reset(ctrlr) }",
		"func SpdkNvmeProbe(cb_ctx unsafe.Pointer, attach_cb C.spdk_nvme_cb, names **C.char) { C.spdk_nvme_probe(cb_ctx, attach_cb, names) }",
		"func SpdkNvmeInline(type_ C.int) C.int { return C.spdk_nvme_inline(type_) }",
		"func Puts(s *C.char) C.int",
	} {
		if !strings.Contains(text, flat(want)) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
}

func TestEmitOmitsBlocklisted(t *testing.T) {
	got := emitNVMe(t, EmitOptions{})
	for _, name := range []string{
		"spdk_nvme_ctrlr_data",     // blocked type
		"SpdkNvmeCtrlrData",        // and its Go name
		"spdk_nvme_ctrlr_get_data", // blocked function
		"IPPORT_ECHO",              // blocked macro
		"IPPORT_RESERVED",          // blocked enumerator
		"FP_NAN",                   // ignored macro
		"SPDK_NVME_ADD",            // function-like macro
		"spdk_log",                 // variadic
		"spdk_nvme_ld",             // long double
		"spdk_nvme_global",         // variable
	} {
		if strings.Contains(got, name) {
			t.Errorf("output contains %s:\n%s", name, got)
		}
	}
}

func TestEmitOpaquePlaceholder(t *testing.T) {
	got := flat(emitNVMe(t, EmitOptions{}))
	want := "type SpdkNvmeSglDescriptor struct { _ [C.sizeof_struct_spdk_nvme_sgl_descriptor]byte }"
	if !strings.Contains(got, want) {
		t.Errorf("output lacks opaque placeholder %q:\n%s", want, got)
	}
	if strings.Contains(got, "= C.struct_spdk_nvme_sgl_descriptor") {
		t.Error("opaque type also emitted as alias")
	}
}

func TestEmitOpaqueInSignatures(t *testing.T) {
	sgl := CType{Base: "struct spdk_nvme_sgl_descriptor"}
	sglPtr := CType{Base: sgl.Base, Pointers: 1}
	h := &Header{
		Records: []Record{{Kind: "struct", Name: "spdk_nvme_sgl_descriptor", Complete: true}},
		Functions: []Function{
			{Name: "spdk_sgl_len", Result: CType{Base: "int"}, Params: []Param{{Name: "d", Type: sglPtr}}},
			{Name: "spdk_sgl_first", Result: sglPtr},
			{Name: "spdk_sgl_copy", Result: sgl, Params: []Param{{Name: "d", Type: sgl}}},
		},
	}
	f, err := NewFilter(Rules{OpaqueTypes: []string{"spdk_nvme_sgl_descriptor"}})
	if err != nil {
		t.Fatal(err)
	}
	code, err := Emit(h, f, EmitOptions{Package: "spdk", Include: "x.h"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	got := flat(string(code))
	for _, want := range []string{
		`import "unsafe"`,
		"func SpdkSglLen(d *SpdkNvmeSglDescriptor) C.int { return C.spdk_sgl_len((*C.struct_spdk_nvme_sgl_descriptor)(unsafe.Pointer(d))) }",
		"func SpdkSglFirst() *SpdkNvmeSglDescriptor { return (*SpdkNvmeSglDescriptor)(unsafe.Pointer(C.spdk_sgl_first())) }",
		"func SpdkSglCopy(d SpdkNvmeSglDescriptor) SpdkNvmeSglDescriptor { ret := C.spdk_sgl_copy(*(*C.struct_spdk_nvme_sgl_descriptor)(unsafe.Pointer(&d))) return *(*SpdkNvmeSglDescriptor)(unsafe.Pointer(&ret)) }",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, code)
		}
	}
}

func TestEmitWrapDirs(t *testing.T) {
	got := emitNVMe(t, EmitOptions{WrapDirs: []string{"/src"}})
	if strings.Contains(got, "Puts") {
		t.Error("function outside the wrapped directories was wrapped")
	}
	if !strings.Contains(got, "SpdkNvmeCtrlrReset") {
		t.Error("function inside the wrapped directories was not wrapped")
	}
}

func TestEmitWithoutPointers(t *testing.T) {
	h := &Header{
		Functions: []Function{{Name: "spdk_ok", Result: CType{Base: "int"}}},
	}
	code, err := Emit(h, nil, EmitOptions{Package: "spdk", Include: "x.h"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if strings.Contains(string(code), `"unsafe"`) {
		t.Errorf("unsafe imported without use:\n%s", code)
	}
}

func TestGoType(t *testing.T) {
	h := &Header{Typedefs: []Typedef{
		{Name: "va_list", Type: CType{Base: "__builtin_va_list"}},
		{Name: "my_list", Type: CType{Base: "va_list"}},
		{Name: "jmp_buf", Type: CType{Base: "long", Array: true}},
		{Name: "spdk_cb", Type: CType{Func: true, Pointers: 1}},
	}}
	m := newTypeMap(h)
	tests := []struct {
		in   CType
		want string
		ok   bool
	}{
		{CType{Base: "void"}, "", true},
		{CType{Base: "void", Pointers: 1}, "unsafe.Pointer", true},
		{CType{Base: "void", Pointers: 2}, "*unsafe.Pointer", true},
		{CType{Base: "unsigned long", Pointers: 1}, "*C.ulong", true},
		{CType{Base: "_Bool"}, "C.bool", true},
		{CType{Base: "uint64_t"}, "C.uint64_t", true},
		{CType{Base: "struct spdk_bdev", Pointers: 1}, "*C.struct_spdk_bdev", true},
		{CType{Base: "enum spdk_log_level"}, "C.enum_spdk_log_level", true},
		{CType{Base: "union spdk_u"}, "C.union_spdk_u", true},
		{CType{Func: true, Pointers: 1}, "*[0]byte", true},
		{CType{Base: "spdk_cb"}, "C.spdk_cb", true},
		{CType{Base: "long double"}, "", false},
		{CType{Base: "_Float128"}, "", false},
		{CType{Base: "__int128"}, "", false},
		{CType{Base: "my_list"}, "", false},
		{CType{Base: "jmp_buf"}, "", false},
		{CType{Base: "struct"}, "", false},
		{CType{Base: "int", Array: true}, "", false},
		{CType{Base: "int", Unsupported: true}, "", false},
	}
	for _, tt := range tests {
		got, ok := m.goType(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("goType(%s) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
