package bindgen

import (
	"fmt"
	"go/token"
	"strconv"
	"strings"
)

// goName converts a C identifier to an exported Go name:
// spdk_nvme_ctrlr becomes SpdkNvmeCtrlr.
func goName(cname string) string {
	var b strings.Builder
	for _, part := range strings.Split(cname, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	s := b.String()
	if s == "" || ('0' <= s[0] && s[0] <= '9') {
		s = "X" + s
	}
	return s
}

// constName keeps C constant names, exporting the ones that start lower
// case.
func constName(cname string) string {
	if c := cname[0]; 'a' <= c && c <= 'z' {
		return strings.ToUpper(cname[:1]) + cname[1:]
	}
	return cname
}

// Identifiers a wrapper parameter must not shadow.
var shadowed = map[string]bool{
	"C":      true,
	"unsafe": true,
	"byte":   true,
}

func paramName(name string, i int) string {
	switch {
	case name == "" || name == "_":
		return fmt.Sprintf("arg%d", i)
	case token.IsKeyword(name), shadowed[name]:
		return name + "_"
	}
	return name
}

// reserved reports names left to the C implementation.
func reserved(cname string) bool {
	return strings.HasPrefix(cname, "__")
}

// namer hands out package-level Go identifiers.
type namer struct {
	used map[string]bool
}

func newNamer() *namer {
	return &namer{used: map[string]bool{"C": true, "unsafe": true}}
}

func (n *namer) claim(name string) bool {
	if name == "_" {
		return true
	}
	if n.used[name] {
		return false
	}
	n.used[name] = true
	return true
}

// unique claims name, or prefix+name, or the first free numbered variant.
func (n *namer) unique(name, prefix string) string {
	if n.claim(name) {
		return name
	}
	if n.claim(prefix + name) {
		return prefix + name
	}
	for i := 2; ; i++ {
		s := prefix + name + strconv.Itoa(i)
		if n.claim(s) {
			return s
		}
	}
}

// goLiteral translates a macro replacement text to a Go constant
// expression. Only literals, optionally signed and parenthesized, qualify.
func goLiteral(v string) (string, bool) {
	v = strings.TrimSpace(v)
	for len(v) >= 2 && v[0] == '(' && v[len(v)-1] == ')' && balanced(v[1:len(v)-1]) {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	if v == "" {
		return "", false
	}
	switch v[0] {
	case '"':
		if _, err := strconv.Unquote(v); err != nil {
			return "", false
		}
		return v, true
	case '\'':
		return charLiteral(v)
	}
	sign := ""
	if v[0] == '-' || v[0] == '+' {
		sign, v = v[:1], strings.TrimSpace(v[1:])
	}
	if n, ok := intLiteral(v); ok {
		return sign + n, true
	}
	if n, ok := floatLiteral(v); ok {
		return sign + n, true
	}
	return "", false
}

// charLiteral translates a C character constant. C escapes that Go
// spells differently (short octal, \e, \?) are rewritten.
func charLiteral(v string) (string, bool) {
	if len(v) < 3 || v[len(v)-1] != '\'' {
		return "", false
	}
	body := v[1 : len(v)-1]
	if len(body) > 1 && body[0] == '\\' {
		esc := body[1:]
		switch {
		case esc == "e" || esc == "E":
			return `'\x1b'`, true
		case esc == "?":
			return "'?'", true
		case esc[0] >= '0' && esc[0] <= '7':
			if len(esc) > 3 {
				return "", false
			}
			n, err := strconv.ParseUint(esc, 8, 8)
			if err != nil {
				return "", false
			}
			return fmt.Sprintf(`'\x%02x'`, n), true
		}
	}
	if _, _, tail, err := strconv.UnquoteChar(body, '\''); err != nil || tail != "" {
		return "", false
	}
	return v, true
}

func balanced(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func intLiteral(s string) (string, bool) {
	s = strings.TrimRight(s, "uUlL")
	if s == "" {
		return "", false
	}
	if _, err := strconv.ParseUint(s, 0, 64); err != nil {
		// Out of range values are still valid untyped Go constants.
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return "", false
		}
	}
	if len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9' {
		s = "0o" + s[1:]
	}
	return s, true
}

func floatLiteral(s string) (string, bool) {
	s = strings.TrimRight(s, "fFlL")
	if !strings.ContainsAny(s, ".eE") || strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "", false
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return "", false
		}
	}
	return s, true
}
