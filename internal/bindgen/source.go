package bindgen

import (
	"bytes"
	"strconv"
	"strings"
)

// Pseudo files the preprocessor attributes its own definitions to.
const (
	originBuiltin     = "<built-in>"
	originCommandLine = "<command-line>"
)

// compatDefines turn GNU extensions the C grammar cannot parse into plain
// C. They only affect parsing; cgo compiles the real headers.
var compatDefines = []string{
	"__attribute__(x)=",
	"__asm__(x)=",
	"__asm(x)=",
	"__extension__=",
	"__restrict=",
	"__restrict__=",
	"__inline=inline",
	"__inline__=inline",
	"__const=const",
	"__signed__=signed",
	"__volatile__=volatile",
	"__thread=",
	"_Thread_local=",
	"_Noreturn=",
	"_Alignas(x)=",
	"_Static_assert(...)=",
}

type directive struct {
	undef    bool
	name     string
	funcLike bool
	value    string
	origin   string
}

// Source is preprocessor output prepared for parsing. Linemarkers and
// macro directives are blanked out so rows stay aligned, and every row
// remembers the file and line it came from.
type Source struct {
	Text []byte

	origins    []string
	lines      []int
	directives []directive
}

// NewSource prepares the output of "cc -E -dD".
func NewSource(out []byte) *Source {
	s := new(Source)
	rows := bytes.Split(out, []byte("\n"))
	file, line := "", 1
	for i, row := range rows {
		s.origins = append(s.origins, file)
		s.lines = append(s.lines, line)
		trimmed := bytes.TrimLeft(row, " \t")
		if len(trimmed) == 0 || trimmed[0] != '#' {
			line++
			continue
		}
		rows[i] = nil
		rest := strings.TrimSpace(string(trimmed[1:]))
		if n, f, ok := parseLinemarker(rest); ok {
			file, line = f, n
			continue
		}
		if d, ok := parseDirective(rest); ok {
			d.origin = file
			s.directives = append(s.directives, d)
		}
		line++
	}
	s.Text = bytes.Join(rows, []byte("\n"))
	return s
}

// Origin returns the file that produced the given 0-based row.
func (s *Source) Origin(row int) string {
	if row < 0 || row >= len(s.origins) {
		return ""
	}
	return s.origins[row]
}

// Line returns the 1-based line in Origin(row).
func (s *Source) Line(row int) int {
	if row < 0 || row >= len(s.lines) {
		return 0
	}
	return s.lines[row]
}

// parseLinemarker parses `N "file" flags...` and `line N "file"`.
func parseLinemarker(s string) (int, string, bool) {
	s = strings.TrimPrefix(s, "line ")
	num, rest, ok := strings.Cut(s, " ")
	if !ok {
		return 0, "", false
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, "", false
	}
	q, err := strconv.QuotedPrefix(strings.TrimSpace(rest))
	if err != nil {
		return 0, "", false
	}
	file, err := strconv.Unquote(q)
	if err != nil {
		return 0, "", false
	}
	return n, file, true
}

func parseDirective(s string) (directive, bool) {
	kw, rest, _ := strings.Cut(s, " ")
	rest = strings.TrimLeft(rest, " \t")
	switch kw {
	case "define", "undef":
	default:
		return directive{}, false
	}
	end := 0
	for end < len(rest) && isIdentByte(rest[end], end == 0) {
		end++
	}
	if end == 0 {
		return directive{}, false
	}
	d := directive{undef: kw == "undef", name: rest[:end]}
	if d.undef {
		return d, true
	}
	tail := rest[end:]
	if strings.HasPrefix(tail, "(") {
		d.funcLike = true
		return d, true
	}
	d.value = strings.TrimSpace(tail)
	return d, true
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		return true
	case '0' <= c && c <= '9':
		return !first
	}
	return false
}
