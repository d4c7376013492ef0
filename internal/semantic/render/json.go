// Package render writes record streams in the semantic response
// formats. Every renderer consumes records one at a time and writes
// incrementally, so a large result set never materializes in memory.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/bmlt-enabled/tomato/internal/semantic"
)

// Section is one named collection of a JSON response. A single section
// with an empty ParentKey renders as a bare array; otherwise the
// response is an object of parent keys.
type Section struct {
	ParentKey string
	Map       semantic.Map
	Stream    semantic.RecordStream
}

// JSON streams the sections as compact JSON, or two-space indented
// when indent is set.
func JSON(w io.Writer, sections []Section, indent bool) error {
	bw := bufio.NewWriter(w)
	jw := &jsonWriter{w: bw, indent: indent}

	if len(sections) == 1 && sections[0].ParentKey == "" {
		if err := jw.writeArray(sections[0]); err != nil {
			return err
		}
		return bw.Flush()
	}

	jw.raw("{")
	jw.depth++
	for i, section := range sections {
		if i > 0 {
			jw.raw(",")
		}
		jw.newline()
		jw.writeString(section.ParentKey)
		jw.raw(":")
		if indent {
			jw.raw(" ")
		}
		if err := jw.writeArray(section); err != nil {
			return err
		}
	}
	jw.depth--
	jw.newline()
	jw.raw("}")
	return bw.Flush()
}

// JSONP wraps the JSON rendering in the callback invocation.
func JSONP(w io.Writer, callback string, sections []Section, indent bool) error {
	if _, err := io.WriteString(w, callback+"("); err != nil {
		return err
	}
	if err := JSON(w, sections, indent); err != nil {
		return err
	}
	_, err := io.WriteString(w, ");")
	return err
}

type jsonWriter struct {
	w      *bufio.Writer
	indent bool
	depth  int
}

func (jw *jsonWriter) raw(s string) {
	jw.w.WriteString(s)
}

func (jw *jsonWriter) newline() {
	if !jw.indent {
		return
	}
	jw.w.WriteString("\n")
	jw.w.WriteString(strings.Repeat("  ", jw.depth))
}

func (jw *jsonWriter) writeArray(section Section) error {
	jw.raw("[")
	jw.depth++
	first := true
	for {
		rec, ok := section.Stream.Next()
		if !ok {
			break
		}
		if !first {
			jw.raw(",")
		}
		first = false
		jw.newline()
		jw.writeObject(section.Map, rec)
	}
	jw.depth--
	if !first {
		jw.newline()
	}
	jw.raw("]")
	if err := section.Stream.Err(); err != nil {
		return fmt.Errorf("streaming records: %w", err)
	}
	return section.Stream.Close()
}

func (jw *jsonWriter) writeObject(m semantic.Map, rec semantic.Record) {
	jw.raw("{")
	jw.depth++
	first := true
	for _, field := range m {
		if field.Qualifier != nil && !field.Qualifier(rec) {
			continue
		}
		if !first {
			jw.raw(",")
		}
		first = false
		jw.newline()
		jw.writeString(field.Name)
		jw.raw(":")
		if jw.indent {
			jw.raw(" ")
		}
		jw.writeString(field.Accessor.Resolve(rec).Render())
	}
	jw.depth--
	if !first {
		jw.newline()
	}
	jw.raw("}")
}

const hexDigits = "0123456789abcdef"

// writeString writes a JSON string literal. HTML characters stay
// unescaped, matching the upstream wire format.
func (jw *jsonWriter) writeString(s string) {
	w := jw.w
	w.WriteByte('"')
	for i := 0; i < len(s); {
		b := s[i]
		if b >= 0x20 && b != '"' && b != '\\' {
			if b < utf8.RuneSelf {
				w.WriteByte(b)
				i++
				continue
			}
			_, size := utf8.DecodeRuneInString(s[i:])
			w.WriteString(s[i : i+size])
			i += size
			continue
		}
		switch b {
		case '"':
			w.WriteString(`\"`)
		case '\\':
			w.WriteString(`\\`)
		case '\n':
			w.WriteString(`\n`)
		case '\r':
			w.WriteString(`\r`)
		case '\t':
			w.WriteString(`\t`)
		default:
			w.WriteString(`\u00`)
			w.WriteByte(hexDigits[b>>4])
			w.WriteByte(hexDigits[b&0xf])
		}
		i++
	}
	w.WriteByte('"')
}
