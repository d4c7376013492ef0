package render

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bmlt-enabled/tomato/internal/semantic"
)

// XMLOptions shape the XML document around the rows.
type XMLOptions struct {
	// RootElement names the document root; dots nest elements, so
	// "kml.Document" opens <kml><Document>.
	RootElement string
	// XMLNS and SchemaURL become xmlns / xsi:schemaLocation attributes
	// on the outermost root element when both are set. XMLNS alone adds
	// only the namespace.
	XMLNS     string
	SchemaURL string
	// RowElement defaults to "row".
	RowElement string
	// OmitSequenceIndex drops the per-row sequence_index attribute.
	OmitSequenceIndex bool
	// Sub appends a secondary collection wrapped in its own element
	// after the primary rows.
	Sub *XMLSubSection
}

// XMLSubSection is the wrapped secondary collection of an XML response.
type XMLSubSection struct {
	Wrapper string
	Map     semantic.Map
	Stream  semantic.RecordStream
}

// XML streams the records as an XML document. Dotted column names nest
// elements and empty values are omitted entirely.
func XML(w io.Writer, m semantic.Map, stream semantic.RecordStream, opts XMLOptions) error {
	bw := bufio.NewWriter(w)
	xw := &xmlWriter{w: bw}

	rowElement := opts.RowElement
	if rowElement == "" {
		rowElement = "row"
	}

	xw.raw(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	roots := strings.Split(opts.RootElement, ".")
	for i, elem := range roots {
		if i == 0 {
			xw.openRoot(elem, opts.XMLNS, opts.SchemaURL)
		} else {
			xw.open(elem)
		}
	}

	if stream != nil {
		if err := xw.writeRows(m, stream, rowElement, !opts.OmitSequenceIndex); err != nil {
			return err
		}
	}
	if opts.Sub != nil {
		xw.open(opts.Sub.Wrapper)
		if err := xw.writeRows(opts.Sub.Map, opts.Sub.Stream, "row", !opts.OmitSequenceIndex); err != nil {
			return err
		}
		xw.close(opts.Sub.Wrapper)
	}

	for i := len(roots) - 1; i >= 0; i-- {
		xw.close(roots[i])
	}
	return bw.Flush()
}

type xmlWriter struct {
	w *bufio.Writer
}

func (xw *xmlWriter) raw(s string) { xw.w.WriteString(s) }

func (xw *xmlWriter) open(name string) {
	xw.raw("<" + name + ">")
}

func (xw *xmlWriter) openRoot(name, xmlns, schemaURL string) {
	xw.raw("<" + name)
	if xmlns != "" {
		xw.raw(` xmlns="`)
		xw.escape(xmlns, true)
		xw.raw(`"`)
		if schemaURL != "" {
			xw.raw(` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="`)
			xw.escape(xmlns+" "+schemaURL, true)
			xw.raw(`"`)
		}
	}
	xw.raw(">")
}

func (xw *xmlWriter) close(name string) {
	xw.raw("</" + name + ">")
}

func (xw *xmlWriter) writeRows(m semantic.Map, stream semantic.RecordStream, rowElement string, sequenceIndex bool) error {
	i := 0
	for {
		rec, ok := stream.Next()
		if !ok {
			break
		}
		if sequenceIndex {
			xw.raw("<" + rowElement + ` sequence_index="` + strconv.Itoa(i) + `">`)
		} else {
			xw.open(rowElement)
		}
		for _, field := range m {
			if field.Qualifier != nil && !field.Qualifier(rec) {
				continue
			}
			value := field.Accessor.Resolve(rec).Render()
			if value == "" {
				continue
			}
			parts := strings.Split(field.Name, ".")
			for _, part := range parts {
				xw.open(part)
			}
			xw.escape(value, false)
			for j := len(parts) - 1; j >= 0; j-- {
				xw.close(parts[j])
			}
		}
		xw.close(rowElement)
		i++
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("streaming records: %w", err)
	}
	return stream.Close()
}

// escape writes character data, additionally escaping quotes inside
// attribute values.
func (xw *xmlWriter) escape(s string, attribute bool) {
	for _, r := range s {
		switch r {
		case '&':
			xw.raw("&amp;")
		case '<':
			xw.raw("&lt;")
		case '>':
			xw.raw("&gt;")
		case '"':
			if attribute {
				xw.raw("&quot;")
			} else {
				xw.w.WriteRune(r)
			}
		default:
			xw.w.WriteRune(r)
		}
	}
}
