package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode"

	"github.com/tuannm99/novaspool/internal/record"
)

var _ Writer = (*xmlWriter)(nil)

const (
	xmlRootElement = "data"
	xmlRowElement  = "row"
)

// xmlWriter writes <data><row><col>value</col>...</row></data>. Column names
// are encoded into valid element names; null cells become empty elements.
type xmlWriter struct {
	base
	out    *sink
	names  []string
	indent bool
}

func newXMLWriter(out *sink, b base, p Params, encoding string) (*xmlWriter, error) {
	w := &xmlWriter{base: b, out: out, indent: p.Formatted}
	for _, c := range w.cols {
		w.names = append(w.names, EncodeLocalName(c.Name))
	}
	header := fmt.Sprintf(`<?xml version="1.0" encoding="%s"?>`, encoding)
	if w.indent {
		header += "\n"
	}
	if _, err := w.out.WriteString(header + "<" + xmlRootElement + ">"); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *xmlWriter) WriteRow(row []record.Cell) error {
	cells, err := w.window(row)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	w.newline(&buf, 1)
	buf.WriteString("<" + xmlRowElement + ">")
	for i, c := range cells {
		w.newline(&buf, 2)
		if c.IsNull {
			buf.WriteString("<" + w.names[i] + " />")
			continue
		}
		buf.WriteString("<" + w.names[i] + ">")
		if err := xml.EscapeText(&buf, []byte(c.Display)); err != nil {
			return err
		}
		buf.WriteString("</" + w.names[i] + ">")
	}
	w.newline(&buf, 1)
	buf.WriteString("</" + xmlRowElement + ">")
	_, err = w.out.Write(buf.Bytes())
	return err
}

func (w *xmlWriter) newline(buf *bytes.Buffer, depth int) {
	if !w.indent {
		return
	}
	buf.WriteByte('\n')
	buf.WriteString(strings.Repeat("  ", depth))
}

func (w *xmlWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var buf bytes.Buffer
	w.newline(&buf, 0)
	buf.WriteString("</" + xmlRootElement + ">")
	_, err := w.out.Write(buf.Bytes())
	if cerr := w.out.close(); err == nil {
		err = cerr
	}
	return err
}

// EncodeLocalName turns an arbitrary column name into a valid XML element
// name. Characters that may not appear are written as _xHHHH_, and so is an
// underscore that would otherwise read as the start of such an escape.
func EncodeLocalName(name string) string {
	if name == "" {
		return "_x0020_"
	}
	var sb strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		ok := isNameChar(r)
		if i == 0 {
			ok = isNameStartChar(r)
		}
		if r == '_' && i+1 < len(runes) && runes[i+1] == 'x' {
			ok = false
		}
		if ok {
			sb.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			fmt.Fprintf(&sb, "_x%08X_", r)
		} else {
			fmt.Fprintf(&sb, "_x%04X_", r)
		}
	}
	return sb.String()
}

// isNameStartChar excludes ':' so encoded names stay unqualified.
func isNameStartChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStartChar(r) || unicode.IsDigit(r) || r == '-' || r == '.' ||
		unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}
