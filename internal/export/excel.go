package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tuannm99/novaspool/internal/record"
)

var _ Writer = (*excelWriter)(nil)

// cell style indices into cellXfs of styles.xml
const (
	stylePlain = iota
	styleDate
	styleTime
	styleDateTime
)

// seconds from the Unix epoch back to the OLE automation epoch, 1899-12-30
const oaEpochUnix = -2209161600

// excelWriter streams a single-sheet xlsx package. The worksheet part is
// written as rows arrive; the fixed parts are added on Close.
type excelWriter struct {
	base
	out   *sink
	zip   *zip.Writer
	sheet io.Writer
	row   int
}

func newExcelWriter(out *sink, b base, p Params) (*excelWriter, error) {
	w := &excelWriter{base: b, out: out, zip: zip.NewWriter(out)}
	sheet, err := w.zip.Create("xl/worksheets/sheet1.xml")
	if err != nil {
		return nil, err
	}
	w.sheet = sheet
	if _, err := io.WriteString(sheet, xml.Header+sheetOpen); err != nil {
		return nil, err
	}
	if p.IncludeHeaders {
		if err := w.writeHeader(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// writeHeader writes the column names as the first sheet row.
func (w *excelWriter) writeHeader() error {
	var buf bytes.Buffer
	w.row++
	buf.WriteString(`<row r="` + strconv.Itoa(w.row) + `">`)
	for i, c := range w.cols {
		inlineString(&buf, cellRef(i, w.row), c.Name)
	}
	buf.WriteString("</row>")
	_, err := w.sheet.Write(buf.Bytes())
	return err
}

func (w *excelWriter) WriteRow(row []record.Cell) error {
	cells, err := w.window(row)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	w.row++
	buf.WriteString(`<row r="` + strconv.Itoa(w.row) + `">`)
	for i, c := range cells {
		w.cell(&buf, cellRef(i, w.row), w.cols[i], c)
	}
	buf.WriteString("</row>")
	_, err = w.sheet.Write(buf.Bytes())
	return err
}

func (w *excelWriter) cell(buf *bytes.Buffer, ref string, col record.Column, c record.Cell) {
	if c.IsNull {
		return
	}
	if col.Kind == record.KindChar {
		inlineString(buf, ref, c.Display)
		return
	}
	switch v := c.Raw.(type) {
	case int16, int32, int64, uint8:
		number(buf, ref, stylePlain, c.Display)
		return
	case float32, float64, decimal.Decimal, record.SQLDecimal:
		if inv := c.Invariant(); !strings.ContainsAny(inv, "NI") {
			number(buf, ref, stylePlain, inv)
			return
		}
	case bool:
		val := "0"
		if v {
			val = "1"
		}
		buf.WriteString(`<c r="` + ref + `" t="b"><v>` + val + `</v></c>`)
		return
	case time.Time:
		if col.Kind == record.KindDateTimeOffset {
			break
		}
		style := styleDateTime
		if isDateOnly(col.SQLTypeName) {
			style = styleDate
		}
		number(buf, ref, style, strconv.FormatFloat(oaDate(v), 'f', -1, 64))
		return
	case time.Duration:
		days := float64(v) / float64(24*time.Hour)
		number(buf, ref, styleTime, strconv.FormatFloat(days, 'f', -1, 64))
		return
	}
	if c.Display == "" {
		return
	}
	inlineString(buf, ref, c.Display)
}

func number(buf *bytes.Buffer, ref string, style int, v string) {
	buf.WriteString(`<c r="` + ref + `"`)
	if style != stylePlain {
		buf.WriteString(` s="` + strconv.Itoa(style) + `"`)
	}
	buf.WriteString(`><v>` + v + `</v></c>`)
}

func inlineString(buf *bytes.Buffer, ref, s string) {
	buf.WriteString(`<c r="` + ref + `" t="inlineStr"><is><t xml:space="preserve">`)
	// writes to a bytes.Buffer never fail
	_ = xml.EscapeText(buf, []byte(s))
	buf.WriteString(`</t></is></c>`)
}

// oaDate converts the wall clock of t to an OLE automation date: days since
// 1899-12-30 with the time of day as the fraction.
func oaDate(t time.Time) float64 {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	secs := wall.Unix() - oaEpochUnix
	days := float64(secs/86400) + (float64(secs%86400)+float64(wall.Nanosecond())/1e9)/86400
	return math.Round(days*1e10) / 1e10
}

func isDateOnly(sqlType string) bool {
	n := strings.ToLower(strings.TrimSpace(sqlType))
	return n == "date"
}

// cellRef returns the A1 reference of a zero-based column and one-based row.
func cellRef(col, row int) string {
	return columnName(col) + strconv.Itoa(row)
}

func columnName(i int) string {
	var name []byte
	for i++; i > 0; i = (i - 1) / 26 {
		name = append([]byte{byte('A' + (i-1)%26)}, name...)
	}
	return string(name)
}

func (w *excelWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.finish()
	if cerr := w.out.close(); err == nil {
		err = cerr
	}
	return err
}

func (w *excelWriter) finish() error {
	if _, err := io.WriteString(w.sheet, sheetClose); err != nil {
		return err
	}
	for _, part := range packageParts {
		f, err := w.zip.Create(part.name)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(f, xml.Header+part.body); err != nil {
			return err
		}
	}
	return w.zip.Close()
}

const (
	sheetOpen  = `<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`
	sheetClose = `</sheetData></worksheet>`
)

var packageParts = []struct{ name, body string }{
	{"[Content_Types].xml", `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>` +
		`<Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>` +
		`<Override PartName="/xl/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"/>` +
		`</Types>`},
	{"_rels/.rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>` +
		`</Relationships>`},
	{"xl/workbook.xml", `<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		`<sheets><sheet name="Sheet1" sheetId="1" r:id="rId1"/></sheets></workbook>`},
	{"xl/_rels/workbook.xml.rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>` +
		`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
		`</Relationships>`},
	{"xl/styles.xml", `<styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
		`<numFmts count="3">` +
		`<numFmt numFmtId="164" formatCode="yyyy-mm-dd"/>` +
		`<numFmt numFmtId="165" formatCode="[h]:mm:ss"/>` +
		`<numFmt numFmtId="166" formatCode="yyyy-mm-dd hh:mm:ss"/>` +
		`</numFmts>` +
		`<fonts count="1"><font><sz val="11"/><name val="Calibri"/></font></fonts>` +
		`<fills count="2"><fill><patternFill patternType="none"/></fill><fill><patternFill patternType="gray125"/></fill></fills>` +
		`<borders count="1"><border><left/><right/><top/><bottom/><diagonal/></border></borders>` +
		`<cellStyleXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0"/></cellStyleXfs>` +
		`<cellXfs count="4">` +
		`<xf numFmtId="0" fontId="0" fillId="0" borderId="0" xfId="0"/>` +
		`<xf numFmtId="164" fontId="0" fillId="0" borderId="0" xfId="0" applyNumberFormat="1"/>` +
		`<xf numFmtId="165" fontId="0" fillId="0" borderId="0" xfId="0" applyNumberFormat="1"/>` +
		`<xf numFmtId="166" fontId="0" fillId="0" borderId="0" xfId="0" applyNumberFormat="1"/>` +
		`</cellXfs></styleSheet>`},
}
