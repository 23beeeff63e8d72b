package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/transform"

	"github.com/tuannm99/novaspool/internal/alias/util"
	"github.com/tuannm99/novaspool/internal/gologger"
	"github.com/tuannm99/novaspool/internal/record"
	"github.com/tuannm99/novaspool/internal/storage"
)

var logger = gologger.NewLogger()

var (
	ErrWriterClosed  = errors.New("export: writer closed")
	ErrUnknownFormat = errors.New("export: unknown format")
	ErrInvalidParams = errors.New("export: invalid parameters")
	ErrRowWidth      = errors.New("export: row narrower than column window")
)

type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatXML      Format = "xml"
	FormatExcel    Format = "excel"
	FormatMarkdown Format = "markdown"
	FormatInsert   Format = "insert"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatCSV, FormatJSON, FormatXML, FormatExcel, FormatMarkdown, FormatInsert:
		return f, nil
	case "txt", "tsv":
		return FormatText, nil
	case "xlsx":
		return FormatExcel, nil
	case "md":
		return FormatMarkdown, nil
	case "sql":
		return FormatInsert, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// NullsAsNull reports whether the format can express null, so cells outside
// a selection should be null rather than empty text.
func (f Format) NullsAsNull() bool {
	switch f {
	case FormatJSON, FormatInsert, FormatXML:
		return true
	}
	return false
}

// Writer receives full-width rows in order; it exports only the cells inside
// its column window. Close finalizes the output and is safe to call twice.
type Writer interface {
	WriteRow(row []record.Cell) error
	Close() error
}

const (
	DefaultInsertBatchSize = 1000
	DefaultTableName       = "Results"
)

// Params are the per-request export settings.
type Params struct {
	Format         Format `validate:"required,oneof=text csv json xml excel markdown insert"`
	IncludeHeaders bool

	// Delimiter separates fields for text and CSV.
	Delimiter     string `validate:"omitempty,max=8"`
	LineSeparator string `validate:"omitempty,max=2"`
	// TextIdentifier is the CSV quote character.
	TextIdentifier string `validate:"omitempty,len=1"`
	// Encoding is an IANA name or a numeric code page; unknown values fall back to UTF-8.
	Encoding string `validate:"omitempty,max=64"`

	ColumnStartIndex *int   `validate:"omitempty,min=0"`
	ColumnEndIndex   *int   `validate:"omitempty,min=0"`
	RowStartIndex    *int64 `validate:"omitempty,min=0"`
	RowEndIndex      *int64 `validate:"omitempty,min=0"`

	TableName string `validate:"omitempty,max=256"`
	// Formatted indents XML and JSON output.
	Formatted bool
	BatchSize int `validate:"min=0"`

	// SkipSeparatorAfterLineBreak drops the line separator after a row whose
	// last value already ends in a line break (text format).
	SkipSeparatorAfterLineBreak bool
}

var validate = validator.New()

func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p.ColumnStartIndex != nil && p.ColumnEndIndex != nil && *p.ColumnEndIndex < *p.ColumnStartIndex {
		return fmt.Errorf("%w: column end %d before start %d", ErrInvalidParams, *p.ColumnEndIndex, *p.ColumnStartIndex)
	}
	if p.RowStartIndex != nil && p.RowEndIndex != nil && *p.RowEndIndex < *p.RowStartIndex {
		return fmt.Errorf("%w: row end %d before start %d", ErrInvalidParams, *p.RowEndIndex, *p.RowStartIndex)
	}
	return nil
}

func (p Params) lineSeparator() string {
	if p.LineSeparator == "" {
		return "\n"
	}
	return p.LineSeparator
}

// New returns a writer for p.Format that writes to w. Closing the writer
// flushes but does not close w.
func New(w io.Writer, cols []record.Column, p Params) (Writer, error) {
	return newWriter(w, nil, cols, p)
}

// Create writes the export to a new file at path. Closing the writer closes
// the file.
func Create(path string, cols []record.Column, p Params) (Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, storage.FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("export: create %s: %w", path, err)
	}
	w, err := newWriter(f, f, cols, p)
	if err != nil {
		util.CloseFunc(f)
		return nil, err
	}
	return w, nil
}

func newWriter(w io.Writer, owned io.Closer, cols []record.Column, p Params) (Writer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b, err := newBase(cols, p)
	if err != nil {
		return nil, err
	}

	if p.Format == FormatExcel {
		return newExcelWriter(newSink(w, nil, owned), b, p)
	}
	enc := ResolveEncoding(p.Encoding)
	s := newSink(w, enc.transformer(), owned)
	switch p.Format {
	case FormatText:
		return newTextWriter(s, b, p)
	case FormatCSV:
		return newCSVWriter(s, b, p)
	case FormatJSON:
		return newJSONWriter(s, b, p)
	case FormatXML:
		return newXMLWriter(s, b, p, enc.Name)
	case FormatMarkdown:
		return newMarkdownWriter(s, b, p)
	case FormatInsert:
		return newInsertWriter(s, b, p)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, p.Format)
}

// base holds the column window shared by every writer.
type base struct {
	cols  []record.Column
	start int
	end   int

	closed bool
}

func newBase(cols []record.Column, p Params) (base, error) {
	if len(cols) == 0 {
		return base{}, fmt.Errorf("%w: no columns", ErrInvalidParams)
	}
	start := util.Deref(p.ColumnStartIndex, 0)
	end := util.Deref(p.ColumnEndIndex, len(cols)-1)
	if start >= len(cols) || end >= len(cols) {
		return base{}, fmt.Errorf("%w: column window [%d, %d] over %d columns", ErrInvalidParams, start, end, len(cols))
	}
	return base{cols: cols[start : end+1], start: start, end: end}, nil
}

// window trims a full-width row to the selected columns.
func (b *base) window(row []record.Cell) ([]record.Cell, error) {
	if b.closed {
		return nil, ErrWriterClosed
	}
	if len(row) <= b.end {
		return nil, fmt.Errorf("%w: %d cells, need %d", ErrRowWidth, len(row), b.end+1)
	}
	return row[b.start : b.end+1], nil
}

// sink is the buffered, optionally re-encoded output of a writer.
type sink struct {
	*bufio.Writer
	enc   io.WriteCloser
	owned io.Closer
}

func newSink(w io.Writer, t transform.Transformer, owned io.Closer) *sink {
	s := &sink{owned: owned}
	if t != nil {
		s.enc = transform.NewWriter(w, t)
		w = s.enc
	}
	s.Writer = bufio.NewWriterSize(w, storage.DefaultBufferSize)
	return s
}

// close flushes every layer and always releases the owned file.
func (s *sink) close() error {
	var errs []error
	errs = append(errs, s.Flush())
	if s.enc != nil {
		errs = append(errs, s.enc.Close())
	}
	if s.owned != nil {
		errs = append(errs, s.owned.Close())
	}
	return errors.Join(errs...)
}
