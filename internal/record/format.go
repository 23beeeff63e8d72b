package record

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// BoolDisplay selects how booleans are rendered. Storage is always one byte.
type BoolDisplay uint8

const (
	BoolNumeric BoolDisplay = iota // "1" / "0"
	BoolText                       // "true" / "false"
)

func ParseBoolDisplay(s string) (BoolDisplay, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "numeric", "0/1":
		return BoolNumeric, nil
	case "text", "true/false":
		return BoolText, nil
	default:
		return BoolNumeric, fmt.Errorf("record: unknown bool display %q", s)
	}
}

type FormatOptions struct {
	Locale language.Tag
	Bool   BoolDisplay

	// MaxLongDisplayChars caps the display text of IsLong columns; 0 keeps all.
	MaxLongDisplayChars int
}

func DefaultFormatOptions() FormatOptions {
	return FormatOptions{Locale: language.AmericanEnglish, Bool: BoolNumeric}
}

// Formatter produces display strings for decoded values. It is immutable and
// may be shared by any number of readers.
type Formatter struct {
	opts       FormatOptions
	decimalSep string
}

func NewFormatter(opts FormatOptions) *Formatter {
	return &Formatter{opts: opts, decimalSep: decimalSeparator(opts.Locale)}
}

// decimalSeparator asks the locale how it renders 1.5 and keeps whatever sits
// between the digits.
func decimalSeparator(tag language.Tag) string {
	s := message.NewPrinter(tag).Sprintf("%v", number.Decimal(1.5))
	if !strings.HasPrefix(s, "1") || !strings.HasSuffix(s, "5") || len(s) < 3 {
		return "."
	}
	return s[1 : len(s)-1]
}

func (f *Formatter) localize(invariant string) string {
	if f.decimalSep == "." {
		return invariant
	}
	return strings.Replace(invariant, ".", f.decimalSep, 1)
}

func (f *Formatter) Bool(b bool) string {
	if f.opts.Bool == BoolText {
		return strconv.FormatBool(b)
	}
	if b {
		return "1"
	}
	return "0"
}

// Float returns the locale display and the invariant text of v.
func (f *Formatter) Float(v float64, bitSize int) (string, string) {
	inv := strconv.FormatFloat(v, 'G', -1, bitSize)
	return f.localize(inv), inv
}

// Decimal keeps exactly scale fractional digits.
func (f *Formatter) Decimal(d decimal.Decimal, scale int32) (string, string) {
	inv := d.StringFixed(scale)
	return f.localize(inv), inv
}

func (f *Formatter) Text(s string, col Column) string {
	limit := f.opts.MaxLongDisplayChars
	if !col.IsLong || limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}

func (f *Formatter) Bytes(b []byte, col Column) string {
	return f.Text("0x"+strings.ToUpper(hex.EncodeToString(b)), col)
}

// DateTime formats t at the precision the column declares.
func (f *Formatter) DateTime(t time.Time, col Column) string {
	return t.Format(dateTimeLayout(col))
}

func (f *Formatter) DateTimeOffset(t time.Time, col Column) string {
	if baseTypeName(col.SQLTypeName) == "date" {
		return t.Format("2006-01-02 -07:00")
	}
	return t.Format(dateTimeLayout(col) + " -07:00")
}

// TimeSpan renders [-][d.]hh:mm:ss[.fffffff].
func (f *Formatter) TimeSpan(d time.Duration) string {
	ticks := durationToTicks(d)
	var sb strings.Builder
	if ticks < 0 {
		sb.WriteByte('-')
		ticks = -ticks
	}
	days := ticks / ticksPerDay
	rem := ticks % ticksPerDay
	if days > 0 {
		sb.WriteString(strconv.FormatInt(days, 10))
		sb.WriteByte('.')
	}
	h := rem / (3600 * ticksPerSecond)
	m := rem / (60 * ticksPerSecond) % 60
	s := rem / ticksPerSecond % 60
	fmt.Fprintf(&sb, "%02d:%02d:%02d", h, m, s)
	if frac := rem % ticksPerSecond; frac > 0 {
		fmt.Fprintf(&sb, ".%07d", frac)
	}
	return sb.String()
}

const maxTimeScale = 7

func dateTimeLayout(col Column) string {
	switch baseTypeName(col.SQLTypeName) {
	case "date":
		return "2006-01-02"
	case "smalldatetime":
		return "2006-01-02 15:04:05"
	case "datetime":
		return "2006-01-02 15:04:05.000"
	}
	scale := maxTimeScale
	if col.NumericScale != nil {
		scale = min(max(*col.NumericScale, 0), maxTimeScale)
	}
	if scale == 0 {
		return "2006-01-02 15:04:05"
	}
	return "2006-01-02 15:04:05." + strings.Repeat("0", scale)
}

func baseTypeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	return n
}
