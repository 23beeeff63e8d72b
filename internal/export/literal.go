package export

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/tuannm99/novaspool/internal/record"
)

// SQLLiteral renders a cell of col as a T-SQL literal.
func SQLLiteral(col record.Column, c record.Cell) string {
	if c.IsNull {
		return "NULL"
	}
	if col.Kind == record.KindChar && !col.IsVariant {
		return quote(c.Display)
	}
	switch v := c.Raw.(type) {
	case int16, int32, int64, uint8:
		return c.Display
	case float32, float64, decimal.Decimal, record.SQLDecimal:
		inv := c.Invariant()
		if strings.ContainsAny(inv, "NI") {
			// NaN and infinities have no numeric literal
			return quote(inv)
		}
		return inv
	case bool:
		if v {
			return "1"
		}
		return "0"
	case []byte:
		return c.Display
	}
	return quote(c.Display)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdentifier brackets a name when it is not a plain identifier.
// Dotted names are treated as schema-qualified and quoted part by part.
func QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = QuoteName(p)
	}
	return strings.Join(parts, ".")
}

// QuoteName brackets a single-part name such as a column; dots are part of
// the name.
func QuoteName(name string) string {
	if !needsBrackets(name) {
		return name
	}
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func needsBrackets(name string) bool {
	if name == "" {
		return true
	}
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		return false
	}
	for i, r := range name {
		if i == 0 && !unicode.IsLetter(r) {
			return true
		}
		if unicode.IsSpace(r) || r == '-' || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return true
		}
	}
	return false
}
