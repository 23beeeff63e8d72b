package record

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the closed set of scalar encodings the spool understands.
type Kind uint8

const (
	KindString Kind = iota // UTF-16LE text; also the fallback for anything unknown
	KindInt16
	KindInt32
	KindInt64
	KindByte
	KindChar
	KindBool
	KindFloat32
	KindFloat64
	KindDecimal    // generic decimal, 96-bit magnitude + scale/sign word
	KindSQLDecimal // precision, scale, sign + 128-bit magnitude
	KindMoney      // stored like KindDecimal
	KindDateTime
	KindDateTimeOffset
	KindTimeSpan
	KindBytes
	KindGUID
)

var kindNames = [...]string{
	KindString:         "string",
	KindInt16:          "int16",
	KindInt32:          "int32",
	KindInt64:          "int64",
	KindByte:           "byte",
	KindChar:           "char",
	KindBool:           "bool",
	KindFloat32:        "float32",
	KindFloat64:        "float64",
	KindDecimal:        "decimal",
	KindSQLDecimal:     "sqldecimal",
	KindMoney:          "money",
	KindDateTime:       "datetime",
	KindDateTimeOffset: "datetimeoffset",
	KindTimeSpan:       "timespan",
	KindBytes:          "bytes",
	KindGUID:           "guid",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// FixedSize reports whether every non-null value of k has the same encoded
// length. Only such fields may be patched in place.
func (k Kind) FixedSize() bool {
	switch k {
	case KindString, KindBytes, KindGUID:
		return false
	default:
		return true
	}
}

// nullIsLongForm is true for the variable-length kinds, whose null is the
// 5-byte long-form zero length so a 1-byte zero length stays "empty".
func (k Kind) nullIsLongForm() bool {
	return !k.FixedSize()
}

// Numeric kinds are written unquoted by the SQL and JSON writers.
func (k Kind) Numeric() bool {
	switch k {
	case KindInt16, KindInt32, KindInt64, KindByte, KindFloat32, KindFloat64,
		KindDecimal, KindSQLDecimal, KindMoney:
		return true
	default:
		return false
	}
}

// KindFromSQLType maps a database type name to its spool kind.
// Unknown names fall back to KindString.
func KindFromSQLType(name string) Kind {
	n := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	switch n {
	case "smallint", "int2":
		return KindInt16
	case "int", "integer", "int4":
		return KindInt32
	case "bigint", "int8":
		return KindInt64
	case "tinyint":
		return KindByte
	case "bit", "bool", "boolean":
		return KindBool
	case "real", "float4":
		return KindFloat32
	case "float", "float8", "double precision":
		return KindFloat64
	case "decimal", "numeric":
		return KindSQLDecimal
	case "money", "smallmoney":
		return KindMoney
	case "date", "datetime", "datetime2", "smalldatetime", "timestamp":
		return KindDateTime
	case "datetimeoffset", "timestamptz", "timestamp with time zone":
		return KindDateTimeOffset
	case "time", "interval":
		return KindTimeSpan
	case "binary", "varbinary", "image", "bytea", "rowversion":
		return KindBytes
	case "uniqueidentifier", "uuid":
		return KindGUID
	default:
		return KindString
	}
}

// variantTypeName picks the type name written ahead of a variant value.
func variantTypeName(v any) string {
	switch x := v.(type) {
	case Variant:
		return x.TypeName
	case int16:
		return "smallint"
	case int32:
		return "int"
	case int64, int:
		return "bigint"
	case uint8:
		return "tinyint"
	case bool:
		return "bit"
	case float32:
		return "real"
	case float64:
		return "float"
	case decimal.Decimal:
		return "decimal"
	case SQLDecimal:
		return "numeric"
	case time.Time:
		return "datetime2"
	case time.Duration:
		return "time"
	case []byte:
		return "varbinary"
	case uuid.UUID:
		return "uniqueidentifier"
	default:
		return "nvarchar"
	}
}

// KindOf reports the kind a variant column stores v as.
func KindOf(v any) Kind {
	return KindFromSQLType(variantTypeName(v))
}
