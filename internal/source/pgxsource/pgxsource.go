// Package pgxsource adapts PostgreSQL query results read with pgx into typed
// rows ready for spooling.
package pgxsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"github.com/tuannm99/novaspool/internal/alias/util"
	"github.com/tuannm99/novaspool/internal/gologger"
	"github.com/tuannm99/novaspool/internal/record"
)

var logger = gologger.NewLogger()

var ErrUnsupportedValue = errors.New("pgxsource: value has no spool representation")

// money has no pgtype registration, so its values arrive as text
const (
	moneyOID = 790
	xmlOID   = 142
)

// default fractional second digits of timestamp and time columns
const defaultTimePrecision = 6

var _ record.RowProducer = (*Source)(nil)

// Querier is satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Source reads rows from an open pgx.Rows. Close must be called when the
// caller stops early; reaching the end closes the rows itself.
type Source struct {
	rows pgx.Rows
	cols []record.Column
}

// Query runs sql and returns a Source over its rows.
func Query(ctx context.Context, q Querier, sql string, args ...interface{}) (*Source, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgxsource: query: %w", err)
	}
	return New(rows, nil), nil
}

// New wraps rows. ci resolves type names of OIDs outside the built-in set;
// nil uses pgtype's default registrations.
func New(rows pgx.Rows, ci *pgtype.ConnInfo) *Source {
	if ci == nil {
		ci = pgtype.NewConnInfo()
	}
	fds := rows.FieldDescriptions()
	cols := make([]record.Column, len(fds))
	for i, fd := range fds {
		cols[i] = columnFor(fd, ci)
	}
	return &Source{rows: rows, cols: cols}
}

func (s *Source) Columns() []record.Column { return s.cols }

func (s *Source) NextRow(ctx context.Context) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.rows.Next() {
		s.rows.Close()
		if err := s.rows.Err(); err != nil {
			return nil, fmt.Errorf("pgxsource: %w", err)
		}
		logger.Debug().Str("tag", s.CommandTag()).Msg("rows exhausted")
		return nil, io.EOF
	}
	values, err := s.rows.Values()
	if err != nil {
		return nil, fmt.Errorf("pgxsource: values: %w", err)
	}
	for i, v := range values {
		if values[i], err = convert(v, s.cols[i]); err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrUnsupportedValue, s.cols[i].Name, err)
		}
	}
	return values, nil
}

func (s *Source) CommandTag() string {
	return s.rows.CommandTag().String()
}

func (s *Source) Close() {
	s.rows.Close()
}

// columnFor maps a result field to a spool column.
func columnFor(fd pgproto3.FieldDescription, ci *pgtype.ConnInfo) record.Column {
	col := record.Column{Name: string(fd.Name)}
	switch fd.DataTypeOID {
	case pgtype.Int2OID:
		col.SQLTypeName = "smallint"
	case pgtype.Int4OID:
		col.SQLTypeName = "int"
	case pgtype.Int8OID, pgtype.OIDOID:
		col.SQLTypeName = "bigint"
	case pgtype.BoolOID:
		col.SQLTypeName = "bit"
	case pgtype.Float4OID:
		col.SQLTypeName = "real"
	case pgtype.Float8OID:
		col.SQLTypeName = "float"
	case pgtype.NumericOID:
		col.SQLTypeName = "numeric"
		if precision, scale, ok := numericTypmod(fd.TypeModifier); ok {
			col.SQLTypeName = fmt.Sprintf("numeric(%d,%d)", precision, scale)
			col.NumericScale = util.Ptr(scale)
		}
	case moneyOID:
		col.SQLTypeName = "money"
	case pgtype.DateOID:
		col.SQLTypeName = "date"
	case pgtype.TimestampOID:
		col.SQLTypeName = "datetime2"
		col.NumericScale = util.Ptr(timePrecision(fd.TypeModifier))
	case pgtype.TimestamptzOID:
		col.SQLTypeName = "datetimeoffset"
		col.NumericScale = util.Ptr(timePrecision(fd.TypeModifier))
	case pgtype.TimeOID, pgtype.IntervalOID:
		col.SQLTypeName = "time"
	case pgtype.UUIDOID:
		col.SQLTypeName = "uniqueidentifier"
	case pgtype.ByteaOID:
		col.SQLTypeName = "varbinary(max)"
		col.IsLong = true
	case pgtype.TextOID, pgtype.JSONOID, pgtype.JSONBOID, xmlOID:
		col.SQLTypeName = "nvarchar(max)"
		col.IsLong = true
	default:
		if dt, ok := ci.DataTypeForOID(fd.DataTypeOID); ok {
			col.SQLTypeName = dt.Name
		} else {
			col.SQLTypeName = "nvarchar"
		}
	}
	col.Kind = record.KindFromSQLType(col.SQLTypeName)
	return col
}

// numericTypmod decodes numeric(p,s); -1 means unconstrained.
func numericTypmod(typmod int32) (precision, scale int, ok bool) {
	if typmod < 4 {
		return 0, 0, false
	}
	mod := typmod - 4
	return int(mod>>16) & 0xFFFF, int(mod) & 0xFFFF, true
}

func timePrecision(typmod int32) int {
	if typmod < 0 {
		return defaultTimePrecision
	}
	return int(typmod)
}

// convert turns pgx's decoded value into one the record codec accepts for col.
func convert(v any, col record.Column) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case pgtype.Numeric:
		return numericValue(x)
	case *pgtype.Numeric:
		return numericValue(*x)
	case [16]byte:
		return uuid.UUID(x), nil
	case pgtype.Interval:
		months := time.Duration(x.Months) * 30 * 24 * time.Hour
		return months + time.Duration(x.Days)*24*time.Hour + time.Duration(x.Microseconds)*time.Microsecond, nil
	case pgtype.Time:
		return time.Duration(x.Microseconds) * time.Microsecond, nil
	case pgtype.InfinityModifier:
		return nil, fmt.Errorf("infinite %s", col.SQLTypeName)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case string:
		if col.Kind == record.KindMoney {
			return parseMoney(x)
		}
		return x, nil
	case uint32:
		return int64(x), nil
	}
	return v, nil
}

func numericValue(n pgtype.Numeric) (any, error) {
	if n.Status != pgtype.Present {
		return nil, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.None {
		return nil, errors.New("NaN or infinite numeric")
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

// parseMoney reads the text form of money, e.g. "$1,234.56" or "-$0.50".
// It assumes '.' as the decimal point.
func parseMoney(s string) (decimal.Decimal, error) {
	neg := strings.HasPrefix(s, "-") || (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
	var sb strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			sb.WriteRune(r)
		}
	}
	d, err := decimal.NewFromString(sb.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("money %q: %w", s, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}
