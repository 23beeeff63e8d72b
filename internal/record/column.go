package record

// NullDisplay is the display text of every null cell.
const NullDisplay = "NULL"

// Column describes one result column. The same column list must be used to
// write and to read a spool file; the file carries no header of its own.
type Column struct {
	Name        string
	Kind        Kind
	SQLTypeName string

	// IsLong marks max-length text/binary columns; their display text may be
	// capped by FormatOptions.MaxLongDisplayChars.
	IsLong bool

	// IsVariant columns carry a per-row type name ahead of the value.
	IsVariant bool

	// NumericScale is the declared scale (fractional digits) when the source
	// reported one. Temporal columns use it as display precision.
	NumericScale *int
}

// NewColumn builds a column whose kind is derived from its SQL type name.
func NewColumn(name, sqlType string) Column {
	return Column{
		Name:        name,
		Kind:        KindFromSQLType(sqlType),
		SQLTypeName: sqlType,
	}
}

// Names returns the column names in order.
func Names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Cell is one decoded value.
type Cell struct {
	// Raw is the typed value, nil iff IsNull.
	Raw any
	// Display is the locale-formatted text.
	Display string
	// InvariantDisplay is set for fractional numbers, whose text differs by locale.
	InvariantDisplay string
	IsNull           bool
	RowID            int64
}

// NullCell returns the canonical null cell.
func NullCell(rowID int64) Cell {
	return Cell{Display: NullDisplay, IsNull: true, RowID: rowID}
}

// EmptyCell returns a non-null cell with empty text.
func EmptyCell(rowID int64) Cell {
	return Cell{Raw: "", RowID: rowID}
}

// Invariant returns the culture-independent text, falling back to Display.
func (c Cell) Invariant() string {
	if c.InvariantDisplay != "" {
		return c.InvariantDisplay
	}
	return c.Display
}
