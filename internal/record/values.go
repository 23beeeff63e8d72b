package record

import (
	"time"

	"github.com/shopspring/decimal"
)

// SQLDecimal is a decimal with its declared precision and scale.
type SQLDecimal struct {
	Precision uint8
	Scale     uint8
	Value     decimal.Decimal
}

// String renders the value with exactly Scale fractional digits.
func (d SQLDecimal) String() string {
	return d.Value.StringFixed(int32(d.Scale))
}

// Variant pins the type name of a value written to a variant column.
// Plain Go values are accepted too; their type name is inferred.
type Variant struct {
	TypeName string
	Value    any
}

// Ticks are 100ns intervals since 0001-01-01T00:00:00.
const (
	ticksPerSecond = int64(10_000_000)
	ticksPerDay    = 24 * 60 * 60 * ticksPerSecond

	// seconds between 0001-01-01 and the Unix epoch
	unixEpochSeconds = int64(62_135_596_800)
)

// timeToTicks converts the wall clock of t, ignoring its zone.
func timeToTicks(t time.Time) int64 {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return (wall.Unix()+unixEpochSeconds)*ticksPerSecond + int64(wall.Nanosecond()/100)
}

// ticksToTime returns the wall clock as a UTC time.
func ticksToTime(ticks int64) time.Time {
	sec := ticks/ticksPerSecond - unixEpochSeconds
	nsec := (ticks % ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}

func durationToTicks(d time.Duration) int64 { return int64(d / 100) }
func ticksToDuration(t int64) time.Duration { return time.Duration(t) * 100 }
