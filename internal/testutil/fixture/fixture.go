package fixture

import (
	"testing"

	"github.com/danmuck/defmt-print/internal/table"
)

// Indices of the entries in Entries.
const (
	Hello   uint64 = 1
	Coords  uint64 = 2
	Sensor  uint64 = 3
	Intern  uint64 = 4
	Blob    uint64 = 5
	Point   uint64 = 6
	Wrapped uint64 = 7
	Varints uint64 = 8
	Stamp   uint64 = 9
)

// Entries is a small table covering every argument kind.
func Entries() map[uint64]table.Entry {
	return map[uint64]table.Entry{
		Hello:   {Tag: table.TagInfo, Format: "Hello, world!", Package: "app"},
		Coords:  {Tag: table.TagWarn, Format: "x={=u8} y={=i16}", Package: "app"},
		Sensor:  {Tag: table.TagError, Format: "temp {=f32} ok={=bool} name={=str}", Package: "app"},
		Intern:  {Tag: table.TagStr, Format: "interned", Package: "app"},
		Blob:    {Tag: table.TagDebug, Format: "msg {=istr} data={=[u8]:#x}", Package: "app"},
		Point:   {Tag: table.TagFmt, Format: "Point {{ x: {=i32}, y: {=i32} }}", Package: "app"},
		Wrapped: {Tag: table.TagTrace, Format: "nested {=?}", Package: "app"},
		Varints: {Tag: table.TagInfo, Format: "{=usize} {=isize} {=char:?}", Package: "app"},
	}
}

// Table builds the fixture table without a timestamp entry.
func Table(t testing.TB) *table.Table {
	t.Helper()
	tbl, err := table.New("0.2", Entries())
	if err != nil {
		t.Fatalf("fixture table: %v", err)
	}
	return tbl
}

// TimestampTable builds the fixture table with a microsecond timestamp at Stamp.
func TimestampTable(t testing.TB) *table.Table {
	t.Helper()
	entries := Entries()
	entries[Stamp] = table.Entry{Tag: table.TagTimestamp, Format: "{=u64:us}", Package: "app"}
	tbl, err := table.New("0.2", entries)
	if err != nil {
		t.Fatalf("fixture timestamp table: %v", err)
	}
	return tbl
}
