package store

import (
	"context"

	"github.com/meltwater/hbase-scripts/protocol"
)

// Cell is one stored value.
type Cell struct {
	protocol.Column
	Value []byte
}

// Result is one row returned by a scan. Cells holds only the columns that
// exist for the row.
type Result struct {
	Key   []byte
	Cells map[protocol.Column][]byte
}

// Value returns the cell at col, or nil when the row has no such cell.
func (r *Result) Value(col protocol.Column) []byte {
	return r.Cells[col]
}

// Scan describes a range scan. StartRow is inclusive and StopRow exclusive;
// an empty StopRow scans to the end of the table.
// Caching is a page-size hint; values <= 0 leave the backend default.
type Scan struct {
	StartRow string
	StopRow  string
	Columns  []protocol.Column
	Caching  int
}

// Put writes the cells of one row. SkipWAL trades durability for throughput
// on backends that have a write-ahead log.
type Put struct {
	Key     []byte
	Cells   []Cell
	SkipWAL bool
}

// Scanner iterates a scan in ascending key order. Next returns io.EOF after
// the last row.
type Scanner interface {
	Next() (*Result, error)
	Close() error
}

type Source interface {
	Scan(ctx context.Context, scan *Scan) (Scanner, error)
}

type Destination interface {
	Put(ctx context.Context, put *Put) error
	PutBatch(ctx context.Context, puts []*Put) error
	Exists(ctx context.Context, key []byte) (bool, error)
	// Flush makes every accepted put durable.
	Flush(ctx context.Context) error
	Close() error
}

// Table is a store that can be read from and written to.
type Table interface {
	Source
	Destination
}

func inColumns(columns []protocol.Column, c protocol.Column) bool {
	if len(columns) == 0 {
		return true
	}
	for _, col := range columns {
		if col == c {
			return true
		}
	}
	return false
}

// FilterCells keeps the cells that belong to one of columns. An empty
// columns list keeps everything.
func FilterCells(cells map[protocol.Column][]byte, columns []protocol.Column) map[protocol.Column][]byte {
	out := make(map[protocol.Column][]byte, len(cells))
	for c, v := range cells {
		if inColumns(columns, c) {
			out[c] = v
		}
	}
	return out
}
