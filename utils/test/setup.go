package test

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meltwater/hbase-scripts/protocol"
	"github.com/meltwater/hbase-scripts/store"
)

// RowKey builds a key the way the buzz tables do: a 10-digit epoch second
// followed by an 8-character suffix.
func RowKey(ts int64, i int) string {
	return fmt.Sprintf("%d%08d", ts, i)
}

// Value is the deterministic content of a seeded cell.
func Value(key string, col protocol.Column) []byte {
	return []byte(key + "/" + col.Qualifier)
}

// SeedRows writes perSecond rows for every second in [startTs, startTs+seconds)
// with all schema columns set, and returns the keys in ascending order.
func SeedRows(t *testing.T, dest store.Destination, schema *protocol.ProtocolSchema,
	startTs int64, seconds, perSecond int,
) []string {
	t.Helper()

	columns := schema.FieldsWithFamily()
	keys := make([]string, 0, seconds*perSecond)
	puts := make([]*store.Put, 0, seconds*perSecond)
	for s := 0; s < seconds; s++ {
		for i := 0; i < perSecond; i++ {
			key := RowKey(startTs+int64(s), i)
			cells := make([]store.Cell, len(columns))
			for j, col := range columns {
				cells[j] = store.Cell{Column: col, Value: Value(key, col)}
			}
			keys = append(keys, key)
			puts = append(puts, &store.Put{Key: []byte(key), Cells: cells, SkipWAL: true})
		}
	}
	require.Nil(t, dest.PutBatch(context.Background(), puts))
	return keys
}

// Listen opens a listener on a free loopback port.
func Listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	return ln
}

// ClosedAddr returns a loopback address nothing listens on.
func ClosedAddr(t *testing.T) string {
	t.Helper()
	ln := Listen(t)
	addr := ln.Addr().String()
	require.Nil(t, ln.Close())
	return addr
}
