// Package storetest holds behaviour checks every store backend must pass.
package storetest

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meltwater/hbase-scripts/protocol"
	"github.com/meltwater/hbase-scripts/store"
)

var (
	colTitle = protocol.Column{Family: "fm_contents", Qualifier: "title"}
	colBody  = protocol.Column{Family: "fm_contents", Qualifier: "bodyText"}
	colOther = protocol.Column{Family: "other", Qualifier: "ignored"}
)

func put(key, title string) *store.Put {
	return &store.Put{
		Key: []byte(key),
		Cells: []store.Cell{
			{Column: colTitle, Value: []byte(title)},
			{Column: colBody, Value: []byte("body of " + key + "\nsecond line")},
			{Column: colOther, Value: []byte("x")},
		},
		SkipWAL: true,
	}
}

func scanAll(t *testing.T, s store.Scanner) []*store.Result {
	t.Helper()
	var out []*store.Result
	for {
		r, err := s.Next()
		if err == io.EOF {
			break
		}
		require.Nil(t, err)
		out = append(out, r)
	}
	require.Nil(t, s.Close())
	return out
}

// RunTableTests runs the backend checks against tables created by open.
// Every call of open must return an empty table.
func RunTableTests(t *testing.T, open func(t *testing.T) store.Table) {
	t.Run("scan returns rows in key order within range", func(t *testing.T) {
		ctx := context.Background()
		tbl := open(t)
		defer tbl.Close()

		// inserted out of order
		for _, k := range []string{"130000000500000002", "130000000000000000", "129999999999999999",
			"130000001099zzzzzz", "130000000500000001", "130000001100000000"} {
			require.Nil(t, tbl.Put(ctx, put(k, "t-"+k)))
		}

		kr := protocol.Plan(protocol.RangeRequest{Start: 1300000000, End: 1300000010})
		sc, err := tbl.Scan(ctx, &store.Scan{
			StartRow: kr.StartKey,
			StopRow:  kr.EndKey,
			Columns:  []protocol.Column{colTitle, colBody},
			Caching:  2,
		})
		require.Nil(t, err)
		got := scanAll(t, sc)

		var keys []string
		for _, r := range got {
			keys = append(keys, string(r.Key))
		}
		assert.Equal(t, []string{"130000000000000000", "130000000500000001", "130000000500000002"}, keys)

		first := got[0]
		assert.Equal(t, "t-130000000000000000", string(first.Value(colTitle)))
		assert.Equal(t, "body of 130000000000000000\nsecond line", string(first.Value(colBody)))
		assert.Nil(t, first.Value(colOther), "columns outside the scan are dropped")
	})

	t.Run("scan of empty range", func(t *testing.T) {
		ctx := context.Background()
		tbl := open(t)
		defer tbl.Close()
		require.Nil(t, tbl.Put(ctx, put("200000000000000000", "x")))

		kr := protocol.Plan(protocol.NewRangeRequest(100, 10))
		sc, err := tbl.Scan(ctx, &store.Scan{StartRow: kr.StartKey, StopRow: kr.EndKey})
		require.Nil(t, err)
		assert.Empty(t, scanAll(t, sc))
	})

	t.Run("batch put, exists and paging", func(t *testing.T) {
		ctx := context.Background()
		tbl := open(t)
		defer tbl.Close()

		const n = 25
		var puts []*store.Put
		for i := 0; i < n; i++ {
			puts = append(puts, put(fmt.Sprintf("1300000000%08d", i), fmt.Sprint(i)))
		}
		require.Nil(t, tbl.PutBatch(ctx, puts))
		require.Nil(t, tbl.PutBatch(ctx, nil))
		require.Nil(t, tbl.Flush(ctx))

		ok, err := tbl.Exists(ctx, []byte("130000000000000007"))
		require.Nil(t, err)
		assert.True(t, ok)
		ok, err = tbl.Exists(ctx, []byte("130000000000000099"))
		require.Nil(t, err)
		assert.False(t, ok)

		for _, caching := range []int{-1, 1, 7, 25, 100} {
			sc, err := tbl.Scan(ctx, &store.Scan{StartRow: "1300000000", StopRow: "1300000001", Caching: caching})
			require.Nil(t, err)
			got := scanAll(t, sc)
			require.Len(t, got, n, "caching=%d", caching)
			for i, r := range got {
				assert.Equal(t, fmt.Sprintf("1300000000%08d", i), string(r.Key))
			}
		}
	})

	t.Run("put merges cells of an existing row", func(t *testing.T) {
		ctx := context.Background()
		tbl := open(t)
		defer tbl.Close()

		require.Nil(t, tbl.Put(ctx, put("130000000000000001", "old")))
		require.Nil(t, tbl.Put(ctx, &store.Put{
			Key:   []byte("130000000000000001"),
			Cells: []store.Cell{{Column: colTitle, Value: []byte("new")}},
		}))

		sc, err := tbl.Scan(ctx, &store.Scan{StartRow: "130000000000000001", StopRow: "130000000000000002"})
		require.Nil(t, err)
		got := scanAll(t, sc)
		require.Len(t, got, 1)
		assert.Equal(t, "new", string(got[0].Value(colTitle)))
		assert.Equal(t, "body of 130000000000000001\nsecond line", string(got[0].Value(colBody)))
	})
}
