package redisstore

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/meltwater/hbase-scripts/protocol"
	"github.com/meltwater/hbase-scripts/store"
)

const defaultPageSize = 500

func init() {
	store.Register("redis", func(ctx context.Context, u *url.URL, table string) (store.Table, error) {
		opts, err := redis.ParseURL(u.String())
		if err != nil {
			return nil, errors.Wrap(err, "redisstore: parse url")
		}
		return Open(ctx, redis.NewClient(opts), table)
	})
}

// Table keeps every row key in a sorted set with score 0, so ZRANGEBYLEX
// walks keys in byte order, and the cells of a row in a hash whose fields are
// "family:qualifier".
//
// Redis persistence (AOF/RDB) is configured on the server; SkipWAL has no
// per-write equivalent and is ignored.
type Table struct {
	rdb  *redis.Client
	name string
}

// Open checks that the server answers and returns a Table using rdb.
func Open(ctx context.Context, rdb *redis.Client, table string) (*Table, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redisstore: ping")
	}
	return &Table{rdb: rdb, name: table}, nil
}

func (t *Table) indexKey() string {
	return t.name + ":keys"
}

func (t *Table) rowKey(key []byte) string {
	return t.name + ":row:" + string(key)
}

func (t *Table) queuePut(ctx context.Context, pipe redis.Pipeliner, p *store.Put) {
	fields := make(map[string]interface{}, len(p.Cells))
	for _, c := range p.Cells {
		fields[c.Column.String()] = c.Value
	}
	if len(fields) > 0 {
		pipe.HSet(ctx, t.rowKey(p.Key), fields)
	}
	pipe.ZAdd(ctx, t.indexKey(), &redis.Z{Score: 0, Member: string(p.Key)})
}

func (t *Table) Put(ctx context.Context, put *store.Put) error {
	return t.PutBatch(ctx, []*store.Put{put})
}

// PutBatch sends the batch as one MULTI/EXEC transaction.
func (t *Table) PutBatch(ctx context.Context, puts []*store.Put) error {
	if len(puts) == 0 {
		return nil
	}
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range puts {
			t.queuePut(ctx, pipe, p)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "redisstore: write %d rows", len(puts))
	}
	return nil
}

func (t *Table) Exists(ctx context.Context, key []byte) (bool, error) {
	_, err := t.rdb.ZScore(ctx, t.indexKey(), string(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "redisstore: exists %q", key)
	}
	return true, nil
}

// Flush is a no-op: PutBatch returns after EXEC.
func (t *Table) Flush(_ context.Context) error {
	return nil
}

func (t *Table) Close() error {
	return t.rdb.Close()
}

func (t *Table) Scan(ctx context.Context, scan *store.Scan) (store.Scanner, error) {
	pageSize := scan.Caching
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	stop := "+"
	if scan.StopRow != "" {
		stop = "(" + scan.StopRow
	}
	return &scanner{
		ctx:      ctx,
		table:    t,
		min:      "[" + scan.StartRow,
		max:      stop,
		columns:  append([]protocol.Column(nil), scan.Columns...),
		pageSize: pageSize,
	}, nil
}

type scanner struct {
	ctx      context.Context
	table    *Table
	min, max string
	columns  []protocol.Column
	pageSize int

	page []*store.Result
	done bool
}

func (s *scanner) Next() (*store.Result, error) {
	for len(s.page) == 0 && !s.done {
		if err := s.fetch(); err != nil {
			return nil, err
		}
	}
	if len(s.page) == 0 {
		return nil, io.EOF
	}
	r := s.page[0]
	s.page = s.page[1:]
	return r, nil
}

func (s *scanner) fetch() error {
	t := s.table
	keys, err := t.rdb.ZRangeByLex(s.ctx, t.indexKey(), &redis.ZRangeBy{
		Min:   s.min,
		Max:   s.max,
		Count: int64(s.pageSize),
	}).Result()
	if err != nil {
		return errors.Wrap(err, "redisstore: range keys")
	}
	if len(keys) < s.pageSize {
		s.done = true
	}
	if len(keys) == 0 {
		return nil
	}
	s.min = "(" + keys[len(keys)-1]

	pipe := t.rdb.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(s.ctx, t.rowKey([]byte(k)))
	}
	if _, err := pipe.Exec(s.ctx); err != nil && err != redis.Nil {
		return errors.Wrap(err, "redisstore: read rows")
	}

	for i, k := range keys {
		fields, err := cmds[i].Result()
		if err != nil {
			return errors.Wrapf(err, "redisstore: read row %q", k)
		}
		cells := make(map[protocol.Column][]byte, len(fields))
		for f, v := range fields {
			parts := strings.SplitN(f, ":", 2)
			if len(parts) != 2 {
				continue
			}
			cells[protocol.Column{Family: parts[0], Qualifier: parts[1]}] = []byte(v)
		}
		s.page = append(s.page, &store.Result{
			Key:   []byte(k),
			Cells: store.FilterCells(cells, s.columns),
		})
	}
	return nil
}

func (s *scanner) Close() error {
	s.page = nil
	s.done = true
	return nil
}
