package memstore

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/ryszard/goskiplist/skiplist"

	"github.com/meltwater/hbase-scripts/protocol"
	"github.com/meltwater/hbase-scripts/store"
)

const defaultPageSize = 100

var ErrClosed = errors.New("memstore: table is closed")

func init() {
	store.Register("memory", func(_ context.Context, _ *url.URL, table string) (store.Table, error) {
		return New(table), nil
	})
}

// Stats counts the calls a Table received.
type Stats struct {
	Puts    int
	Batches []int
	Exists  int
	Flushes int
	SkipWAL int
}

// Writes is the number of rows written by Put and PutBatch together.
func (s Stats) Writes() int {
	n := s.Puts
	for _, b := range s.Batches {
		n += b
	}
	return n
}

// Table is an ordered in-memory table. It records every write call in
// Stats, which makes it the reference backend for tests.
type Table struct {
	name string

	mu     sync.RWMutex
	rows   *skiplist.SkipList // string -> map[protocol.Column][]byte
	stats  Stats
	closed bool
}

func New(name string) *Table {
	return &Table{
		name: name,
		rows: skiplist.NewStringMap(),
	}
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Scan(_ context.Context, scan *store.Scan) (store.Scanner, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrClosed
	}

	pageSize := scan.Caching
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &scanner{
		table:    t,
		next:     scan.StartRow,
		stop:     scan.StopRow,
		columns:  append([]protocol.Column(nil), scan.Columns...),
		pageSize: pageSize,
	}, nil
}

func (t *Table) Put(_ context.Context, put *store.Put) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.put(put)
	t.stats.Puts++
	return nil
}

func (t *Table) PutBatch(_ context.Context, puts []*store.Put) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	for _, p := range puts {
		t.put(p)
	}
	t.stats.Batches = append(t.stats.Batches, len(puts))
	return nil
}

// put merges the cells into the row, like an HBase Put does.
func (t *Table) put(p *store.Put) {
	key := string(p.Key)
	var cells map[protocol.Column][]byte
	if v, ok := t.rows.Get(key); ok {
		cells = v.(map[protocol.Column][]byte)
	} else {
		cells = make(map[protocol.Column][]byte, len(p.Cells))
		t.rows.Set(key, cells)
	}
	for _, c := range p.Cells {
		cells[c.Column] = append([]byte(nil), c.Value...)
	}
	if p.SkipWAL {
		t.stats.SkipWAL++
	}
}

func (t *Table) Exists(_ context.Context, key []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, ErrClosed
	}
	t.stats.Exists++
	_, ok := t.rows.Get(string(key))
	return ok, nil
}

func (t *Table) Flush(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.stats.Flushes++
	return nil
}

func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Stats returns a copy of the call counters. It works after Close.
func (t *Table) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.stats
	s.Batches = append([]int(nil), t.stats.Batches...)
	return s
}

func (t *Table) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows.Len()
}

// Get returns a copy of the cells of a row. It works after Close.
func (t *Table) Get(key string) (map[protocol.Column][]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows.Get(key)
	if !ok {
		return nil, false
	}
	return store.FilterCells(v.(map[protocol.Column][]byte), nil), true
}

// Keys returns all row keys in order. It works after Close.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, t.rows.Len())
	if t.rows.Len() == 0 {
		return keys
	}
	it := t.rows.SeekToFirst()
	defer it.Close()
	for ok := true; ok; ok = it.Next() {
		keys = append(keys, it.Key().(string))
	}
	return keys
}

type scanner struct {
	table    *Table
	next     string // first key of the next page
	stop     string
	columns  []protocol.Column
	pageSize int

	page []*store.Result
	done bool
}

func (s *scanner) Next() (*store.Result, error) {
	if len(s.page) == 0 && !s.done {
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

// fetch loads the next page of at most pageSize rows.
func (s *scanner) fetch() error {
	t := s.table
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}

	it := t.rows.Seek(s.next)
	if it == nil {
		s.done = true
		return nil
	}
	defer it.Close()

	for ok := true; ok; ok = it.Next() {
		key := it.Key().(string)
		if s.stop != "" && key >= s.stop {
			s.done = true
			return nil
		}
		if len(s.page) == s.pageSize {
			s.next = key
			return nil
		}
		s.page = append(s.page, &store.Result{
			Key:   []byte(key),
			Cells: store.FilterCells(it.Value().(map[protocol.Column][]byte), s.columns),
		})
	}
	s.done = true
	return nil
}

func (s *scanner) Close() error {
	s.page = nil
	s.done = true
	return nil
}
