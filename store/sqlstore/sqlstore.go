package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/meltwater/hbase-scripts/protocol"
	"github.com/meltwater/hbase-scripts/store"
)

const defaultPageSize = 1000

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	store.Register("sqlite", func(ctx context.Context, u *url.URL, table string) (store.Table, error) {
		return Open(ctx, dsnFromURL(u), table)
	})
}

// dsnFromURL maps sqlite:///abs/path.db, sqlite://rel/path.db and
// sqlite::memory: to a driver DSN. A bare sqlite:// is an in-memory database.
func dsnFromURL(u *url.URL) string {
	dsn := u.Host + u.Path
	if u.Opaque != "" {
		dsn = u.Opaque
	}
	if dsn == "" {
		dsn = ":memory:"
	}
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	}
	return dsn
}

// Table stores cells in a single SQLite table keyed by
// (row_key, family, qualifier). Row keys compare as BLOBs, which is the same
// byte order an HBase region uses.
type Table struct {
	db   *sql.DB
	name string

	synchronous string // current PRAGMA synchronous value
}

// Open opens the SQLite database at dsn and creates the cell table if it
// does not exist.
func Open(ctx context.Context, dsn, table string) (*Table, error) {
	if !tableNameRegex.MatchString(table) {
		return nil, errors.Errorf("sqlstore: invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: open database")
	}
	// one connection: PRAGMAs are per connection and :memory: databases are
	// private to the connection that created them
	db.SetMaxOpenConns(1)

	t := &Table{db: db, name: table}
	if err := t.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	row_key   BLOB NOT NULL,
	family    TEXT NOT NULL,
	qualifier TEXT NOT NULL,
	value     BLOB NOT NULL,
	PRIMARY KEY (row_key, family, qualifier)
) WITHOUT ROWID`, t.name)
	if _, err := t.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "sqlstore: create table %s", t.name)
	}
	return nil
}

// setSynchronous maps the WAL flag of a put onto SQLite's sync mode.
func (t *Table) setSynchronous(ctx context.Context, skipWAL bool) error {
	mode := "FULL"
	if skipWAL {
		mode = "OFF"
	}
	if mode == t.synchronous {
		return nil
	}
	if _, err := t.db.ExecContext(ctx, "PRAGMA synchronous = "+mode); err != nil {
		return errors.Wrap(err, "sqlstore: set synchronous")
	}
	t.synchronous = mode
	return nil
}

func (t *Table) Put(ctx context.Context, put *store.Put) error {
	return t.PutBatch(ctx, []*store.Put{put})
}

// PutBatch writes all puts in one transaction. The batch runs with WAL
// semantics unless every put asks to skip it.
func (t *Table) PutBatch(ctx context.Context, puts []*store.Put) error {
	if len(puts) == 0 {
		return nil
	}
	skipWAL := true
	for _, p := range puts {
		skipWAL = skipWAL && p.SkipWAL
	}
	if err := t.setSynchronous(ctx, skipWAL); err != nil {
		return err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlstore: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s(row_key, family, qualifier, value) VALUES(?, ?, ?, ?)`, t.name))
	if err != nil {
		return errors.Wrap(err, "sqlstore: prepare insert")
	}
	defer stmt.Close()

	for _, p := range puts {
		for _, c := range p.Cells {
			value := c.Value
			if value == nil {
				value = []byte{}
			}
			if _, err := stmt.ExecContext(ctx, p.Key, c.Family, c.Qualifier, value); err != nil {
				return errors.Wrapf(err, "sqlstore: insert row %q", p.Key)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlstore: commit")
	}
	return nil
}

func (t *Table) Exists(ctx context.Context, key []byte) (bool, error) {
	var one int
	err := t.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE row_key = ? LIMIT 1`, t.name), key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "sqlstore: exists %q", key)
	}
	return true, nil
}

// Flush is a no-op: PutBatch commits before it returns.
func (t *Table) Flush(_ context.Context) error {
	return nil
}

func (t *Table) Close() error {
	return t.db.Close()
}

func (t *Table) Scan(ctx context.Context, scan *store.Scan) (store.Scanner, error) {
	pageSize := scan.Caching
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &scanner{
		ctx:      ctx,
		table:    t,
		next:     []byte(scan.StartRow),
		stop:     []byte(scan.StopRow),
		columns:  append([]protocol.Column(nil), scan.Columns...),
		pageSize: pageSize,
	}, nil
}

// scanner reads one page of row keys at a time, then the cells of those
// rows, so a page never holds more than pageSize rows.
type scanner struct {
	ctx      context.Context
	table    *Table
	next     []byte
	stop     []byte
	columns  []protocol.Column
	pageSize int

	started bool
	page    []*store.Result
	done    bool
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

func (s *scanner) keyBounds() (string, []interface{}) {
	op := ">="
	if s.started {
		op = ">"
	}
	where := "row_key " + op + " ?"
	args := []interface{}{s.next}
	if len(s.stop) > 0 {
		where += " AND row_key < ?"
		args = append(args, s.stop)
	}
	return where, args
}

func (s *scanner) columnFilter() (string, []interface{}) {
	if len(s.columns) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(s.columns))
	args := make([]interface{}, 0, 2*len(s.columns))
	for _, c := range s.columns {
		conds = append(conds, "(family = ? AND qualifier = ?)")
		args = append(args, c.Family, c.Qualifier)
	}
	return " AND (" + strings.Join(conds, " OR ") + ")", args
}

func (s *scanner) fetch() error {
	where, args := s.keyBounds()
	colWhere, colArgs := s.columnFilter()

	rows, err := s.table.db.QueryContext(s.ctx, fmt.Sprintf(
		`SELECT DISTINCT row_key FROM %s WHERE %s%s ORDER BY row_key LIMIT ?`,
		s.table.name, where, colWhere), append(append(args, colArgs...), s.pageSize)...)
	if err != nil {
		return errors.Wrap(err, "sqlstore: scan keys")
	}
	var keys [][]byte
	for rows.Next() {
		var k []byte
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return errors.Wrap(err, "sqlstore: scan key")
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "sqlstore: scan keys")
	}

	if len(keys) < s.pageSize {
		s.done = true
	}
	if len(keys) == 0 {
		return nil
	}

	first, last := keys[0], keys[len(keys)-1]
	cellArgs := append([]interface{}{first, last}, colArgs...)
	cells, err := s.table.db.QueryContext(s.ctx, fmt.Sprintf(
		`SELECT row_key, family, qualifier, value FROM %s WHERE row_key >= ? AND row_key <= ?%s ORDER BY row_key`,
		s.table.name, colWhere), cellArgs...)
	if err != nil {
		return errors.Wrap(err, "sqlstore: scan cells")
	}
	defer cells.Close()

	var cur *store.Result
	for cells.Next() {
		var (
			key   []byte
			col   protocol.Column
			value []byte
		)
		if err := cells.Scan(&key, &col.Family, &col.Qualifier, &value); err != nil {
			return errors.Wrap(err, "sqlstore: scan cell")
		}
		if cur == nil || string(cur.Key) != string(key) {
			cur = &store.Result{Key: key, Cells: map[protocol.Column][]byte{}}
			s.page = append(s.page, cur)
		}
		cur.Cells[col] = value
	}
	if err := cells.Err(); err != nil {
		return errors.Wrap(err, "sqlstore: scan cells")
	}

	s.started = true
	s.next = last
	return nil
}

func (s *scanner) Close() error {
	s.page = nil
	s.done = true
	return nil
}
