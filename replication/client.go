package replication

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/meltwater/hbase-scripts/metrics"
	"github.com/meltwater/hbase-scripts/protocol"
	"github.com/meltwater/hbase-scripts/store"
	"github.com/meltwater/hbase-scripts/utils/log"
)

const (
	DefaultRetries       = 3
	DefaultRetryInterval = 3 * time.Second
)

type ClientOptions struct {
	Addr      string
	Timestamp int64
	Interval  int64
	// DryRun only checks which rows already exist in the destination.
	DryRun         bool
	WriteToWAL     bool
	FlushThreshold int
	// Retries is the total number of attempts.
	Retries        int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Handshake      protocol.Handshake
}

// Report sums up a finished run. The counters come from the attempt that
// succeeded.
type Report struct {
	// New and Duplicates are only counted by a dry run.
	New        int
	Duplicates int
	Written    int
	Batches    int
	ShortRows  int
	Attempts   int
	LastKey    string
	Elapsed    time.Duration
}

// Client requests one time range from a Server and copies the rows it
// receives into a destination table.
type Client struct {
	schema  *protocol.ProtocolSchema
	columns []protocol.Column
	dest    store.Destination
	opts    ClientOptions
	dialer  *net.Dialer
}

func NewClient(schema *protocol.ProtocolSchema, dest store.Destination, opts ClientOptions) *Client {
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = DefaultFlushThreshold
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.RetryInterval < 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	return &Client{
		schema:  schema,
		columns: schema.FieldsWithFamily(),
		dest:    dest,
		opts:    opts,
		dialer:  &net.Dialer{Timeout: opts.ConnectTimeout},
	}
}

// Run replicates the configured range and closes the destination. A failed
// attempt is retried from the start of the range. Rows still buffered when
// Run gives up are not written.
func (c *Client) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	req := protocol.NewRangeRequest(c.opts.Timestamp, c.opts.Interval)

	var (
		report   *Report
		attempts int
	)
	retryer := NewRetryer(func(ctx context.Context) error {
		attempts++
		s := c.newSession(start)
		err := s.run(ctx, req)
		if err != nil {
			s.batch.Discard()
			return err
		}
		report = s.report
		return nil
	}, c.opts.RetryInterval, 1, c.opts.Retries)

	if err := retryer.Run(ctx); err != nil {
		if cerr := c.dest.Close(); cerr != nil {
			log.Error("failed to close the destination table: %v", cerr)
		}
		return nil, err
	}

	if err := c.drain(ctx); err != nil {
		return nil, err
	}
	report.Attempts = attempts
	report.Elapsed = time.Since(start)

	if c.opts.DryRun {
		log.Info("dry run done. new=%s, dupes=%s, time=%v",
			humanize.Comma(int64(report.New)), humanize.Comma(int64(report.Duplicates)), report.Elapsed)
	} else {
		log.Info("replication done. %s rows in %d batches, time=%v, last row=%s",
			humanize.Comma(int64(report.Written)), report.Batches, report.Elapsed, report.LastKey)
	}
	return report, nil
}

// drain flushes and closes the destination once the last batch is written.
// A dry run only closes it.
func (c *Client) drain(ctx context.Context) error {
	if c.opts.DryRun {
		return errors.Wrap(c.dest.Close(), "failed to close the destination table")
	}
	if err := c.dest.Flush(ctx); err != nil {
		_ = c.dest.Close()
		return errors.Wrap(err, "failed to flush the destination table")
	}
	return errors.Wrap(c.dest.Close(), "failed to close the destination table")
}

func (c *Client) newSession(start time.Time) *session {
	return &session{
		client: c,
		batch:  NewWriteBatch(c.dest, c.opts.FlushThreshold),
		start:  start,
		report: &Report{},
	}
}

// session is one connection attempt.
type session struct {
	client *Client
	batch  *WriteBatch
	start  time.Time
	report *Report
}

func (s *session) run(ctx context.Context, req protocol.RangeRequest) error {
	c := s.client

	conn, err := c.dialer.DialContext(ctx, "tcp", c.opts.Addr)
	if err != nil {
		metrics.ClientConnectAttemptsTotal.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "connect canceled")
		}
		return errors.Wrapf(ErrRetryable, "failed to connect to %s: %v", c.opts.Addr, err)
	}
	metrics.ClientConnectAttemptsTotal.WithLabelValues("ok").Inc()
	defer conn.Close()
	stop := closeOnDone(ctx, conn)
	defer stop()

	log.Info("connected to %s, asking for range %d to %d", c.opts.Addr, req.Start, req.End)
	dc := &deadlineConn{Conn: conn, readTimeout: c.opts.ReadTimeout, writeTimeout: c.opts.ReadTimeout}
	dec := protocol.NewDecoder(dc)
	enc := protocol.NewEncoder(dc)

	if err := protocol.WriteRequest(enc, req, c.schema.Version(), c.opts.Handshake); err != nil {
		return s.streamError(ctx, err, "failed to send the range request")
	}
	if c.opts.Handshake {
		v, err := protocol.ReadVersion(dec)
		if errors.Is(err, protocol.ErrMalformedRequest) {
			// a legacy server streams rows right away
			return errors.Wrapf(protocol.ErrIncompatibleVersion, "server did not send a version line: %v", err)
		}
		if err != nil {
			return s.streamError(ctx, err, "failed to read the server protocol version")
		}
		if !c.schema.IsCompatible(v) {
			return errors.Wrapf(protocol.ErrIncompatibleVersion, "server=%d client=%d", v, c.schema.Version())
		}
	}

	n := c.schema.NumValues()
	for {
		row, err := dec.ReadRow(n)
		if err == io.EOF {
			break
		}
		if errors.Is(err, protocol.ErrShortRow) {
			s.report.ShortRows++
			metrics.ClientShortRowsTotal.Inc()
			log.Warn("row %s ended early, missing values are left empty", row.Key)
		} else if err != nil {
			return s.streamError(ctx, err, "failed to read a row")
		}
		metrics.ClientRowsReceivedTotal.Inc()

		if err := s.handleRow(ctx, row); err != nil {
			return err
		}
	}

	// end of stream: write what is left
	if !c.opts.DryRun {
		written, err := s.batch.Flush(ctx)
		if err != nil {
			return err
		}
		s.recordFlush(written)
	}
	return nil
}

func (s *session) handleRow(ctx context.Context, row *protocol.Row) error {
	c := s.client
	s.report.LastKey = string(row.Key)

	if c.opts.DryRun {
		exists, err := c.dest.Exists(ctx, row.Key)
		if err != nil {
			return errors.Wrapf(err, "failed to check row %s", row.Key)
		}
		if exists {
			s.report.Duplicates++
			metrics.ClientExistenceChecksTotal.WithLabelValues("duplicate").Inc()
			log.Debug("exists: %s", row.Key)
		} else {
			s.report.New++
			metrics.ClientExistenceChecksTotal.WithLabelValues("new").Inc()
			log.Debug("new: %s", row.Key)
		}
		return nil
	}

	written, err := s.batch.Add(ctx, s.toPut(row))
	if err != nil {
		return err
	}
	if written > 0 {
		s.recordFlush(written)
		log.Info("added %s items, last rowKey %s, took %v so far",
			humanize.Comma(int64(s.report.Written)), s.report.LastKey, time.Since(s.start).Round(time.Millisecond))
	}
	return nil
}

func (s *session) recordFlush(written int) {
	if written == 0 {
		return
	}
	s.report.Written += written
	s.report.Batches++
}

func (s *session) toPut(row *protocol.Row) *store.Put {
	cells := make([]store.Cell, len(s.client.columns))
	for i, col := range s.client.columns {
		cells[i] = store.Cell{Column: col, Value: row.Values[i]}
	}
	return &store.Put{
		Key:     row.Key,
		Cells:   cells,
		SkipWAL: !s.client.opts.WriteToWAL,
	}
}

// streamError marks a transport failure as retryable unless ctx is done.
func (s *session) streamError(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "replication canceled")
	}
	return errors.Wrapf(ErrRetryable, "%s: %v", msg, err)
}
