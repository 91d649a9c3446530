package replication

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/meltwater/hbase-scripts/metrics"
	"github.com/meltwater/hbase-scripts/protocol"
	"github.com/meltwater/hbase-scripts/store"
	"github.com/meltwater/hbase-scripts/utils/log"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

type ServerOptions struct {
	// Caching is passed to the source scan as a page-size hint.
	Caching      int
	Handshake    protocol.Handshake
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// HandshakeTimeout bounds the time a client has to send its whole
	// request, version line included.
	HandshakeTimeout time.Duration
}

// Server streams the rows of a requested time range to one client at a time.
type Server struct {
	schema *protocol.ProtocolSchema
	source store.Source
	opts   ServerOptions
}

func NewServer(schema *protocol.ProtocolSchema, source store.Source, opts ServerOptions) *Server {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Server{
		schema: schema,
		source: source,
		opts:   opts,
	}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen a port for replication. addr=%s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and serves each one to completion before
// accepting the next. A failed connection or accept is logged and never stops
// the loop. Serve returns nil once ctx is done, and an error only when ln was
// closed by someone else.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := closeOnDone(ctx, ln)
	defer stop()
	defer ln.Close()

	log.Info("listening for replication clients on %s (protocol version %d)...", ln.Addr(), s.schema.Version())
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("shutdown replication server...")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return errors.Wrap(err, "replication listener closed")
			}

			delay = acceptDelay(delay)
			log.Warn("failed to accept a replication client, retrying in %v: %v", delay, err)
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				log.Info("shutdown replication server...")
				return nil
			case <-t.C:
			}
			continue
		}
		delay = 0
		s.serveConn(ctx, conn)
	}
}

// acceptDelay doubles the wait after a failed accept, from 5ms up to 1s.
func acceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	if next := 2 * prev; next < maxAcceptDelay {
		return next
	}
	return maxAcceptDelay
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log.Info("client connected. remote=%s", remote)

	start := time.Now()
	count, err := s.stream(ctx, conn)
	_ = conn.Close()

	switch {
	case err == nil:
		metrics.ServerConnectionsTotal.WithLabelValues("ok").Inc()
		metrics.ServerStreamDuration.Observe(time.Since(start).Seconds())
		log.Info("disconnecting client. streamed %d objects in %v. remote=%s", count, time.Since(start), remote)
	case isDisconnect(err):
		metrics.ServerConnectionsTotal.WithLabelValues("disconnected").Inc()
		log.Info("client disconnected after %d objects. remote=%s", count, remote)
	case errors.Is(err, protocol.ErrIncompatibleVersion):
		metrics.ServerConnectionsTotal.WithLabelValues("incompatible").Inc()
		log.Warn("rejected client. remote=%s: %v", remote, err)
	default:
		metrics.ServerConnectionsTotal.WithLabelValues("error").Inc()
		log.Error("failed to serve client. remote=%s: %v", remote, err)
	}
}

// stream runs the protocol on one connection and returns the number of rows
// sent.
func (s *Server) stream(ctx context.Context, conn net.Conn) (int, error) {
	stop := closeOnDone(ctx, conn)
	defer stop()

	// the whole request shares one deadline, so a silent client holds the
	// server for HandshakeTimeout at most
	dc := &deadlineConn{Conn: conn, writeTimeout: s.opts.WriteTimeout}
	if err := conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout)); err != nil {
		return 0, err
	}
	dec := protocol.NewDecoder(dc)
	enc := protocol.NewEncoder(dc)

	req, version, err := s.readRequest(dec)
	if err != nil {
		return 0, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, err
	}
	dc.readTimeout = s.opts.ReadTimeout
	log.Info("asking for range %d to %d", req.Start, req.End)

	if s.opts.Handshake {
		if err := protocol.WriteVersion(enc, s.schema.Version()); err != nil {
			return 0, err
		}
		if !s.schema.IsCompatible(version) {
			// the client learns our version from the ack and gives up
			_ = enc.Flush()
			return 0, errors.Wrapf(protocol.ErrIncompatibleVersion, "client=%d server=%d", version, s.schema.Version())
		}
	}

	if req.Start > req.End {
		log.Warn("start %d is after end %d, the range is empty", req.Start, req.End)
	}
	kr := protocol.Plan(req)
	columns := s.schema.FieldsWithFamily()
	log.Debug("scanning %s to %s, caching is set to %d", kr.StartKey, kr.EndKey, s.opts.Caching)

	scanner, err := s.source.Scan(ctx, &store.Scan{
		StartRow: kr.StartKey,
		StopRow:  kr.EndKey,
		Columns:  columns,
		Caching:  s.opts.Caching,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to open a scanner")
	}
	defer scanner.Close()

	row := &protocol.Row{Values: make([][]byte, len(columns))}
	count := 0
	for {
		res, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, errors.Wrap(err, "failed to scan the source table")
		}

		row.Key = res.Key
		for i, c := range columns {
			// missing cells go out as empty lines
			row.Values[i] = res.Value(c)
		}
		if err := enc.WriteRow(row); err != nil {
			return count, err
		}
		count++
		metrics.ServerRowsStreamedTotal.Inc()
	}

	return count, enc.Flush()
}

// readRequest reads the range bounds and, with the handshake on, the version
// line. A client that stops after the bounds is taken for a legacy client.
func (s *Server) readRequest(dec *protocol.Decoder) (protocol.RangeRequest, int, error) {
	req, _, err := protocol.ReadRequest(dec, protocol.Legacy)
	if err != nil || !s.opts.Handshake {
		return req, 0, err
	}

	version, err := protocol.ReadVersion(dec)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return req, 0, errors.Wrapf(protocol.ErrIncompatibleVersion,
			"no version line within %v, legacy client?", s.opts.HandshakeTimeout)
	}
	return req, version, err
}
