package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meltwater/hbase-scripts/utils/log"
)

var namespace = "hbase"
var subsystem = "migrate"

var (
	// ServerConnectionsTotal stores the number of accepted client connections
	// partitioned by how the connection ended
	ServerConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "server_connections_total",
		Help:      "Number of client connections served partitioned by result",
	}, []string{"result"})

	// ServerRowsStreamedTotal stores the number of rows sent to clients
	ServerRowsStreamedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "server_rows_streamed_total",
		Help:      "Number of rows streamed to clients",
	})

	// ServerStreamDuration stores how long a whole range took to stream
	ServerStreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "server_stream_duration_seconds",
		Help:      "Time taken to stream one requested range",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	// ClientRowsReceivedTotal stores the number of rows decoded from the stream
	ClientRowsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "client_rows_received_total",
		Help:      "Number of rows received from the server",
	})

	// ClientRowsWrittenTotal stores the number of rows handed to the destination
	ClientRowsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "client_rows_written_total",
		Help:      "Number of rows written to the destination table",
	})

	// ClientExistenceChecksTotal stores dry-run lookups partitioned by outcome
	ClientExistenceChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "client_existence_checks_total",
		Help:      "Number of dry-run existence checks partitioned by outcome (new, duplicate)",
	}, []string{"outcome"})

	// ClientShortRowsTotal stores rows that arrived without all of their values
	ClientShortRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "client_short_rows_total",
		Help:      "Number of rows cut short by the end of the stream",
	})

	// ClientFlushDuration stores the time taken by each batch write
	ClientFlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "client_flush_duration_seconds",
		Help:      "Time taken to write one batch to the destination table",
	})

	// ClientConnectAttemptsTotal stores TCP dials to the server partitioned by result
	ClientConnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "client_connect_attempts_total",
		Help:      "Number of TCP connection attempts to the server partitioned by result (ok, error)",
	}, []string{"result"})

	// StoreDiskUsageBytes stores the disk usage of a file backed store
	StoreDiskUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "store_disk_usage_bytes",
		Help:      "Bytes used on disk by the local store",
	})
)

// Serve exposes the default registry on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info("launching prometheus metrics server on %s...", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server error: %v", err)
	}
}
