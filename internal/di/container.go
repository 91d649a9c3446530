package di

import (
	"context"
	"net/url"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/meltwater/hbase-scripts/metrics"
	"github.com/meltwater/hbase-scripts/protocol"
	"github.com/meltwater/hbase-scripts/replication"
	"github.com/meltwater/hbase-scripts/store"
	"github.com/meltwater/hbase-scripts/utils"
	"github.com/meltwater/hbase-scripts/utils/log"

	// store backends
	_ "github.com/meltwater/hbase-scripts/store/memstore"
	_ "github.com/meltwater/hbase-scripts/store/redisstore"
	_ "github.com/meltwater/hbase-scripts/store/sqlstore"
)

const diskUsageMonitorInterval = 10 * time.Minute

// Container builds the components of one run from the configuration. Every
// getter builds its component once and returns the same value afterwards.
type Container struct {
	cfg *utils.MigrateConfig

	schema            *protocol.ProtocolSchema
	table             store.Table
	replicationServer *replication.Server
	replicationClient *replication.Client
}

func NewContainer(cfg *utils.MigrateConfig) *Container {
	return &Container{cfg: cfg}
}

func (c *Container) GetSchema() (*protocol.ProtocolSchema, error) {
	if c.schema != nil {
		return c.schema, nil
	}
	schema, err := protocol.NewSchema(c.cfg.ProtocolVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "protocol version %d", c.cfg.ProtocolVersion)
	}
	log.Debug("protocol version %d, fields=%v", schema.Version(), schema.Fields())
	c.schema = schema
	return c.schema, nil
}

// GetStore opens the local table: the source in server mode, the destination
// in client mode.
func (c *Container) GetStore(ctx context.Context) (store.Table, error) {
	if c.table != nil {
		return c.table, nil
	}
	t, err := store.Open(ctx, c.cfg.StoreURL, c.cfg.Table)
	if err != nil {
		return nil, err
	}
	log.Info("opened table %s at %s", c.cfg.Table, c.cfg.StoreURL)
	c.table = t
	return c.table, nil
}

// StartDiskUsageMonitor reports the size of a file-backed store until ctx is
// done. Other stores are ignored.
func (c *Container) StartDiskUsageMonitor(ctx context.Context) {
	path := localStorePath(c.cfg.StoreURL)
	if path == "" {
		return
	}
	go metrics.StartDiskUsageMonitor(ctx, metrics.StoreDiskUsageBytes, path, diskUsageMonitorInterval)
}

func localStorePath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "sqlite" {
		return ""
	}
	p := u.Host + u.Path
	if u.Opaque != "" {
		p = u.Opaque
	}
	if p == "" || p == ":memory:" {
		return ""
	}
	return filepath.Clean(p)
}
