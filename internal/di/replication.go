package di

import (
	"context"

	"github.com/meltwater/hbase-scripts/protocol"
	"github.com/meltwater/hbase-scripts/replication"
	"github.com/meltwater/hbase-scripts/utils/log"
)

func (c *Container) handshake() protocol.Handshake {
	if c.cfg.LegacyProtocol {
		return protocol.Legacy
	}
	return protocol.WithVersion
}

func (c *Container) GetReplicationServer(ctx context.Context) (*replication.Server, error) {
	if c.replicationServer != nil {
		return c.replicationServer, nil
	}
	schema, err := c.GetSchema()
	if err != nil {
		return nil, err
	}
	source, err := c.GetStore(ctx)
	if err != nil {
		return nil, err
	}

	c.replicationServer = replication.NewServer(schema, source, replication.ServerOptions{
		Caching:          c.cfg.Caching,
		Handshake:        c.handshake(),
		ReadTimeout:      c.cfg.ReadTimeout,
		WriteTimeout:     c.cfg.ReadTimeout,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	})
	log.Info("initialized replication server")
	return c.replicationServer, nil
}

func (c *Container) GetReplicationClient(ctx context.Context) (*replication.Client, error) {
	if c.replicationClient != nil {
		return c.replicationClient, nil
	}
	schema, err := c.GetSchema()
	if err != nil {
		return nil, err
	}
	dest, err := c.GetStore(ctx)
	if err != nil {
		return nil, err
	}

	c.replicationClient = replication.NewClient(schema, dest, replication.ClientOptions{
		Addr:           c.cfg.Addr(),
		Timestamp:      c.cfg.Timestamp,
		Interval:       c.cfg.Interval,
		DryRun:         c.cfg.Debug,
		WriteToWAL:     c.cfg.WriteToWAL,
		FlushThreshold: c.cfg.FlushThreshold,
		Retries:        c.cfg.Retries,
		RetryInterval:  c.cfg.RetryInterval,
		ConnectTimeout: c.cfg.ConnectTimeout,
		ReadTimeout:    c.cfg.ReadTimeout,
		Handshake:      c.handshake(),
	})
	log.Info("initialized replication client for %s", c.cfg.Addr())
	return c.replicationClient, nil
}
