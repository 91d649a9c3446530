package utils

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meltwater/hbase-scripts/utils/log"
)

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte("mode: server\n"))
	require.Nil(t, err)

	assert.Equal(t, ModeServer, cfg.Mode)
	assert.Equal(t, 2000, cfg.Port)
	assert.Equal(t, int64(59), cfg.Interval)
	assert.Equal(t, -1, cfg.Caching)
	assert.False(t, cfg.WriteToWAL)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "buzz_data", cfg.Table)
	assert.Equal(t, 5000, cfg.FlushThreshold)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 3*time.Second, cfg.RetryInterval)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 1, cfg.ProtocolVersion)
	assert.Equal(t, log.INFO, cfg.LogLevel)
	assert.Nil(t, cfg.Validate())
}

func TestParseConfig_AllKeys(t *testing.T) {
	t.Parallel()

	data := []byte(`
mode: CLIENT
server: hbase-replica-1
port: 2100
timestamp: 1300000000
interval: 0
caching: 500
write_to_wal: true
debug: "true"
table: other_table
store: redis://localhost:6379/2
protocol_version: 1
legacy_protocol: true
flush_threshold: 100
retries: 5
retry_interval: 250ms
connect_timeout: 10
read_timeout: 1m
handshake_timeout: 2s
log_level: debug
metrics_listen: ":9090"
`)
	cfg, err := ParseConfig(data)
	require.Nil(t, err)

	assert.Equal(t, ModeClient, cfg.Mode)
	assert.Equal(t, "hbase-replica-1", cfg.Server)
	assert.Equal(t, 2100, cfg.Port)
	assert.Equal(t, int64(1300000000), cfg.Timestamp)
	assert.Equal(t, int64(0), cfg.Interval)
	assert.Equal(t, 500, cfg.Caching)
	assert.True(t, cfg.WriteToWAL)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "other_table", cfg.Table)
	assert.Equal(t, "redis://localhost:6379/2", cfg.StoreURL)
	assert.True(t, cfg.LegacyProtocol)
	assert.Equal(t, 100, cfg.FlushThreshold)
	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, log.DEBUG, cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.MetricsListen)
	assert.Equal(t, "hbase-replica-1:2100", cfg.Addr())
}

func TestParseConfig_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{name: "bad bool", data: "debug: maybe\n"},
		{name: "bad duration", data: "retry_interval: soon\n"},
		{name: "not yaml", data: "mode: [client\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseConfig([]byte(tt.data))
			assert.NotNil(t, err)
		})
	}
}

func TestMigrateConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(c *MigrateConfig)
		wantErr bool
	}{
		{
			name:    "missing mode",
			modify:  func(c *MigrateConfig) {},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			modify:  func(c *MigrateConfig) { c.Mode = "relay" },
			wantErr: true,
		},
		{
			name:    "client without server",
			modify:  func(c *MigrateConfig) { c.Mode = ModeClient },
			wantErr: true,
		},
		{
			name: "client with server",
			modify: func(c *MigrateConfig) {
				c.Mode = ModeClient
				c.Server = "localhost"
			},
			wantErr: false,
		},
		{
			name: "client with negative interval",
			modify: func(c *MigrateConfig) {
				c.Mode = ModeClient
				c.Server = "localhost"
				c.Interval = -1
			},
			wantErr: true,
		},
		{
			name:    "server without server host",
			modify:  func(c *MigrateConfig) { c.Mode = ModeServer },
			wantErr: false,
		},
		{
			name: "server with bad port",
			modify: func(c *MigrateConfig) {
				c.Mode = ModeServer
				c.Port = 70000
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// --- given ---
			cfg := DefaultConfig()
			tt.modify(cfg)

			// --- when ---
			err := cfg.Validate()

			// --- then ---
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}
