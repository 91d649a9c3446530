package utils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/meltwater/hbase-scripts/utils/log"
)

// ErrInvalidConfig is returned for configurations that can not be run.
// Callers print usage and exit when they see it.
var ErrInvalidConfig = errors.New("invalid configuration")

type Mode string

const (
	ModeClient Mode = "client"
	ModeServer Mode = "server"
)

const (
	defaultPort             = 2000
	defaultInterval         = 59
	defaultCaching          = -1
	defaultTable            = "buzz_data"
	defaultStore            = "sqlite://buzz_data.db"
	defaultProtocolVersion  = 1
	defaultFlushThreshold   = 5000
	defaultRetries          = 3
	defaultRetryInterval    = 3 * time.Second
	defaultConnectTimeout   = 30 * time.Second
	defaultReadTimeout      = 5 * time.Minute
	defaultHandshakeTimeout = 10 * time.Second
)

type MigrateConfig struct {
	Mode             Mode
	Server           string
	Port             int
	Timestamp        int64
	Interval         int64
	Caching          int
	WriteToWAL       bool
	Debug            bool
	Table            string
	StoreURL         string
	ProtocolVersion  int
	LegacyProtocol   bool
	FlushThreshold   int
	Retries          int
	RetryInterval    time.Duration
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	LogLevel         log.Level
	MetricsListen    string
}

// DefaultConfig returns the configuration used when neither a file nor a flag
// sets a value.
func DefaultConfig() *MigrateConfig {
	return &MigrateConfig{
		Port:             defaultPort,
		Interval:         defaultInterval,
		Caching:          defaultCaching,
		Table:            defaultTable,
		StoreURL:         defaultStore,
		ProtocolVersion:  defaultProtocolVersion,
		FlushThreshold:   defaultFlushThreshold,
		Retries:          defaultRetries,
		RetryInterval:    defaultRetryInterval,
		ConnectTimeout:   defaultConnectTimeout,
		ReadTimeout:      defaultReadTimeout,
		HandshakeTimeout: defaultHandshakeTimeout,
		LogLevel:         log.INFO,
	}
}

// ParseConfig reads a YAML document on top of DefaultConfig. Keys that are
// absent keep their default.
func ParseConfig(data []byte) (*MigrateConfig, error) {
	var aux struct {
		Mode             string `yaml:"mode"`
		Server           string `yaml:"server"`
		Port             int    `yaml:"port"`
		Timestamp        int64  `yaml:"timestamp"`
		Interval         *int64 `yaml:"interval"`
		Caching          *int   `yaml:"caching"`
		WriteToWAL       string `yaml:"write_to_wal"`
		Debug            string `yaml:"debug"`
		Table            string `yaml:"table"`
		Store            string `yaml:"store"`
		ProtocolVersion  int    `yaml:"protocol_version"`
		LegacyProtocol   string `yaml:"legacy_protocol"`
		FlushThreshold   int    `yaml:"flush_threshold"`
		Retries          int    `yaml:"retries"`
		RetryInterval    string `yaml:"retry_interval"`
		ConnectTimeout   string `yaml:"connect_timeout"`
		ReadTimeout      string `yaml:"read_timeout"`
		HandshakeTimeout string `yaml:"handshake_timeout"`
		LogLevel         string `yaml:"log_level"`
		MetricsListen    string `yaml:"metrics_listen"`
	}

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal yaml configuration")
	}

	m := DefaultConfig()
	m.Mode = Mode(strings.ToLower(aux.Mode))
	m.Server = aux.Server
	m.Timestamp = aux.Timestamp
	m.MetricsListen = aux.MetricsListen

	if aux.Port != 0 {
		m.Port = aux.Port
	}
	if aux.Interval != nil {
		m.Interval = *aux.Interval
	}
	if aux.Caching != nil {
		m.Caching = *aux.Caching
	}
	if aux.Table != "" {
		m.Table = aux.Table
	}
	if aux.Store != "" {
		m.StoreURL = aux.Store
	}
	if aux.ProtocolVersion != 0 {
		m.ProtocolVersion = aux.ProtocolVersion
	}
	if aux.FlushThreshold != 0 {
		m.FlushThreshold = aux.FlushThreshold
	}
	if aux.Retries != 0 {
		m.Retries = aux.Retries
	}
	if aux.LogLevel != "" {
		m.LogLevel = log.ParseLevel(aux.LogLevel)
	}

	var err error
	if m.WriteToWAL, err = parseBool("write_to_wal", aux.WriteToWAL, m.WriteToWAL); err != nil {
		return nil, err
	}
	if m.Debug, err = parseBool("debug", aux.Debug, m.Debug); err != nil {
		return nil, err
	}
	if m.LegacyProtocol, err = parseBool("legacy_protocol", aux.LegacyProtocol, m.LegacyProtocol); err != nil {
		return nil, err
	}
	if m.RetryInterval, err = parseDuration("retry_interval", aux.RetryInterval, m.RetryInterval); err != nil {
		return nil, err
	}
	if m.ConnectTimeout, err = parseDuration("connect_timeout", aux.ConnectTimeout, m.ConnectTimeout); err != nil {
		return nil, err
	}
	if m.ReadTimeout, err = parseDuration("read_timeout", aux.ReadTimeout, m.ReadTimeout); err != nil {
		return nil, err
	}
	if m.HandshakeTimeout, err = parseDuration("handshake_timeout", aux.HandshakeTimeout,
		m.HandshakeTimeout); err != nil {
		return nil, err
	}

	return m, nil
}

func parseBool(key, val string, def bool) (bool, error) {
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def, errors.Wrapf(ErrInvalidConfig, "invalid value: %v for %s", val, key)
	}
	return b, nil
}

func parseDuration(key, val string, def time.Duration) (time.Duration, error) {
	if val == "" {
		return def, nil
	}
	// bare integers are seconds
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def, errors.Wrapf(ErrInvalidConfig, "invalid duration: %v for %s", val, key)
	}
	return d, nil
}

// Validate checks that the configuration can be run in its mode.
func (m *MigrateConfig) Validate() error {
	switch m.Mode {
	case ModeClient:
		if m.Server == "" {
			return errors.Wrap(ErrInvalidConfig, "client mode requires a server")
		}
		if m.Interval < 0 {
			return errors.Wrapf(ErrInvalidConfig, "interval must not be negative, got %d", m.Interval)
		}
		if m.FlushThreshold <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "flush threshold must be positive, got %d", m.FlushThreshold)
		}
		if m.Retries <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "retries must be positive, got %d", m.Retries)
		}
	case ModeServer:
	case "":
		return errors.Wrap(ErrInvalidConfig, "mode is required")
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown mode %q, want client or server", m.Mode)
	}

	if m.Port <= 0 || m.Port > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "invalid port %d", m.Port)
	}
	if m.ProtocolVersion <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "invalid protocol version %d", m.ProtocolVersion)
	}
	return nil
}

// Addr is the address the server listens on, or the client dials.
func (m *MigrateConfig) Addr() string {
	if m.Mode == ModeServer {
		return fmt.Sprintf(":%d", m.Port)
	}
	return net.JoinHostPort(m.Server, strconv.Itoa(m.Port))
}
