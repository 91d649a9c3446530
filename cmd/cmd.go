package cmd

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/meltwater/hbase-scripts/internal/di"
	"github.com/meltwater/hbase-scripts/metrics"
	"github.com/meltwater/hbase-scripts/utils"
	"github.com/meltwater/hbase-scripts/utils/log"
)

const (
	usage   = "hbasemigrate"
	short   = "Copy a time range of buzz rows from one table to another over TCP"
	example = `  hbasemigrate -m server -p 2000 --store sqlite:///data/buzz.db
  hbasemigrate -m client -s source-host -p 2000 -t 1300000000 -i 59
  hbasemigrate --config migrate.yml`
	configDesc = "set the path for a YAML configuration file. flags override its values"
)

type flags struct {
	cfg          *utils.MigrateConfig
	mode         string
	logLevel     string
	configPath   string
	printVersion bool
}

// NewCommand builds the root command. Flags default to the values of
// utils.DefaultConfig.
func NewCommand() *cobra.Command {
	return newCommand(&flags{cfg: utils.DefaultConfig()})
}

func newCommand(f *flags) *cobra.Command {
	c := &cobra.Command{
		Use:           usage,
		Short:         short,
		Example:       example,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd)
		},
	}

	d := f.cfg
	fl := c.Flags()
	fl.StringVarP(&f.mode, "mode", "m", "", "client or server (required)")
	fl.StringVarP(&d.Server, "server", "s", d.Server, "server host to copy from (required in client mode)")
	fl.IntVarP(&d.Port, "port", "p", d.Port, "port the server listens on")
	fl.Int64VarP(&d.Timestamp, "timestamp", "t", d.Timestamp, "start of the range in epoch seconds")
	fl.Int64VarP(&d.Interval, "interval", "i", d.Interval, "width of the range in seconds")
	fl.IntVarP(&d.Caching, "caching", "c", d.Caching, "scanner caching on the server, -1 leaves the store default")
	fl.BoolVarP(&d.WriteToWAL, "writeToWAL", "w", d.WriteToWAL, "write to the write-ahead log on the client")
	fl.BoolVarP(&d.Debug, "debug", "d", d.Debug, "dry run: only count new and existing rows")
	fl.StringVar(&d.Table, "table", d.Table, "table name")
	fl.StringVar(&d.StoreURL, "store", d.StoreURL, "local store url (memory://, sqlite://path, redis://host:port/db)")
	fl.IntVar(&d.ProtocolVersion, "protocol-version", d.ProtocolVersion, "protocol version to speak")
	fl.BoolVar(&d.LegacyProtocol, "legacy-protocol", d.LegacyProtocol, "do not exchange protocol versions")
	fl.IntVar(&d.FlushThreshold, "flush-threshold", d.FlushThreshold, "rows per batch write")
	fl.IntVar(&d.Retries, "retries", d.Retries, "connection attempts before the client gives up")
	fl.DurationVar(&d.RetryInterval, "retry-interval", d.RetryInterval, "wait between connection attempts")
	fl.DurationVar(&d.ConnectTimeout, "connect-timeout", d.ConnectTimeout, "timeout for connecting to the server")
	fl.DurationVar(&d.ReadTimeout, "read-timeout", d.ReadTimeout, "timeout for a single read or write on the connection")
	fl.DurationVar(&d.HandshakeTimeout, "handshake-timeout", d.HandshakeTimeout,
		"time a server waits for the range request and version line of a client")
	fl.StringVar(&f.logLevel, "log-level", d.LogLevel.String(), "debug, info, warn, error or fatal")
	fl.StringVar(&d.MetricsListen, "metrics-listen", d.MetricsListen, "address to serve prometheus metrics on, off when empty")
	fl.StringVar(&f.configPath, "config", "", configDesc)
	fl.BoolVarP(&f.printVersion, "version", "v", false, "show the version info and exit")

	return c
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewCommand().Execute()
}

// config merges the configuration file, if any, with the flags set on the
// command line.
func (f *flags) config(fs *pflag.FlagSet) (*utils.MigrateConfig, error) {
	f.cfg.Mode = utils.Mode(f.mode)
	f.cfg.LogLevel = log.ParseLevel(f.logLevel)
	if f.configPath == "" {
		return f.cfg, nil
	}

	data, err := os.ReadFile(f.configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration file %s", f.configPath)
	}
	log.Info("using %v for configuration", f.configPath)
	cfg, err := utils.ParseConfig(data)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "mode":
			cfg.Mode = f.cfg.Mode
		case "server":
			cfg.Server = f.cfg.Server
		case "port":
			cfg.Port = f.cfg.Port
		case "timestamp":
			cfg.Timestamp = f.cfg.Timestamp
		case "interval":
			cfg.Interval = f.cfg.Interval
		case "caching":
			cfg.Caching = f.cfg.Caching
		case "writeToWAL":
			cfg.WriteToWAL = f.cfg.WriteToWAL
		case "debug":
			cfg.Debug = f.cfg.Debug
		case "table":
			cfg.Table = f.cfg.Table
		case "store":
			cfg.StoreURL = f.cfg.StoreURL
		case "protocol-version":
			cfg.ProtocolVersion = f.cfg.ProtocolVersion
		case "legacy-protocol":
			cfg.LegacyProtocol = f.cfg.LegacyProtocol
		case "flush-threshold":
			cfg.FlushThreshold = f.cfg.FlushThreshold
		case "retries":
			cfg.Retries = f.cfg.Retries
		case "retry-interval":
			cfg.RetryInterval = f.cfg.RetryInterval
		case "connect-timeout":
			cfg.ConnectTimeout = f.cfg.ConnectTimeout
		case "read-timeout":
			cfg.ReadTimeout = f.cfg.ReadTimeout
		case "handshake-timeout":
			cfg.HandshakeTimeout = f.cfg.HandshakeTimeout
		case "log-level":
			cfg.LogLevel = f.cfg.LogLevel
		case "metrics-listen":
			cfg.MetricsListen = f.cfg.MetricsListen
		}
	})
	return cfg, nil
}

func (f *flags) run(cmd *cobra.Command) error {
	// Print version if specified.
	if f.printVersion {
		log.Info("version: %+v", utils.Tag)
		log.Info("commit hash: %+v", utils.GitHash)
		log.Info("utc build time: %+v", utils.BuildStamp)
		return nil
	}

	cfg, err := f.config(cmd.Flags())
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		if errors.Is(err, utils.ErrInvalidConfig) {
			_ = cmd.Usage()
		}
		return err
	}
	log.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSignals := handleSignals(cancel)
	defer stopSignals()

	if cfg.MetricsListen != "" {
		go metrics.Serve(ctx, cfg.MetricsListen)
	}

	c := di.NewContainer(cfg)
	switch cfg.Mode {
	case utils.ModeServer:
		return runServer(ctx, c, cfg)
	default:
		return runClient(ctx, c)
	}
}

func runServer(ctx context.Context, c *di.Container, cfg *utils.MigrateConfig) error {
	srv, err := c.GetReplicationServer(ctx)
	if err != nil {
		return err
	}
	table, err := c.GetStore(ctx)
	if err != nil {
		return err
	}
	defer table.Close()
	c.StartDiskUsageMonitor(ctx)

	return srv.ListenAndServe(ctx, cfg.Addr())
}

func runClient(ctx context.Context, c *di.Container) error {
	cli, err := c.GetReplicationClient(ctx)
	if err != nil {
		return err
	}
	c.StartDiskUsageMonitor(ctx)

	start := time.Now()
	if _, err := cli.Run(ctx); err != nil {
		return errors.Wrapf(err, "replication failed after %v", time.Since(start))
	}
	return nil
}

// handleSignals cancels the run on SIGINT or SIGTERM and dumps goroutines on
// SIGUSR1.
func handleSignals(cancel context.CancelFunc) (stop func()) {
	const defaultSignalChanLen = 10
	signalChan := make(chan os.Signal, defaultSignalChanLen)
	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 request")
				if err := pprof.Lookup("goroutine").WriteTo(os.Stdout, 1); err != nil {
					log.Error("failed to write goroutine pprof: %v", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info("initiating graceful shutdown due to '%v' request", s)
				cancel()
			}
		}
	}()
	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
	return func() {
		signal.Stop(signalChan)
		close(signalChan)
	}
}
