// Package setup turns the resolved configuration into the objects deltas
// commands run with: logger, client, storage driver, publisher and recorder.
package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/deltas/pkg/client"
	"github.com/papercomputeco/deltas/pkg/config"
	"github.com/papercomputeco/deltas/pkg/credentials"
	"github.com/papercomputeco/deltas/pkg/dotdir"
	"github.com/papercomputeco/deltas/pkg/eventstream"
	"github.com/papercomputeco/deltas/pkg/eventstream/kafka"
	"github.com/papercomputeco/deltas/pkg/eventstream/nop"
	"github.com/papercomputeco/deltas/pkg/llm/provider"
	"github.com/papercomputeco/deltas/pkg/logger"
	"github.com/papercomputeco/deltas/pkg/recorder"
	"github.com/papercomputeco/deltas/pkg/storage"
	"github.com/papercomputeco/deltas/pkg/storage/inmemory"
	"github.com/papercomputeco/deltas/pkg/storage/postgres"
	"github.com/papercomputeco/deltas/pkg/storage/sqlite"
)

// Global holds the persistent root flags.
type Global struct {
	ConfigDir string
	Debug     bool
	LogFile   string
}

// GlobalFlags reads the persistent root flags from cmd. Missing flags read as
// zero values so subcommands stay runnable on their own in tests.
func GlobalFlags(cmd *cobra.Command) Global {
	var g Global
	g.ConfigDir, _ = cmd.Flags().GetString("config-dir")
	g.Debug, _ = cmd.Flags().GetBool("debug")
	g.LogFile, _ = cmd.Flags().GetString("log-file")
	return g
}

// NewLogger builds the CLI logger: pretty records on stderr, warnings and up
// unless debug is set, plus every record as JSON in the log file when one is
// given. The returned func closes the log file.
func NewLogger(g Global, stderr io.Writer) (*slog.Logger, func() error, error) {
	level := slog.LevelWarn
	if g.Debug {
		level = slog.LevelDebug
	}
	pretty := logger.New(logger.WithWriter(stderr), logger.WithPretty(true), logger.WithLevel(level))

	if g.LogFile == "" {
		return pretty, func() error { return nil }, nil
	}

	f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(logger.WithWriter(f), logger.WithJSON(true), logger.WithDebug(true))
	return logger.Multi(pretty, file), f.Close, nil
}

// LoadConfig resolves the effective configuration for cmd: registered flags
// over DELTAS_* env vars over config.toml over defaults.
func LoadConfig(cmd *cobra.Command, configDir string, flagKeys []string) (*config.Config, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)
	return config.FromViper(v), nil
}

// ClientOptions are per-invocation client settings that have no config key.
type ClientOptions struct {
	Headers http.Header
	Record  io.Writer
}

// NewClient builds a client for the configured provider, resolving its API
// key from the environment or credentials.toml.
func NewClient(cfg *config.Config, configDir string, log *slog.Logger, opts ClientOptions) (*client.Client, error) {
	p, err := provider.New(cfg.Provider.Name)
	if err != nil {
		return nil, err
	}

	creds, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	key, err := creds.Resolve(p.Name())
	if err != nil {
		return nil, err
	}

	return client.New(client.Config{
		Provider: p,
		Endpoint: cfg.Provider.Endpoint,
		APIKey:   key,
		Headers:  opts.Headers,
		Logger:   log,
		Record:   opts.Record,
	})
}

// NewStorageDriver opens the configured transcript store. The "none" driver
// yields a nil driver and a nil error.
func NewStorageDriver(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case "none":
		return nil, nil

	case "memory":
		log.Debug("using in-memory storage")
		return inmemory.NewDriver(), nil

	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("postgres storage needs storage.postgres_dsn (--postgres)")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		log.Debug("using PostgreSQL storage")
		return driver, nil

	case "sqlite", "":
		path := cfg.Storage.SQLitePath
		if path == "" {
			var err error
			path, err = dotdir.NewManager().DatabasePath(configDir)
			if err != nil {
				return nil, err
			}
		}
		driver, err := sqlite.NewSQLiteDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		log.Debug("using SQLite storage", "path", path)
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise. enabled reports which one it is.
func NewPublisher(cfg *config.Config, log *slog.Logger) (pub eventstream.Publisher, enabled bool, err error) {
	brokers := SplitList(cfg.Publish.KafkaBrokers)
	if len(brokers) == 0 {
		return nop.NewPublisher(), false, nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   cfg.Publish.KafkaTopic,
		Logger:  log,
	})
	if err != nil {
		return nil, false, err
	}
	log.Debug("publishing to kafka", "brokers", brokers, "topic", cfg.Publish.KafkaTopic)
	return p, true, nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseHeaders parses "Name: value" or "Name=value" pairs.
func ParseHeaders(pairs []string) (http.Header, error) {
	h := http.Header{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, ":")
		if !ok {
			name, value, ok = strings.Cut(pair, "=")
		}
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: want \"Name: value\"", pair)
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}

// Runtime bundles everything a streaming command needs.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Client    *client.Client
	Driver    storage.Driver
	Publisher eventstream.Publisher
	Recorder  *recorder.Pool

	closeLog func() error
}

// Open resolves configuration and builds the runtime for cmd.
func Open(ctx context.Context, cmd *cobra.Command, flagKeys []string, opts ClientOptions) (*Runtime, error) {
	g := GlobalFlags(cmd)

	log, closeLog, err := NewLogger(g, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Logger: log, closeLog: closeLog}

	rt.Config, err = LoadConfig(cmd, g.ConfigDir, flagKeys)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("loading config: %w", err)
	}

	rt.Client, err = NewClient(rt.Config, g.ConfigDir, log, opts)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.Driver, err = NewStorageDriver(ctx, rt.Config, g.ConfigDir, log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	pub, kafkaEnabled, err := NewPublisher(rt.Config, log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Publisher = pub

	if rt.Driver != nil || kafkaEnabled {
		poolCfg := &recorder.Config{
			Driver:     rt.Driver,
			NumWorkers: rt.Config.Recorder.Workers,
			Logger:     log,
		}
		if kafkaEnabled {
			poolCfg.Publisher = pub
		}
		rt.Recorder, err = recorder.NewPool(poolCfg)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	return rt, nil
}

// Close drains the recorder, then closes the publisher, the store and the
// log file.
func (r *Runtime) Close() error {
	if r.Recorder != nil {
		r.Recorder.Close()
	}

	var errs []error
	if r.Publisher != nil {
		errs = append(errs, r.Publisher.Close())
	}
	if r.Driver != nil {
		errs = append(errs, r.Driver.Close())
	}
	if r.closeLog != nil {
		errs = append(errs, r.closeLog())
	}
	return errors.Join(errs...)
}
