package cli

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/JonMunkholm/wqingest/internal/config"
	"github.com/JonMunkholm/wqingest/internal/core"
	"github.com/JonMunkholm/wqingest/internal/jobs"
	"github.com/JonMunkholm/wqingest/internal/notify"
	"github.com/JonMunkholm/wqingest/internal/store"
)

// components holds everything built from configuration that talks to the
// outside world.
type components struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	agentDB  *sql.DB // nil when no job is configured
	agent    *jobs.PgAgent
	table    *store.Table
	loader   *store.Loader
	columns  core.ColumnSource
	notifier core.Notifier
	history  *core.History
}

// build connects to the database and assembles the components. The pool is
// lazy, so an unreachable server is only reported by the startup checks.
func build(ctx context.Context, cfg *config.Config, notifier core.Notifier) (*components, error) {
	name, err := store.ParseTableName(cfg.Database.Table)
	if err != nil {
		return nil, errors.Wrap(err, "TARGET_TABLE")
	}
	mode, err := store.ParseLoadMode(cfg.Database.LoadMode)
	if err != nil {
		return nil, errors.Wrap(err, "LOAD_MODE")
	}

	pool, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	c := &components{
		cfg:      cfg,
		pool:     pool,
		table:    store.NewTable(pool, name),
		loader:   store.NewLoader(pool, name, mode, cfg.Database.LoadTimeout),
		notifier: notifier,
		history:  core.NewHistory(cfg.Status.HistorySize),
	}
	c.columns = columnSource(cfg.Ingest, c.table)

	if cfg.Job.Enabled() {
		c.agentDB = stdlib.OpenDBFromPool(pool)
		c.agent = jobs.NewPgAgent(c.agentDB)
	}

	return c, nil
}

// connect parses the database URL and applies pool settings.
func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database URL")
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Debug("database pool created", "name", strings.TrimPrefix(u.Path, "/"), "max_conns", cfg.MaxConns)
	}
	return pool, nil
}

// Close releases database handles.
func (c *components) Close() {
	if c.agentDB != nil {
		if err := c.agentDB.Close(); err != nil {
			slog.Warn("close job controller connection", "error", err)
		}
	}
	c.pool.Close()
}

// gate builds the validation gate. A nil archiver makes it read-only.
func (c *components) gate(archiver core.Archiver) *core.Gate {
	return core.NewGate(core.GateConfig{
		SourceTag:      c.cfg.Ingest.SourceTag,
		FilenamePrefix: c.cfg.Ingest.FilenamePrefix,
		Extensions:     c.cfg.Ingest.Extensions,
		Frame:          frameFromConfig(c.cfg.Ingest.Frame),
		MaxFileSize:    c.cfg.Ingest.MaxFileSize,
	}, c.table, c.columns, archiver)
}

// pipeline builds the per-file driver.
func (c *components) pipeline(archiver core.Archiver) *core.Pipeline {
	deps := core.PipelineDeps{
		Gate:     c.gate(archiver),
		Counter:  c.table,
		Loader:   c.loader,
		Target:   c.table.Name().String(),
		Notifier: c.notifier,
		History:  c.history,
	}
	if c.agent != nil {
		deps.Jobs = jobs.NewOrchestrator(c.agent, c.cfg.Job.PollInterval, c.cfg.Job.MaxWait)
		deps.JobID = c.cfg.Job.Name
	}
	return core.NewPipeline(deps)
}

// frameFromConfig overlays configured boilerplate lines on the default frame.
func frameFromConfig(f config.FrameConfig) core.Frame {
	frame := core.DefaultFrame
	if f.First != "" {
		frame.First = f.First
	}
	if f.Second != "" {
		frame.Second = f.Second
	}
	if f.Penultimate != "" {
		frame.Penultimate = f.Penultimate
	}
	if f.Last != "" {
		frame.Last = f.Last
	}
	return frame
}

// columnSource picks the reference column list: inline, then file, then the
// target table itself.
func columnSource(cfg config.IngestConfig, table *store.Table) core.ColumnSource {
	switch {
	case len(cfg.ExpectedColumns) > 0:
		return core.StaticColumns(cfg.ExpectedColumns)
	case cfg.ColumnsFile != "":
		return core.FileColumns{Path: cfg.ColumnsFile}
	default:
		return table
	}
}

// newNotifier builds the dispatcher. Everything is logged; mail is added
// when a relay is configured.
func newNotifier(cfg *config.Config) *notify.Dispatcher {
	sinks := []notify.Sink{notify.LogSink{}}
	if cfg.Notify.MailEnabled() {
		sinks = append(sinks, notify.NewSMTPSink(notify.SMTPConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUsername,
			Password: cfg.Notify.SMTPPassword,
			From:     cfg.Notify.From,
			To:       cfg.Notify.To,
			Attempts: cfg.Notify.Attempts,
		}))
	}
	return notify.NewDispatcher(cfg.Ingest.SourceTag, sinks...)
}

// startupCheck is one named precondition for running the daemon.
type startupCheck struct {
	name string
	run  func(ctx context.Context) error
}

// startupChecks lists the preconditions in the order they are reported.
func (c *components) startupChecks() []startupCheck {
	checks := []startupCheck{
		{"inbox folder", func(context.Context) error { return requireDir(c.cfg.Ingest.InboxDir) }},
		{"archive folder", func(context.Context) error {
			if err := requireDir(c.cfg.Ingest.ArchiveDir); err != nil {
				return err
			}
			return core.CheckWritable(c.cfg.Ingest.ArchiveDir)
		}},
		{"database", func(ctx context.Context) error {
			version, err := store.Ping(ctx, c.pool)
			if err == nil {
				slog.Info("connected to database", "version", version)
			}
			return err
		}},
		{"target table", func(ctx context.Context) error {
			cols, err := c.table.ColumnNames(ctx)
			if err == nil {
				slog.Info("target table found", "table", c.table.Name().String(), "columns", len(cols))
			}
			return err
		}},
		{"reference columns", func(ctx context.Context) error {
			cols, err := c.columns.ExpectedColumns(ctx)
			if err == nil && len(cols) == 0 {
				return errors.New("reference column list is empty")
			}
			return err
		}},
	}
	if c.agent != nil {
		checks = append(checks, startupCheck{"pgAgent job", func(ctx context.Context) error {
			return c.agent.Exists(ctx, c.cfg.Job.Name)
		}})
	}
	return checks
}

// runStartupChecks runs each check in order and stops at the first failure.
func runStartupChecks(ctx context.Context, checks []startupCheck) error {
	for _, chk := range checks {
		if err := chk.run(ctx); err != nil {
			slog.Error("startup check failed", "check", chk.name, "error", err)
			return errors.Wrapf(err, "startup check %q", chk.name)
		}
		slog.Info("startup check passed", "check", chk.name)
	}
	return nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	if !info.IsDir() {
		return errors.Newf("%s is not a directory", path)
	}
	return nil
}
