// Package config provides centralized configuration management for the daemon.
// It loads configuration from environment variables (optionally seeded from a
// .env file by the CLI) with sensible defaults, and validates all settings on
// startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all daemon configuration.
// All settings can be configured via environment variables.
type Config struct {
	Ingest   IngestConfig
	Database DatabaseConfig
	Job      JobConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
	Status   StatusConfig
}

// IngestConfig holds inbox, archive and validation settings.
type IngestConfig struct {
	// SourceTag identifies the extract source; filenames must start with
	// FilenamePrefix+SourceTag and mail subjects carry it (required)
	SourceTag string `env:"INGEST_SOURCE_TAG" required:"true"`

	// FilenamePrefix precedes the source tag in extract filenames (default: wq_)
	FilenamePrefix string `env:"INGEST_FILENAME_PREFIX" default:"wq_"`

	// Extensions lists accepted file extensions, comma-separated (default: .csv)
	Extensions []string `env:"INGEST_EXTENSIONS" default:".csv"`

	// InboxDir is the folder watched for new extracts (required)
	InboxDir string `env:"INBOX_DIR" required:"true"`

	// ArchiveDir receives consumed extracts (required)
	ArchiveDir string `env:"ARCHIVE_DIR" required:"true"`

	// SettleDelay is how long to wait after a file appears before reading it (default: 10s)
	SettleDelay time.Duration `env:"INGEST_SETTLE_DELAY" default:"10s"`

	// MaxFileSize is the largest extract accepted, in bytes (default: 100MB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"104857600"`

	// ScanOnStart processes files already in the inbox at startup (default: false)
	ScanOnStart bool `env:"INGEST_SCAN_ON_START" default:"false"`

	// QueueSize is the number of pending file events buffered (default: 64)
	QueueSize int `env:"INGEST_QUEUE_SIZE" default:"64"`

	// ExpectedColumns is the reference column list, comma-separated
	ExpectedColumns []string `env:"INGEST_EXPECTED_COLUMNS"`

	// ColumnsFile names a file holding the reference column list.
	// When neither this nor ExpectedColumns is set, the target table's own
	// columns are used.
	ColumnsFile string `env:"INGEST_COLUMNS_FILE"`

	Frame FrameConfig
}

// FrameConfig overrides the extract's boilerplate lines. Empty First or Last
// keeps the built-in confidentiality notice.
type FrameConfig struct {
	First       string `env:"FRAME_LINE_1"`
	Second      string `env:"FRAME_LINE_2"`
	Penultimate string `env:"FRAME_LINE_PENULTIMATE"`
	Last        string `env:"FRAME_LINE_LAST"`
}

// DatabaseConfig holds database connection and load settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Table is the target table, "table" or "schema.table" (required)
	Table string `env:"TARGET_TABLE" required:"true"`

	// LoadMode is insert or copy (default: insert)
	LoadMode string `env:"LOAD_MODE" default:"insert"`

	// LoadTimeout bounds one truncate-and-load transaction (default: 10m)
	LoadTimeout time.Duration `env:"LOAD_TIMEOUT" default:"10m"`
}

// JobConfig holds downstream job settings.
type JobConfig struct {
	// Name is the pgAgent job to run after a load; empty disables it
	Name string `env:"JOB_NAME"`

	// PollInterval is the wait between status checks (default: 15s)
	PollInterval time.Duration `env:"JOB_POLL_INTERVAL" default:"15s"`

	// MaxWait is the ceiling on accumulated waiting (default: 10m)
	MaxWait time.Duration `env:"JOB_MAX_WAIT" default:"10m"`
}

// Enabled reports whether a downstream job is configured.
func (c *JobConfig) Enabled() bool { return c.Name != "" }

// NotifyConfig holds e-mail notification settings.
type NotifyConfig struct {
	// SMTPHost is the mail relay; empty disables e-mail (log only)
	SMTPHost string `env:"SMTP_HOST"`

	// SMTPPort is the relay port (default: 25)
	SMTPPort int `env:"SMTP_PORT" default:"25"`

	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	// From is the sender address
	From string `env:"NOTIFY_FROM"`

	// To lists recipient addresses, comma-separated
	To []string `env:"NOTIFY_TO"`

	// Attempts is the number of delivery attempts per message (default: 3)
	Attempts int `env:"NOTIFY_ATTEMPTS" default:"3"`
}

// MailEnabled reports whether e-mail delivery is configured.
func (c *NotifyConfig) MailEnabled() bool { return c.SMTPHost != "" }

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the console log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File, when set, also receives every record as JSON
	File string `env:"LOG_FILE"`
}

// StatusConfig holds the status HTTP server settings.
type StatusConfig struct {
	// Addr is the listen address, e.g. :8080; empty disables the server
	Addr string `env:"STATUS_ADDR"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"STATUS_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 15s)
	WriteTimeout time.Duration `env:"STATUS_WRITE_TIMEOUT" default:"15s"`

	// ShutdownTimeout bounds graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration `env:"STATUS_SHUTDOWN_TIMEOUT" default:"10s"`

	// HistorySize is the number of recent runs kept for display (default: 50)
	HistorySize int `env:"STATUS_HISTORY_SIZE" default:"50"`
}

// Enabled reports whether the status server should run.
func (c *StatusConfig) Enabled() bool { return c.Addr != "" }

// SMTPAddr returns the relay address in host:port format.
func (c *NotifyConfig) SMTPAddr() string {
	return net.JoinHostPort(c.SMTPHost, strconv.Itoa(c.SMTPPort))
}
