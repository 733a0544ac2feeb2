package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result. Missing
// required values and validation failures are reported together.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, errors.Wrap(err, "config load")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
// Required fields get no default; Validate reports them when unset.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, ok := lookup(envName, field.Tag.Get("envAlt"))
		if !ok {
			if field.Tag.Get("required") == "true" {
				continue
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return errors.Wrapf(err, "invalid value for %s=%q", envName, value)
		}
	}

	return nil
}

// lookup returns the first non-blank value among the named variables.
func lookup(names ...string) (string, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v := os.Getenv(n); strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return errors.Wrap(err, "invalid duration")
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return errors.Wrap(err, "invalid integer")
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrap(err, "invalid boolean")
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return errors.Newf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return errors.Newf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	if problems := c.problems(); len(problems) > 0 {
		return errors.Newf("validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func (c *Config) problems() []string {
	var errs []string

	// Ingest
	if c.Ingest.SourceTag == "" {
		errs = append(errs, "INGEST_SOURCE_TAG is required")
	}
	if c.Ingest.InboxDir == "" {
		errs = append(errs, "INBOX_DIR is required")
	}
	if c.Ingest.ArchiveDir == "" {
		errs = append(errs, "ARCHIVE_DIR is required")
	}
	if c.Ingest.InboxDir != "" && c.Ingest.InboxDir == c.Ingest.ArchiveDir {
		errs = append(errs, "ARCHIVE_DIR must differ from INBOX_DIR")
	}
	if len(c.Ingest.Extensions) == 0 {
		errs = append(errs, "INGEST_EXTENSIONS must list at least one extension")
	}
	for _, ext := range c.Ingest.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("INGEST_EXTENSIONS entry %q must start with a dot", ext))
		}
	}
	if c.Ingest.SettleDelay < 0 {
		errs = append(errs, "INGEST_SETTLE_DELAY must be non-negative")
	}
	if c.Ingest.MaxFileSize <= 0 {
		errs = append(errs, "INGEST_MAX_FILE_SIZE must be positive")
	}
	if c.Ingest.QueueSize <= 0 {
		errs = append(errs, "INGEST_QUEUE_SIZE must be positive")
	}
	if len(c.Ingest.ExpectedColumns) > 0 && c.Ingest.ColumnsFile != "" {
		errs = append(errs, "set only one of INGEST_EXPECTED_COLUMNS and INGEST_COLUMNS_FILE")
	}

	// Database
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.Table == "" {
		errs = append(errs, "TARGET_TABLE is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	switch strings.ToLower(c.Database.LoadMode) {
	case "insert", "copy":
	default:
		errs = append(errs, fmt.Sprintf("LOAD_MODE (%q) must be one of: insert, copy", c.Database.LoadMode))
	}
	if c.Database.LoadTimeout <= 0 {
		errs = append(errs, "LOAD_TIMEOUT must be positive")
	}

	// Job
	if c.Job.Enabled() {
		if c.Job.PollInterval <= 0 {
			errs = append(errs, "JOB_POLL_INTERVAL must be positive")
		}
		if c.Job.MaxWait < c.Job.PollInterval {
			errs = append(errs, fmt.Sprintf("JOB_MAX_WAIT (%s) must be >= JOB_POLL_INTERVAL (%s)",
				c.Job.MaxWait, c.Job.PollInterval))
		}
	}

	// Notify
	if c.Notify.MailEnabled() {
		if c.Notify.From == "" {
			errs = append(errs, "NOTIFY_FROM is required when SMTP_HOST is set")
		}
		if len(c.Notify.To) == 0 {
			errs = append(errs, "NOTIFY_TO is required when SMTP_HOST is set")
		}
		if c.Notify.SMTPPort <= 0 || c.Notify.SMTPPort > 65535 {
			errs = append(errs, fmt.Sprintf("SMTP_PORT (%d) must be 1-65535", c.Notify.SMTPPort))
		}
		if c.Notify.Attempts <= 0 {
			errs = append(errs, "NOTIFY_ATTEMPTS must be positive")
		}
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	// Status
	if c.Status.Enabled() {
		if c.Status.ShutdownTimeout <= 0 {
			errs = append(errs, "STATUS_SHUTDOWN_TIMEOUT must be positive")
		}
		if c.Status.HistorySize <= 0 {
			errs = append(errs, "STATUS_HISTORY_SIZE must be positive")
		}
	}

	return errs
}

// String returns a safe string representation of the config for logging.
// The database URL and SMTP password are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Ingest: {SourceTag: %q, Inbox: %q, Archive: %q, Settle: %s}, ",
		c.Ingest.SourceTag, c.Ingest.InboxDir, c.Ingest.ArchiveDir, c.Ingest.SettleDelay)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], Table: %q, LoadMode: %q, MaxConns: %d}, ",
		c.Database.Table, c.Database.LoadMode, c.Database.MaxConns)
	fmt.Fprintf(&b, "Job: {Name: %q, PollInterval: %s, MaxWait: %s}, ",
		c.Job.Name, c.Job.PollInterval, c.Job.MaxWait)
	password := ""
	if c.Notify.SMTPPassword != "" {
		password = "[MASKED]"
	}
	fmt.Fprintf(&b, "Notify: {SMTP: %q, User: %q, Password: %q, To: %v}, ",
		c.Notify.SMTPHost, c.Notify.SMTPUsername, password, c.Notify.To)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q, File: %q}, ",
		c.Logging.Level, c.Logging.Format, c.Logging.File)
	fmt.Fprintf(&b, "Status: {Addr: %q}", c.Status.Addr)
	b.WriteString("}")
	return b.String()
}
