// Package notify dispatches one outcome message per processed file.
//
// A Dispatcher fans a message out to every configured Sink. Sink failures are
// logged and swallowed: a broken mail relay must never change the outcome
// being reported.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/wqingest/internal/logging"
)

// Category is the class of an outcome message.
type Category string

const (
	Success Category = "success" // file loaded, counts reconciled, job ok
	Notice  Category = "notice"  // file rejected by validation
	Error   Category = "error"   // operational failure
)

// Label is the category as it appears in mail subjects.
func (c Category) Label() string {
	switch c {
	case Success:
		return "Success"
	case Notice:
		return "NOTICE"
	case Error:
		return "ERROR"
	default:
		return string(c)
	}
}

// Subject builds the subject line used for a tag and category.
func Subject(tag string, c Category) string {
	return tag + " WQ Ingest " + c.Label()
}

// Message is one notification.
type Message struct {
	Category Category
	Subject  string
	Body     string
	Time     time.Time
}

// Sink delivers messages somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher sends every notification to all sinks.
type Dispatcher struct {
	tag   string
	sinks []Sink
	now   func() time.Time
}

// NewDispatcher creates a dispatcher for the given source tag.
func NewDispatcher(tag string, sinks ...Sink) *Dispatcher {
	return &Dispatcher{tag: tag, sinks: sinks, now: time.Now}
}

// Notify builds a message and hands it to each sink in turn.
func (d *Dispatcher) Notify(ctx context.Context, category Category, body string) {
	msg := Message{
		Category: category,
		Subject:  Subject(d.tag, category),
		Body:     body,
		Time:     d.now(),
	}

	for _, s := range d.sinks {
		if err := s.Send(ctx, msg); err != nil {
			logging.FromContext(ctx).Error("notification failed",
				"sink", s.Name(),
				"category", string(category),
				"error", err,
			)
		}
	}
}

// LogSink writes notifications to the structured log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(ctx context.Context, msg Message) error {
	level := slog.LevelInfo
	switch msg.Category {
	case Notice:
		level = slog.LevelWarn
	case Error:
		level = slog.LevelError
	}
	logging.FromContext(ctx).Log(ctx, level, "notification",
		"category", string(msg.Category),
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
