package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/wqingest/internal/jobs"
	"github.com/JonMunkholm/wqingest/internal/notify"
)

// Framing constants for the extract format. Every valid extract carries two
// boilerplate lines at the top, two at the bottom, and one header line.
const (
	FramingLines    = 4
	HeaderLines     = 1
	FramingOverhead = FramingLines + HeaderLines
)

// Encoding is the byte-level encoding detected for a file.
type Encoding string

const (
	EncodingUnknown Encoding = "unknown"
	EncodingASCII   Encoding = "ascii"
	EncodingUTF8    Encoding = "utf-8"
	EncodingUTF8BOM Encoding = "utf-8-sig" // UTF-8 with byte-order mark; the extract contract
	EncodingUTF16LE Encoding = "utf-16le"
	EncodingUTF16BE Encoding = "utf-16be"
	EncodingUTF32LE Encoding = "utf-32le"
	EncodingUTF32BE Encoding = "utf-32be"
)

// Frame holds the four fixed boilerplate lines that wrap every extract.
type Frame struct {
	First       string // line 1
	Second      string // line 2
	Penultimate string // second-to-last line
	Last        string // last line
}

// ConfidentialityNotice is the boilerplate line the extract source writes
// at the top and bottom of every export.
const ConfidentialityNotice = `"This file contains information that is sensitive and confidential. Do not distribute either in whole or in part."`

// DefaultFrame is the framing produced by the extract source.
var DefaultFrame = Frame{
	First:       ConfidentialityNotice,
	Second:      "",
	Penultimate: "",
	Last:        ConfidentialityNotice,
}

// IncomingFile is a file reported by the event source, after inspection.
type IncomingFile struct {
	Path      string
	Base      string
	Size      int64
	Encoding  Encoding
	FramingOK bool
	Lines     int // total lines, framing included

	data []byte
}

// DataRows returns the number of data rows implied by the line count.
// Never negative.
func (f IncomingFile) DataRows() int {
	if f.Lines <= FramingOverhead {
		return 0
	}
	return f.Lines - FramingOverhead
}

// Record is an ordered mapping from field name to string value.
// All records parsed from one file share the same field slice.
type Record struct {
	fields []string
	values []string
}

// NewRecord builds a record. fields and values must have equal length.
func NewRecord(fields, values []string) Record {
	return Record{fields: fields, values: values}
}

// Fields returns the field names in header order.
func (r Record) Fields() []string { return r.fields }

// Values returns the field values in header order.
func (r Record) Values() []string { return r.values }

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Get returns the value for a field name.
func (r Record) Get(field string) (string, bool) {
	for i, f := range r.fields {
		if f == field {
			return r.values[i], true
		}
	}
	return "", false
}

// Map returns the record as an unordered map.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.fields))
	for i, f := range r.fields {
		m[f] = r.values[i]
	}
	return m
}

// RecordSet is the ordered sequence of records extracted from one file.
type RecordSet struct {
	Header  []string
	Records []Record
}

// Len returns the number of records.
func (rs RecordSet) Len() int { return len(rs.Records) }

// Rows returns the record values as a slice of rows, in header order.
func (rs RecordSet) Rows() [][]string {
	rows := make([][]string, len(rs.Records))
	for i, r := range rs.Records {
		rows[i] = r.values
	}
	return rows
}

// Verdict is the gate's decision for a file.
type Verdict int

const (
	VerdictProceed Verdict = iota
	VerdictRejected
	VerdictSkipped // system artifact; no notice, no archive
)

func (v Verdict) String() string {
	switch v {
	case VerdictProceed:
		return "proceed"
	case VerdictRejected:
		return "rejected"
	case VerdictSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// RejectReason classifies a validation rejection.
type RejectReason string

const (
	ReasonFilenameFormat     RejectReason = "filename-format"
	ReasonEncodingMismatch   RejectReason = "encoding-mismatch"
	ReasonFramingMismatch    RejectReason = "framing-mismatch"
	ReasonRowCountRegression RejectReason = "row-count-regression"
	ReasonColumnMismatch     RejectReason = "column-mismatch"
)

// Outcome is the result of running the validation gate over one file.
type Outcome struct {
	Verdict    Verdict
	Reason     RejectReason // set when Verdict is VerdictRejected
	Detail     string
	Records    RecordSet // set when Verdict is VerdictProceed
	ArchivedTo string    // empty if the file was not archived
}

// Proceed reports whether the file may be loaded.
func (o Outcome) Proceed() bool { return o.Verdict == VerdictProceed }

// Err returns the rejection as an error, or nil for any other verdict.
func (o Outcome) Err() error {
	if o.Verdict != VerdictRejected {
		return nil
	}
	return &RejectionError{Reason: o.Reason, Detail: o.Detail}
}

// RowCounter reports the live row count of the target table.
type RowCounter interface {
	CountRows(ctx context.Context) (int64, error)
}

// TableLoader replaces the contents of the target table with a record set.
// It returns the row count reported by the database for the insert.
type TableLoader interface {
	Replace(ctx context.Context, rs RecordSet) (int64, error)
}

// JobRunner starts a downstream job and waits for it to finish.
type JobRunner interface {
	Run(ctx context.Context, jobID string) (jobs.Run, error)
}

// Notifier dispatches one notification. Delivery failures are handled by
// the implementation and never returned.
type Notifier interface {
	Notify(ctx context.Context, category notify.Category, message string)
}

// Archiver moves a consumed file out of the inbox and returns its new path.
type Archiver interface {
	Archive(path string) (string, error)
}

// RunResult describes one pass of the pipeline over one file.
type RunResult struct {
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	File      string          `json:"file"`
	StartedAt time.Time       `json:"startedAt"`
	Duration  time.Duration   `json:"duration"`
	Verdict   string          `json:"verdict"`
	Reason    RejectReason    `json:"reason,omitempty"`
	Category  notify.Category `json:"category,omitempty"` // empty when nothing was dispatched
	Rows      int             `json:"rows"`
	Job       *jobs.Run       `json:"job,omitempty"`
	Message   string          `json:"message"`
	Error     string          `json:"error,omitempty"`
}
