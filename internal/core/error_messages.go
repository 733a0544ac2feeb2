package core

// error_messages.go turns pipeline failures into operator-facing messages.
//
// Every notification carries a short code so an operator can find the cause
// quickly. Codes are grouped by category:
//
//	VAL101-VAL105  Validation rejections (one per gate reason)
//	FILE001-FILE004 File handling (size, read, archive, malformed rows)
//	DB001-DB006    Database (count mismatch, connectivity, constraints)
//	JOB001-JOB003  Downstream job (timeout, failed run, unknown job)
//	ERR000         Fallback when nothing matches
//
// Rejections and sentinel errors are matched structurally with errors.As and
// errors.Is. Anything else falls through to substring patterns over the
// lowercased error text; the first matching pattern wins.

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/JonMunkholm/wqingest/internal/jobs"
)

// Sentinel errors raised by the pipeline.
var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrMalformedRecords = errors.New("malformed records")
	ErrCountMismatch    = errors.New("post-load row count mismatch")
	ErrArchiveFailed    = errors.New("archive failed")
)

// RejectionError is a validation rejection expressed as an error.
type RejectionError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return "rejected: " + string(e.Reason)
	}
	return fmt.Sprintf("rejected: %s: %s", e.Reason, e.Detail)
}

// UserMessage provides operator-facing error information.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Reference code
}

var rejectionMessages = map[RejectReason]UserMessage{
	ReasonFilenameFormat: {
		Message: "File name does not match the expected extract name",
		Action:  "Rename the file with the source tag prefix and a .csv extension, then redeposit it",
		Code:    "VAL101",
	},
	ReasonEncodingMismatch: {
		Message: "File is not encoded as UTF-8 with a byte-order mark",
		Action:  "Re-export the extract without re-saving it in another program",
		Code:    "VAL102",
	},
	ReasonFramingMismatch: {
		Message: "File does not carry the expected header and footer lines",
		Action:  "Check that the file is an unmodified extract",
		Code:    "VAL103",
	},
	ReasonRowCountRegression: {
		Message: "File has fewer data rows than the table currently holds",
		Action:  "Confirm the extract is complete before redepositing it under a new name",
		Code:    "VAL104",
	},
	ReasonColumnMismatch: {
		Message: "File columns do not match the expected column list",
		Action:  "Update the reference column list or request a corrected extract",
		Code:    "VAL105",
	},
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages are checked in order with errors.Is.
var sentinelMessages = []sentinelMessage{
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Raise INGEST_MAX_FILE_SIZE if the extract is legitimately this large",
		Code:    "FILE001",
	}},
	{ErrArchiveFailed, UserMessage{
		Message: "File could not be moved to the archive folder",
		Action:  "Check free space and permissions on the archive folder",
		Code:    "FILE003",
	}},
	{ErrMalformedRecords, UserMessage{
		Message: "File contains rows that could not be parsed",
		Action:  "Inspect the reported line in the extract",
		Code:    "FILE004",
	}},
	{ErrCountMismatch, UserMessage{
		Message: "Table row count after load does not match the file",
		Action:  "Check the table for constraint violations; the table may be partially loaded",
		Code:    "DB001",
	}},
	{jobs.ErrJobTimeout, UserMessage{
		Message: "Downstream job did not finish in time",
		Action:  "Check the job agent; the table load itself succeeded",
		Code:    "JOB001",
	}},
	{jobs.ErrJobFailed, UserMessage{
		Message: "Downstream job ran but reported failure",
		Action:  "Review the job's step log; the table load itself succeeded",
		Code:    "JOB002",
	}},
	{jobs.ErrUnknownJob, UserMessage{
		Message: "Downstream job does not exist or is disabled",
		Action:  "Check JOB_NAME against the job scheduler",
		Code:    "JOB003",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns cover errors that arrive from drivers as plain text.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check that the database is up and reachable",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Redeposit the file once the database is stable",
			Code:    "DB003",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "Database object does not exist",
			Action:  "Check TARGET_TABLE and the column names in the extract header",
			Code:    "DB004",
		},
	},
	{
		pattern: "violates",
		msg: UserMessage{
			Message: "Rows violate a table constraint",
			Action:  "Review the extract for duplicate or missing key values",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Check database load and LOAD_TIMEOUT",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Check database load and LOAD_TIMEOUT",
			Code:    "DB006",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "File disappeared before it could be read",
			Action:  "Check whether another process moves files out of the inbox",
			Code:    "FILE002",
		},
	},
	{
		pattern: "permission denied",
		msg: UserMessage{
			Message: "File could not be read",
			Action:  "Check permissions on the inbox folder",
			Code:    "FILE002",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the ingest log for details",
	Code:    "ERR000",
}

// MapError converts an error to an operator-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var rej *RejectionError
	if errors.As(err, &rej) {
		if msg, ok := rejectionMessages[rej.Reason]; ok {
			return msg
		}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
