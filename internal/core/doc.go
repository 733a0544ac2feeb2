// Package core provides the validation-and-load pipeline for extract files.
//
// The package has no transport or UI dependencies. The database, downstream
// job and notification collaborators are injected through small interfaces
// ([RowCounter], [TableLoader], [JobRunner], [Notifier], [Archiver]), so every
// stage can be tested with fakes.
//
// # Extract Format
//
// An extract is a UTF-8 CSV file with a byte-order mark, wrapped in four fixed
// boilerplate lines: two at the top and two at the bottom. The first line
// inside the framing is the header. The number of data rows is therefore the
// line count minus [FramingOverhead].
//
// # Flow
//
//  1. [Worker] receives a path from the inbox watcher and waits out the settle delay
//  2. [Pipeline.Process] runs the [Gate] (detector and parser inside)
//  3. On Proceed, the [TableLoader] truncates and reloads the table in one transaction
//  4. The table is counted again; a mismatch with the record count is an error
//  5. The optional downstream job runs under a bounded wait
//  6. Exactly one notification is sent: Success, Notice or Error
//
// # Error Handling
//
// Technical errors are mapped to operator-facing messages using [MapError].
// Each message carries a code for reference:
//
//   - VAL101-VAL105: Validation rejections
//   - FILE001-FILE004: File errors (size, read, archive, malformed rows)
//   - DB001-DB006: Database errors (count mismatch, connectivity, constraints)
//   - JOB001-JOB003: Downstream job errors (timeout, failed, unknown)
package core
