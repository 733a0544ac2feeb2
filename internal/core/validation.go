package core

// validation.go implements the validation gate run over every incoming file.
//
// Checks run in a fixed order and stop at the first failure:
//  1. System artifact: OS metadata files are skipped silently
//  2. Filename format: source-tag prefix and a recognized extension
//  3. Encoding: UTF-8 with a byte-order mark
//  4. Framing: the four boilerplate lines
//  5. Row-count regression: file data rows >= live table rows
//  6. Column match: header equals the reference column set
//
// Archival: once a file has passed checks 1-2 it is archived as soon as the
// gate reaches a verdict on checks 3-5, or right after parsing when check 5
// passes. Files stopped by checks 1-2, and files that cannot be read, stay in
// the inbox. A file that fails check 6 has therefore already been archived.

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// systemArtifacts are lowercased basenames created by desktop operating systems.
var systemArtifacts = map[string]struct{}{
	".ds_store":   {},
	"thumbs.db":   {},
	"ehthumbs.db": {},
	"desktop.ini": {},
	".localized":  {},
	"icon\r":      {},
}

// IsSystemArtifact reports whether base is an OS-generated metadata file.
// AppleDouble files (._name) are included.
func IsSystemArtifact(base string) bool {
	if strings.HasPrefix(base, "._") {
		return true
	}
	_, ok := systemArtifacts[strings.ToLower(base)]
	return ok
}

// GateConfig holds the static parameters of the gate.
type GateConfig struct {
	SourceTag      string
	FilenamePrefix string   // prepended to SourceTag, e.g. "wq_"
	Extensions     []string // e.g. ".csv"; compared case-insensitively
	Frame          Frame
	MaxFileSize    int64 // 0 disables the limit
}

// Gate decides whether a file may be loaded.
type Gate struct {
	cfg      GateConfig
	counter  RowCounter
	columns  ColumnSource
	archiver Archiver
}

// NewGate creates a gate. A nil archiver turns archiving off, which is what
// the read-only "check" command wants.
func NewGate(cfg GateConfig, counter RowCounter, columns ColumnSource, archiver Archiver) *Gate {
	return &Gate{cfg: cfg, counter: counter, columns: columns, archiver: archiver}
}

// Evaluate runs the checks over the file at path.
//
// Rejections are reported through the Outcome with a nil error. A non-nil
// error means the gate could not reach a verdict (database unreachable,
// archive failure, oversized file); the Outcome then still records how far
// the file got, including ArchivedTo.
func (g *Gate) Evaluate(ctx context.Context, path string) (Outcome, error) {
	base := filepath.Base(path)

	// 1. System artifact
	if IsSystemArtifact(base) {
		return Outcome{Verdict: VerdictSkipped, Detail: "system artifact"}, nil
	}

	// 2. Filename format
	if detail, ok := g.checkFilename(base); !ok {
		return rejected(ReasonFilenameFormat, detail), nil
	}

	f, err := Inspect(path, g.cfg.Frame, g.cfg.MaxFileSize)
	if errors.Is(err, fs.ErrNotExist) {
		// Already consumed, e.g. delivered by both the startup scan and the watcher.
		return Outcome{Verdict: VerdictSkipped, Detail: "file no longer present"}, nil
	}
	if errors.Is(err, ErrFileTooLarge) {
		return Outcome{}, err
	}
	if err != nil {
		return rejected(ReasonEncodingMismatch, fmt.Sprintf("could not read file: %v", err)), nil
	}

	// 3. Encoding
	if f.Encoding != EncodingUTF8BOM {
		out := rejected(ReasonEncodingMismatch,
			fmt.Sprintf("detected %s, expected %s", f.Encoding, EncodingUTF8BOM))
		return g.archive(out, path)
	}

	// 4. Framing
	if !f.FramingOK {
		out := rejected(ReasonFramingMismatch, "boilerplate lines do not match")
		return g.archive(out, path)
	}

	// 5. Row-count regression
	current, err := g.counter.CountRows(ctx)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "count target table rows")
	}
	if rows := int64(f.DataRows()); rows < current {
		out := rejected(ReasonRowCountRegression,
			fmt.Sprintf("file has %d data rows, table has %d", rows, current))
		return g.archive(out, path)
	}

	rs, parseErr := ParseRecordsBytes(f.data)
	if parseErr == nil && rs.Len() != f.DataRows() {
		parseErr = errors.Wrapf(ErrMalformedRecords,
			"parsed %d records from %d data lines", rs.Len(), f.DataRows())
	}

	// The file has been read in full; it leaves the inbox whatever check 6 says.
	out, err := g.archive(Outcome{Verdict: VerdictProceed}, path)
	if err != nil {
		return out, err
	}

	// 6. Column match
	if parseErr != nil {
		if errors.Is(parseErr, ErrMalformedRecords) {
			out.Verdict, out.Reason, out.Detail = VerdictRejected, ReasonColumnMismatch, parseErr.Error()
			return out, nil
		}
		return out, parseErr
	}

	expected, err := g.columns.ExpectedColumns(ctx)
	if err != nil {
		return out, errors.Wrap(err, "load reference columns")
	}
	if diff := CompareColumns(rs.Header, expected); !diff.Match() {
		out.Verdict, out.Reason, out.Detail = VerdictRejected, ReasonColumnMismatch, diff.String()
		return out, nil
	}

	out.Records = rs
	return out, nil
}

func (g *Gate) checkFilename(base string) (string, bool) {
	prefix := g.cfg.FilenamePrefix + g.cfg.SourceTag
	if !strings.HasPrefix(strings.ToLower(base), strings.ToLower(prefix)) {
		return fmt.Sprintf("%q does not start with %q", base, prefix), false
	}

	ext := strings.ToLower(filepath.Ext(base))
	for _, want := range g.cfg.Extensions {
		if ext == strings.ToLower(want) {
			return "", true
		}
	}
	return fmt.Sprintf("extension %q not in %s", ext, strings.Join(g.cfg.Extensions, ", ")), false
}

func (g *Gate) archive(out Outcome, path string) (Outcome, error) {
	if g.archiver == nil {
		return out, nil
	}
	dest, err := g.archiver.Archive(path)
	out.ArchivedTo = dest
	if err != nil {
		return out, err
	}
	return out, nil
}

func rejected(reason RejectReason, detail string) Outcome {
	return Outcome{Verdict: VerdictRejected, Reason: reason, Detail: detail}
}
