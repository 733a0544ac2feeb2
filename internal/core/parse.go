package core

// parse.go strips the extract framing and parses the remainder into records.
//
// The framing is removed by index (first two and last two lines), not by
// content; the caller has already verified the content. The first remaining
// line is the header. Values are kept exactly as written.

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseRecords reads the file at path and returns its records.
func ParseRecords(path string) (RecordSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RecordSet{}, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	return ParseRecordsBytes(data)
}

// ParseRecordsBytes parses extract bytes already in memory.
//
// A file with no more lines than the framing overhead yields an empty record
// set, not an error. Rows whose field count differs from the header, and
// headers with duplicate names, fail with ErrMalformedRecords.
func ParseRecordsBytes(data []byte) (RecordSet, error) {
	body, err := io.ReadAll(NewBOMSkippingReader(bytes.NewReader(data)))
	if err != nil {
		return RecordSet{}, errors.Wrap(err, "read extract")
	}

	lines := splitLines(string(body))
	if len(lines) <= FramingLines {
		return RecordSet{}, nil
	}
	inner := lines[2 : len(lines)-2]

	r := csv.NewReader(strings.NewReader(strings.Join(inner, "\n")))
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return RecordSet{}, nil
	}
	if err != nil {
		return RecordSet{}, errors.Wrapf(ErrMalformedRecords, "header: %v", err)
	}
	if dup := firstDuplicate(header); dup != "" {
		return RecordSet{}, errors.Wrapf(ErrMalformedRecords, "duplicate column %q in header", dup)
	}

	r.FieldsPerRecord = len(header)
	rs := RecordSet{Header: header}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				// ParseError lines are relative to the stripped body; add the
				// two leading framing lines back for the operator.
				return RecordSet{}, errors.Wrapf(ErrMalformedRecords, "line %d: %v", pe.Line+2, pe.Err)
			}
			return RecordSet{}, errors.Wrapf(ErrMalformedRecords, "%v", err)
		}
		rs.Records = append(rs.Records, NewRecord(header, row))
	}

	return rs, nil
}

func firstDuplicate(names []string) string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return n
		}
		seen[n] = struct{}{}
	}
	return ""
}
