package core

// columns.go provides the reference column list used by the column-match check.
//
// The list is fetched on every validation run so operators can change it
// without restarting the daemon.

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ColumnSource returns the expected column names for the target table.
type ColumnSource interface {
	ExpectedColumns(ctx context.Context) ([]string, error)
}

// ColumnSourceFunc adapts a function to ColumnSource.
type ColumnSourceFunc func(ctx context.Context) ([]string, error)

func (f ColumnSourceFunc) ExpectedColumns(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// StaticColumns is a fixed column list, typically from INGEST_EXPECTED_COLUMNS.
type StaticColumns []string

func (s StaticColumns) ExpectedColumns(context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// FileColumns reads the column list from a file on each call.
//
// Files ending in .yaml or .yml hold a YAML sequence of strings, or a mapping
// with a "columns" key. Any other file is plain text with one name per line;
// blank lines and lines starting with # are ignored.
type FileColumns struct {
	Path string
}

func (f FileColumns) ExpectedColumns(context.Context) ([]string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "read column list %s", f.Path)
	}

	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".yaml", ".yml":
		return parseYAMLColumns(data)
	default:
		return parseTextColumns(data)
	}
}

func parseTextColumns(data []byte) ([]string, error) {
	var cols []string
	sc := bufio.NewScanner(bytes.NewReader(bytes.TrimPrefix(data, bomUTF8)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols = append(cols, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan column list")
	}
	return cols, nil
}

func parseYAMLColumns(data []byte) ([]string, error) {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Columns []string `yaml:"columns"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse column list")
	}
	return doc.Columns, nil
}

// ColumnDiff is the result of comparing a header against the expected set.
type ColumnDiff struct {
	Missing    []string // expected but absent from the header
	Unexpected []string // in the header but not expected
}

// Match reports whether the two sets are equal.
func (d ColumnDiff) Match() bool {
	return len(d.Missing) == 0 && len(d.Unexpected) == 0
}

func (d ColumnDiff) String() string {
	var parts []string
	if len(d.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(d.Missing, ", "))
	}
	if len(d.Unexpected) > 0 {
		parts = append(parts, "unexpected: "+strings.Join(d.Unexpected, ", "))
	}
	return strings.Join(parts, "; ")
}

// CompareColumns compares header with expected as sets. Order and
// duplicates are ignored; names are compared exactly.
func CompareColumns(header, expected []string) ColumnDiff {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[h] = struct{}{}
	}
	want := make(map[string]struct{}, len(expected))
	for _, e := range expected {
		want[e] = struct{}{}
	}

	var d ColumnDiff
	for e := range want {
		if _, ok := have[e]; !ok {
			d.Missing = append(d.Missing, e)
		}
	}
	for h := range have {
		if _, ok := want[h]; !ok {
			d.Unexpected = append(d.Unexpected, h)
		}
	}
	sort.Strings(d.Missing)
	sort.Strings(d.Unexpected)
	return d
}
