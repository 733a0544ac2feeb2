package core

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSniffEncoding(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  Encoding
	}{
		{"utf-8 with BOM", []byte{0xEF, 0xBB, 0xBF, 'a'}, EncodingUTF8BOM},
		{"utf-16le", []byte{0xFF, 0xFE, 'a', 0x00}, EncodingUTF16LE},
		{"utf-16be", []byte{0xFE, 0xFF, 0x00, 'a'}, EncodingUTF16BE},
		{"utf-32le", []byte{0xFF, 0xFE, 0x00, 0x00, 'a', 0, 0, 0}, EncodingUTF32LE},
		{"utf-32be", []byte{0x00, 0x00, 0xFE, 0xFF, 0, 0, 0, 'a'}, EncodingUTF32BE},
		{"ascii", []byte("plain,text\r\n"), EncodingASCII},
		{"empty is ascii", []byte{}, EncodingASCII},
		{"utf-8 without BOM", []byte("caf\xc3\xa9"), EncodingUTF8},
		{"latin-1", []byte("caf\xe9"), EncodingUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffEncoding(tt.input); got != tt.want {
				t.Errorf("SniffEncoding() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetectEncoding_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wq_ACME.csv", extract{rows: 2}.bytes())

	got, err := DetectEncoding(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != EncodingUTF8BOM {
		t.Errorf("got %s, want %s", got, EncodingUTF8BOM)
	}

	if _, err := DetectEncoding(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFramingMatches(t *testing.T) {
	altered := DefaultFrame
	altered.First = "Confidential"

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"valid CRLF", extract{rows: 3}.bytes(), true},
		{"valid LF", extract{rows: 3, lineEnd: "\n"}.bytes(), true},
		{"valid without BOM", extract{rows: 3, noBOM: true}.bytes(), true},
		{"no data rows", extract{}.bytes(), true},
		{"wrong first line", extract{rows: 3, frame: &altered}.bytes(), false},
		{"too few lines", []byte("\xEF\xBB\xBFone\r\ntwo\r\nthree\r\n"), false},
		{"invalid utf-8", append(extract{rows: 1}.bytes(), 0xFF, '\r', '\n'), false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FramingMatches(tt.data, DefaultFrame); got != tt.want {
				t.Errorf("FramingMatches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFramingMatches_MissingTrailingNewline(t *testing.T) {
	data := extract{rows: 1}.bytes()
	data = data[:len(data)-2] // drop final CRLF
	if !FramingMatches(data, DefaultFrame) {
		t.Error("framing should not depend on a final line terminator")
	}
}

func TestCheckFraming_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wq_ACME.csv", extract{rows: 1}.bytes())

	ok, err := CheckFraming(path, DefaultFrame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected framing to match")
	}
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"extract with 10 rows", extract{rows: 10}.bytes(), 15},
		{"extract with no rows", extract{}.bytes(), 5},
		{"no trailing newline", []byte("a\nb"), 2},
		{"empty", nil, 0},
		{"bom only", []byte{0xEF, 0xBB, 0xBF}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountLines(tt.data); got != tt.want {
				t.Errorf("CountLines() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wq_ACME.csv", extract{rows: 4}.bytes())

	f, err := Inspect(path, DefaultFrame, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Base != "wq_ACME.csv" {
		t.Errorf("Base = %q", f.Base)
	}
	if f.Encoding != EncodingUTF8BOM || !f.FramingOK {
		t.Errorf("Encoding = %s, FramingOK = %v", f.Encoding, f.FramingOK)
	}
	if f.DataRows() != 4 {
		t.Errorf("DataRows() = %d, want 4", f.DataRows())
	}
}

func TestInspect_TooLarge(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wq_ACME.csv", extract{rows: 4}.bytes())

	_, err := Inspect(path, DefaultFrame, 10)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("got %v, want ErrFileTooLarge", err)
	}
}

func TestIncomingFile_DataRowsNeverNegative(t *testing.T) {
	for _, lines := range []int{0, 3, 5} {
		if got := (IncomingFile{Lines: lines}).DataRows(); got != 0 {
			t.Errorf("DataRows() with %d lines = %d, want 0", lines, got)
		}
	}
}
