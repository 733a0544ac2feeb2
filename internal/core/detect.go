package core

// detect.go classifies extract files before anything is parsed.
//
// Encoding detection looks only at raw bytes. The framing check decodes
// strictly as UTF-8 (the one encoding the extract is produced in); a file that
// does not decode simply fails the framing check.

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DetectEncoding reads the file at path and classifies its byte encoding.
func DetectEncoding(path string) (Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EncodingUnknown, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	return SniffEncoding(data), nil
}

// SniffEncoding classifies raw bytes. Byte-order marks win; without one the
// data is reported as ascii, utf-8 or unknown.
func SniffEncoding(data []byte) Encoding {
	switch {
	// UTF-32LE must be checked before UTF-16LE, they share a prefix.
	case bytes.HasPrefix(data, bomUTF32LE):
		return EncodingUTF32LE
	case bytes.HasPrefix(data, bomUTF32BE):
		return EncodingUTF32BE
	case bytes.HasPrefix(data, bomUTF8):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return EncodingUTF16BE
	case isASCII(data):
		return EncodingASCII
	case utf8.Valid(data):
		return EncodingUTF8
	default:
		return EncodingUnknown
	}
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// CheckFraming reports whether the file's first two and last two lines match
// the frame exactly. Decoding failures are a mismatch, not an error.
func CheckFraming(path string, frame Frame) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	return FramingMatches(data, frame), nil
}

// FramingMatches is CheckFraming over bytes already in memory.
func FramingMatches(data []byte, frame Frame) bool {
	text, err := decodeStrict(data)
	if err != nil {
		return false
	}

	lines := splitLines(text)
	n := len(lines)
	if n < FramingLines {
		return false
	}

	return lines[0] == frame.First &&
		lines[1] == frame.Second &&
		lines[n-2] == frame.Penultimate &&
		lines[n-1] == frame.Last
}

// CountLines returns the number of lines in data, using the same line rules
// as the framing check and the parser.
func CountLines(data []byte) int {
	return len(splitLines(string(bytes.TrimPrefix(data, bomUTF8))))
}

// decodeStrict validates data as UTF-8 and strips a leading BOM.
// It returns encoding.ErrInvalidUTF8 on the first invalid byte.
func decodeStrict(data []byte) (string, error) {
	t := transform.Chain(encoding.UTF8Validator, unicode.UTF8BOM.NewDecoder())
	out, _, err := transform.Bytes(t, data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// splitLines splits text on \n, trimming a trailing \r from each line.
// A terminator at the very end does not produce an extra empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Inspect reads the file once and fills in everything the structural checks
// need. Files larger than maxSize (when positive) fail with ErrFileTooLarge.
func Inspect(path string, frame Frame, maxSize int64) (IncomingFile, error) {
	f := IncomingFile{Path: path, Base: filepath.Base(path)}

	info, err := os.Stat(path)
	if err != nil {
		return f, errors.Wrapf(err, "stat %s", f.Base)
	}
	f.Size = info.Size()
	if maxSize > 0 && f.Size > maxSize {
		return f, errors.Wrapf(ErrFileTooLarge, "%s is %d bytes, limit %d", f.Base, f.Size, maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return f, errors.Wrapf(err, "read %s", f.Base)
	}

	f.data = data
	f.Encoding = SniffEncoding(data)
	f.FramingOK = FramingMatches(data, frame)
	f.Lines = CountLines(data)
	return f, nil
}
