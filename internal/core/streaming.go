package core

// streaming.go provides byte-order-mark handling for extract files.
//
// Encoding detection works on raw bytes, so the BOM must be visible to the
// detector. The parser, on the other hand, must never see it: a leading BOM
// would otherwise become part of the first boilerplate line. BOMSkippingReader
// removes it on the fly without buffering the file.

import (
	"bytes"
	"io"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
)

// HasUTF8BOM reports whether data starts with the UTF-8 byte-order mark.
func HasUTF8BOM(data []byte) bool {
	return bytes.HasPrefix(data, bomUTF8)
}

// BOMSkippingReader wraps an io.Reader and drops a leading UTF-8 BOM.
// Any other leading bytes are passed through unchanged.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	pending []byte // bytes read while checking for the BOM
	eof     bool   // underlying reader ended during the check
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var head [3]byte
		n, err := io.ReadFull(r.reader, head[:])
		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			r.eof = true
		case err != nil:
			return 0, err
		}

		if n == len(head) && bytes.Equal(head[:], bomUTF8) {
			r.pending = nil
		} else {
			r.pending = append([]byte(nil), head[:n]...)
		}
	}

	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	if r.eof {
		return 0, io.EOF
	}
	return r.reader.Read(p)
}
