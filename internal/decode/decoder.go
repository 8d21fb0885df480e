// Package decode reassembles raw device chunks into discrete scan payloads.
// A payload is exactly the bytes between two delimiters; an unterminated
// trailing fragment is never emitted.
package decode

import "bytes"

// Decoder accumulates raw chunks and extracts delimiter-terminated records.
// It is owned by the capture loop and is not safe for concurrent use.
type Decoder struct {
	delimiter byte
	stripCR   bool
	buf       []byte
}

// NewDecoder creates a decoder splitting on the given delimiter byte.
// With stripCR set, a trailing '\r' before the delimiter is dropped, for
// scanners configured to terminate with CRLF.
func NewDecoder(delimiter byte, stripCR bool) *Decoder {
	return &Decoder{delimiter: delimiter, stripCR: stripCR}
}

// Feed appends a chunk to the accumulation buffer and returns the complete
// records it now contains, in stream order. Consumed bytes are discarded;
// a partial record stays buffered for the next chunk.
func (d *Decoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var records []string
	for {
		i := bytes.IndexByte(d.buf, d.delimiter)
		if i < 0 {
			break
		}
		rec := d.buf[:i]
		if d.stripCR && len(rec) > 0 && rec[len(rec)-1] == '\r' {
			rec = rec[:len(rec)-1]
		}
		records = append(records, string(rec))
		d.buf = d.buf[i+1:]
	}

	// Re-base so consumed bytes do not pin the backing array forever
	if len(d.buf) == 0 {
		d.buf = nil
	}

	return records
}

// Pending returns the number of buffered bytes awaiting a delimiter
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset discards any buffered fragment. Called at every session start so a
// new connection never observes stale bytes, and at disconnect, where a
// partial scan is not a valid payload.
func (d *Decoder) Reset() {
	d.buf = nil
}
