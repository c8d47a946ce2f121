// Package sse implements line-level framing for Server-Sent-Events byte
// streams. It only reassembles transport frames; payload decoding is left to
// the response translators so that each stage can be tested in isolation.
package sse

import "bytes"

var dataPrefix = []byte("data:")

// Reassembler buffers raw stream fragments of arbitrary granularity and
// yields the payload of each complete `data:` line. A single line may arrive
// split across many fragments, and one fragment may carry many lines; the
// trailing unterminated partial line is retained until the next Feed.
//
// A Reassembler is single-use and belongs to exactly one upstream response.
// It is not safe for concurrent use.
type Reassembler struct {
	buf []byte
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends a fragment and returns the payloads of all data lines
// completed by it, in arrival order. Blank lines, comment lines and lines
// with an unrecognized field prefix (e.g. "event:", "id:") are discarded;
// SSE clients of the upstream generation API only consume data frames.
func (r *Reassembler) Feed(fragment []byte) [][]byte {
	if len(fragment) == 0 {
		return nil
	}
	r.buf = append(r.buf, fragment...)

	var payloads [][]byte
	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			break
		}
		line := r.buf[:idx]
		r.buf = r.buf[idx+1:]
		if payload, ok := dataPayload(line); ok {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}

// Flush must be called once the upstream stream ends. It returns any
// non-whitespace residue left in the buffer: a well-behaved upstream leaves
// nothing behind, so a non-empty return means the final line was truncated
// or the stream is malformed. The caller decides the policy; the residue is
// never silently dropped here. If the residue happens to be a complete data
// line (stream ended without a trailing newline), its payload is returned.
func (r *Reassembler) Flush() []byte {
	residue := bytes.TrimSpace(r.buf)
	r.buf = nil
	if len(residue) == 0 {
		return nil
	}
	if payload, ok := dataPayload(residue); ok {
		return payload
	}
	return residue
}

// dataPayload classifies one complete line, returning the trimmed payload of
// a data line. The `data:` field name may be followed by at most one
// optional space per the SSE grammar; upstream implementations differ, so
// any leading whitespace after the colon is tolerated.
func dataPayload(line []byte) ([]byte, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return nil, false
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true
}
