// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"strings"
)

// =============================================================================
// SSE FRAME PARSER
// =============================================================================

// frameDelimiter separates SSE frames: a blank line.
var frameDelimiter = []byte("\n\n")

// dataPrefix marks the payload-carrying lines within a frame.
const dataPrefix = "data:"

// FrameParser splits a raw Server-Sent-Events byte stream into discrete
// payload strings, tolerant of TCP-level fragmentation. Bytes are buffered
// until a complete frame delimiter arrives, so chunks may split frames (and
// multi-byte UTF-8 sequences) at arbitrary byte boundaries without corrupting
// payloads. Frames are emitted strictly in arrival order.
//
// The parser is forward-only and not restartable; use one per response body.
type FrameParser struct {
	buf []byte
}

// NewFrameParser creates an empty frame parser.
func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// Feed appends a chunk of bytes and returns the payloads of every frame
// completed so far. When eof is true the remaining buffer is scanned one
// final time, which handles servers that omit the trailing delimiter.
func (p *FrameParser) Feed(chunk []byte, eof bool) []string {
	p.buf = append(p.buf, chunk...)

	var payloads []string
	for {
		i := bytes.Index(p.buf, frameDelimiter)
		if i < 0 {
			break
		}
		frame := p.buf[:i]
		p.buf = p.buf[i+len(frameDelimiter):]
		payloads = appendDataLines(payloads, frame)
	}

	if eof && len(bytes.TrimSpace(p.buf)) > 0 {
		payloads = appendDataLines(payloads, p.buf)
		p.buf = nil
	}

	return payloads
}

// appendDataLines extracts the "data:" lines of one frame, prefix stripped
// and trimmed, preserving line order. Other SSE fields (event:, id:, retry:,
// comments) are ignored.
func appendDataLines(payloads []string, frame []byte) []string {
	for _, line := range strings.Split(string(frame), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, dataPrefix) {
			payloads = append(payloads, strings.TrimSpace(line[len(dataPrefix):]))
		}
	}
	return payloads
}
