// Package sse implements the line-oriented event-framing wire format used
// by the analysis service: frames of event:/data:/retry: field lines
// separated by a blank line, delivered over a chunked HTTP response.
//
// The decoder is a pure function of accumulated buffer contents. Feeding it
// the same byte stream in any chunking yields the same frames: a chunk
// boundary may fall inside a field name, inside a value or exactly at a
// delimiter without dropping or duplicating bytes.
package sse
