package sse

import "strings"

// Decoder turns successive network chunks into complete raw frames,
// carrying the remainder after the last complete frame forward untouched.
// The zero value is ready to use.
type Decoder struct {
	buf string
}

// Decode appends chunk to the carried buffer and returns every frame whose
// terminating blank line has now been fully received, in order. No frame is
// emitted before its terminator arrives.
func (d *Decoder) Decode(chunk string) []string {
	frames, rest := splitFrames(d.buf + chunk)
	d.buf = rest
	return frames
}

// Pending returns the carried remainder. Useful for diagnostics and tests.
func (d *Decoder) Pending() string { return d.buf }

// splitFrames scans buf for frames terminated by a blank line. Lines end
// with \n, optionally preceded by \r. Frames that contain nothing at all
// (runs of consecutive blank lines) are skipped.
func splitFrames(buf string) (frames []string, rest string) {
	start := 0     // start of the frame being scanned
	lineStart := 0 // start of the line being scanned
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		line := strings.TrimSuffix(buf[lineStart:i], "\r")
		if line == "" {
			if frame := buf[start:lineStart]; frame != "" {
				frames = append(frames, frame)
			}
			start = i + 1
		}
		lineStart = i + 1
	}
	return frames, buf[start:]
}
