package sse_test

import (
	"strings"
	"testing"

	"github.com/fwojciec/pulse/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderSingleFrame(t *testing.T) {
	t.Parallel()

	var d sse.Decoder
	frames := d.Decode("event: status\ndata: {\"message\":\"working\"}\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "event: status\ndata: {\"message\":\"working\"}\n", frames[0])
	assert.Empty(t, d.Pending())
}

func TestDecoderFrameSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	var d sse.Decoder
	frames := d.Decode("event: st")
	assert.Empty(t, frames)
	assert.Equal(t, "event: st", d.Pending())

	frames = d.Decode("atus\ndata: x\n\n")
	require.Len(t, frames, 1)

	evt := sse.Parse(frames[0])
	assert.Equal(t, "status", evt.Type)
	assert.Equal(t, "x", evt.Raw)
	assert.Empty(t, d.Pending())
}

func TestDecoderMultipleFramesInOneChunk(t *testing.T) {
	t.Parallel()

	var d sse.Decoder
	frames := d.Decode("data: one\n\ndata: two\n\ndata: th")
	require.Len(t, frames, 2)
	assert.Equal(t, "data: one\n", frames[0])
	assert.Equal(t, "data: two\n", frames[1])
	assert.Equal(t, "data: th", d.Pending())
}

func TestDecoderCRLF(t *testing.T) {
	t.Parallel()

	var d sse.Decoder
	frames := d.Decode("event: done\r\ndata: {}\r\n\r\n")
	require.Len(t, frames, 1)

	evt := sse.Parse(frames[0])
	assert.Equal(t, "done", evt.Type)
	assert.JSONEq(t, "{}", string(evt.Data))
}

func TestDecoderSkipsEmptyFrames(t *testing.T) {
	t.Parallel()

	var d sse.Decoder
	frames := d.Decode("\n\n\ndata: x\n\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "data: x\n", frames[0])
}

// TestDecoderChunkBoundaryInvariance verifies that the frames produced are a
// pure function of the byte stream, no matter where the transport splits it.
func TestDecoderChunkBoundaryInvariance(t *testing.T) {
	t.Parallel()

	input := "event: status\ndata: {\"message\":\"classifying\"}\n\n" +
		": heartbeat\n\n" +
		"retry: 1500\n\n" +
		"data: line one\ndata: line two\n\n"

	var whole sse.Decoder
	want := whole.Decode(input)
	require.NotEmpty(t, want)

	for split := 1; split < len(input); split++ {
		var d sse.Decoder
		got := d.Decode(input[:split])
		got = append(got, d.Decode(input[split:])...)
		assert.Equal(t, want, got, "split at byte %d", split)
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	t.Parallel()

	input := "event: done\ndata: {\"summary\":\"42 rows\"}\n\n"

	var d sse.Decoder
	var frames []string
	for _, r := range input {
		frames = append(frames, d.Decode(string(r))...)
	}
	require.Len(t, frames, 1)

	evt := sse.Parse(frames[0])
	assert.Equal(t, "done", evt.Type)
	assert.JSONEq(t, `{"summary":"42 rows"}`, string(evt.Data))
}

func TestDecoderLargeFrame(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("x", 64*1024)
	var d sse.Decoder
	frames := d.Decode("data: " + payload + "\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, payload, sse.Parse(frames[0]).Raw)
}
