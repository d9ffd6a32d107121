package functions

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	sseDataPrefix = "data:"
	sseDone       = "[DONE]"
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// sseDecoder turns arbitrarily split reads of an event stream into content
// deltas. Partial lines stay buffered until their newline arrives.
type sseDecoder struct {
	buf       []byte
	done      bool
	malformed int
}

// Feed consumes chunk and returns the deltas of every complete line in it.
// After the end-of-stream marker further input is ignored.
func (d *sseDecoder) Feed(chunk []byte) []string {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var deltas []string
	for !d.done {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(d.buf[:i]), "\r")
		d.buf = d.buf[i+1:]
		if delta, ok := d.line(line); ok {
			deltas = append(deltas, delta)
		}
	}
	if d.done {
		d.buf = nil
	}
	return deltas
}

// Flush handles a final line that was not newline-terminated.
func (d *sseDecoder) Flush() []string {
	if d.done || len(d.buf) == 0 {
		return nil
	}
	line := strings.TrimSuffix(string(d.buf), "\r")
	d.buf = nil
	if delta, ok := d.line(line); ok {
		return []string{delta}
	}
	return nil
}

// Done reports whether the end-of-stream marker was seen.
func (d *sseDecoder) Done() bool { return d.done }

func (d *sseDecoder) line(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	data, ok := strings.CutPrefix(line, sseDataPrefix)
	if !ok {
		return "", false
	}
	data = strings.TrimPrefix(data, " ")
	if data == sseDone {
		d.done = true
		return "", false
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		d.malformed++
		return "", false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}
