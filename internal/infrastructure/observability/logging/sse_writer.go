package logging

import (
	"strings"
)

// SSEWriter is an io.Writer that forwards completed log lines into the
// log broadcaster. Handlers write JSON one line at a time; partial writes
// are buffered until a newline arrives.
type SSEWriter struct {
	broadcaster *LogBroadcaster
	partial     strings.Builder
}

// NewSSEWriter creates a writer bound to the process-wide log broadcaster.
func NewSSEWriter() *SSEWriter {
	return &SSEWriter{broadcaster: GetLogBroadcaster()}
}

// Write implements io.Writer. Each newline-terminated chunk is submitted to
// the broadcaster as one log event; incomplete trailing data is held back.
func (w *SSEWriter) Write(p []byte) (int, error) {
	w.partial.Write(p)

	buffered := w.partial.String()
	for {
		idx := strings.IndexByte(buffered, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(buffered[:idx])
		buffered = buffered[idx+1:]
		if line != "" {
			w.broadcaster.SubmitLog(line)
		}
	}

	w.partial.Reset()
	w.partial.WriteString(buffered)

	return len(p), nil
}
