package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// NopLogger returns a logger that discards all output.
// Use this in tests to avoid log noise.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// LogCapture collects JSON log records written by background goroutines
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Records decodes every captured line
func (c *LogCapture) Records() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		var rec map[string]any
		if json.Unmarshal([]byte(line), &rec) == nil {
			records = append(records, rec)
		}
	}
	return records
}

// Find returns the first record with the given message
func (c *LogCapture) Find(msg string) (map[string]any, bool) {
	for _, rec := range c.Records() {
		if rec[slog.MessageKey] == msg {
			return rec, true
		}
	}
	return nil, false
}

// CaptureLogger returns a debug-level logger whose output can be inspected
func CaptureLogger() (*slog.Logger, *LogCapture) {
	capture := &LogCapture{}
	return slog.New(slog.NewJSONHandler(capture, &slog.HandlerOptions{Level: slog.LevelDebug})), capture
}
