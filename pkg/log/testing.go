package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// CaptureBuffer is a goroutine-safe buffer; forest workers log concurrently.
type CaptureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *CaptureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *CaptureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *CaptureBuffer) Reset() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
}

// TestLogger is a zerolog-backed Logger that records JSON lines in memory so
// tests can assert on what a component logged.
type TestLogger struct {
	*ZerologLogger
	out *CaptureBuffer
}

// NewTestLogger returns a logger at level and a view of its output.
func NewTestLogger(level Level) (*TestLogger, *CaptureBuffer) {
	out := &CaptureBuffer{}
	p := NewZerologProviderWithWriter(out, level)
	return &TestLogger{ZerologLogger: p.GetLogger().(*ZerologLogger), out: out}, out
}

// GetLogEntries decodes every captured line.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	for _, line := range strings.Split(t.out.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := map[string]interface{}{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (t *TestLogger) ContainsMessage(message string) bool {
	return strings.Contains(t.out.String(), message)
}

// ContainsField reports whether any entry has key == value. JSON numbers
// decode as float64.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, e := range entries {
		if v, ok := e[key]; ok && v == value {
			return true
		}
	}
	return false
}

func (t *TestLogger) Clear() { t.out.Reset() }

// TestLoggerProvider hands out named loggers that all write to one TestLogger.
type TestLoggerProvider struct {
	*ZerologProvider
	logger *TestLogger
}

// NewTestLoggerProvider is for tests that swap the package provider with
// SetProvider.
func NewTestLoggerProvider(level Level) (*TestLoggerProvider, *CaptureBuffer) {
	logger, out := NewTestLogger(level)
	return &TestLoggerProvider{
		ZerologProvider: NewZerologProviderWithWriter(out, level),
		logger:          logger,
	}, out
}

// Logger returns the TestLogger for assertions.
func (p *TestLoggerProvider) Logger() *TestLogger {
	return p.logger
}
