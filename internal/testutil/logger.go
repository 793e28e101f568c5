package testutil

import (
	"fmt"
	"sync"
)

// LogEntry is one call recorded by RecordingLogger.
type LogEntry struct {
	Level string
	Msg   string
	Attrs map[string]any
}

// RecordingLogger is a qn.Logger that keeps every entry in memory.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

func (l *RecordingLogger) record(level, msg string, args []any) {
	attrs := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		attrs[fmt.Sprint(args[i])] = args[i+1]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Attrs: attrs})
}

// Entries returns a copy of the recorded entries.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Find returns the entries at level, in order.
func (l *RecordingLogger) Find(level string) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
