package testutil

import (
	"strings"
	"sync"

	"github.com/trezcool/payouts/core"
)

// Logger records every line instead of printing it.
type Logger struct {
	mu    sync.Mutex
	lines []string
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) record(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+": "+msg)
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.record("DEBUG", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.record("INFO", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.record("WARN", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.record("ERROR", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.record("FATAL", msg) }

// Lines returns the recorded lines, "LEVEL: message".
func (l *Logger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Contains reports whether a recorded line at `level` contains `substr`.
func (l *Logger) Contains(level, substr string) bool {
	for _, line := range l.Lines() {
		if strings.HasPrefix(line, level+": ") && strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
