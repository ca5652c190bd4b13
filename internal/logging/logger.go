package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Category groups log entries by subsystem.
type Category string

const (
	CatSystem    Category = "system"
	CatReader    Category = "reader"
	CatTag       Category = "tag"
	CatHTTP      Category = "http"
	CatWebSocket Category = "websocket"
)

// Entry is a single log record kept in the in-memory ring buffer.
type Entry struct {
	Time     time.Time      `json:"time"`
	Level    Level          `json:"level"`
	Category Category       `json:"category"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
}

type logger struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	next     int
	full     bool
	minLevel Level
}

var std = &logger{capacity: 1000}

// Init sets the ring buffer capacity and the minimum level that is recorded.
// Safe to call more than once; the buffer is reset.
func Init(capacity int, minLevel Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if capacity <= 0 {
		capacity = 1000
	}
	std.capacity = capacity
	std.entries = make([]Entry, capacity)
	std.next = 0
	std.full = false
	std.minLevel = minLevel
}

// SetLevel changes the minimum recorded level.
func SetLevel(minLevel Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.minLevel = minLevel
}

func (l *logger) log(level Level, cat Category, msg string, fields map[string]any) {
	l.mu.Lock()
	if level < l.minLevel {
		l.mu.Unlock()
		return
	}
	if l.entries == nil {
		l.entries = make([]Entry, l.capacity)
	}
	e := Entry{
		Time:     time.Now(),
		Level:    level,
		Category: cat,
		Message:  msg,
		Fields:   fields,
	}
	l.entries[l.next] = e
	l.next++
	if l.next == l.capacity {
		l.next = 0
		l.full = true
	}
	l.mu.Unlock()

	fmt.Fprintf(os.Stderr, "%s %-5s [%s] %s%s\n",
		e.Time.Format("15:04:05.000"), level, cat, msg, formatFields(fields))
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

// Debug logs a debug-level entry.
func Debug(cat Category, msg string, fields map[string]any) {
	std.log(LevelDebug, cat, msg, fields)
}

// Info logs an info-level entry.
func Info(cat Category, msg string, fields map[string]any) {
	std.log(LevelInfo, cat, msg, fields)
}

// Warn logs a warn-level entry.
func Warn(cat Category, msg string, fields map[string]any) {
	std.log(LevelWarn, cat, msg, fields)
}

// Error logs an error-level entry.
func Error(cat Category, msg string, fields map[string]any) {
	std.log(LevelError, cat, msg, fields)
}

// GetEntries returns up to limit of the most recent entries, newest last.
func GetEntries(limit int) []Entry {
	std.mu.Lock()
	defer std.mu.Unlock()

	var out []Entry
	if std.full {
		out = append(out, std.entries[std.next:]...)
		out = append(out, std.entries[:std.next]...)
	} else {
		out = append(out, std.entries[:std.next]...)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
