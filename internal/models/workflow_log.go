package models

import (
	"fmt"
	"sync"
	"time"
)

// WorkflowLogEntry is one human-readable status line of a run
type WorkflowLogEntry struct {
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"` // "info", "warn", "error"
	Message string    `json:"message"`
}

// WorkflowLogListener receives every entry as it is appended
type WorkflowLogListener func(entry WorkflowLogEntry)

// WorkflowLog is the ordered, append-only log returned to the caller of a run.
// It is owned by orchestration and never handed to the browser driver.
type WorkflowLog struct {
	mu        sync.Mutex
	entries   []WorkflowLogEntry
	listeners map[int]WorkflowLogListener
	nextID    int
}

func NewWorkflowLog() *WorkflowLog {
	return &WorkflowLog{listeners: make(map[int]WorkflowLogListener)}
}

func (l *WorkflowLog) Info(format string, args ...interface{}) {
	l.append("info", fmt.Sprintf(format, args...))
}

func (l *WorkflowLog) Warn(format string, args ...interface{}) {
	l.append("warn", fmt.Sprintf(format, args...))
}

func (l *WorkflowLog) Error(format string, args ...interface{}) {
	l.append("error", fmt.Sprintf(format, args...))
}

func (l *WorkflowLog) append(level, message string) {
	l.mu.Lock()
	entry := WorkflowLogEntry{
		Seq:     len(l.entries) + 1,
		Time:    time.Now(),
		Level:   level,
		Message: message,
	}
	l.entries = append(l.entries, entry)
	listeners := make([]WorkflowLogListener, 0, len(l.listeners))
	for _, listener := range l.listeners {
		listeners = append(listeners, listener)
	}
	l.mu.Unlock()

	for _, listener := range listeners {
		listener(entry)
	}
}

// Subscribe registers a listener and returns a function that removes it
func (l *WorkflowLog) Subscribe(listener WorkflowLogListener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = listener
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

// Entries returns a copy of all entries in append order
func (l *WorkflowLog) Entries() []WorkflowLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]WorkflowLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Lines returns the messages in append order
func (l *WorkflowLog) Lines() []string {
	entries := l.Entries()
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = entry.Message
	}
	return lines
}

func (l *WorkflowLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
