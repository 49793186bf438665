package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// Stage names the pipeline stage that emitted an error entry.
type Stage string

const (
	StageGrouping Stage = "grouping"
	StageReversal Stage = "reversal"
)

// Entry is one recorded stage error. Message text is what the audit
// stage classifies on, so wording is part of the contract.
type Entry struct {
	Stage   Stage     `json:"stage"`
	Key     string    `json:"key"` // order or shipment id
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ErrorLog is a concurrency-safe sink for stage errors. Stages record
// into it from concurrent invocations; the audit stage reads it once the
// run is done.
type ErrorLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewErrorLog creates an empty error log.
func NewErrorLog() *ErrorLog {
	return &ErrorLog{}
}

// Record appends an entry.
func (l *ErrorLog) Record(stage Stage, key, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		Stage:   stage,
		Key:     key,
		Message: message,
		At:      time.Now().UTC(),
	})
}

// Recordf appends a formatted entry.
func (l *ErrorLog) Recordf(stage Stage, key, format string, args ...any) {
	l.Record(stage, key, fmt.Sprintf(format, args...))
}

// Entries returns a copy of all recorded entries.
func (l *ErrorLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
