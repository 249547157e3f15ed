// Package status holds the single human-readable status line shown to the user.
package status

import "sync"

const (
	Idle  = "Idle"
	Ready = "Ready"
)

// Line is a concurrency-safe status message.
type Line struct {
	mu      sync.RWMutex
	message string
	notify  func(string)
}

// NewLine starts at "Idle".
func NewLine() *Line {
	return &Line{message: Idle}
}

// OnChange registers a callback invoked after every Set.
func (l *Line) OnChange(fn func(string)) {
	l.mu.Lock()
	l.notify = fn
	l.mu.Unlock()
}

// Set replaces the message.
func (l *Line) Set(message string) {
	l.mu.Lock()
	l.message = message
	notify := l.notify
	l.mu.Unlock()

	if notify != nil {
		notify(message)
	}
}

// Get returns the current message.
func (l *Line) Get() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.message
}
