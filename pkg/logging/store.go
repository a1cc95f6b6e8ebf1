package logging

import (
	"sync"
	"time"
)

// Entry is one admin-visible log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // DEBUG, INFO, WARN, ERROR
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// Store is a bounded, append-only window of log entries backing the admin
// log endpoints. Oldest entries are dropped once the capacity is reached.
type Store struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	subs    map[chan Entry]struct{}
}

// NewStore creates a store holding at most max entries.
func NewStore(max int) *Store {
	if max <= 0 {
		max = 1000
	}
	return &Store{
		entries: make([]Entry, 0, max),
		max:     max,
		subs:    make(map[chan Entry]struct{}),
	}
}

// Append records an entry with the current time.
func (s *Store) Append(level, source, message string) Entry {
	return s.append(time.Now().UTC(), level, source, message)
}

func (s *Store) append(ts time.Time, level, source, message string) Entry {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	e := Entry{Timestamp: ts, Level: level, Source: source, Message: message}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber, drop rather than block the logger.
		}
	}
	s.mu.Unlock()

	return e
}

// List returns up to limit entries, newest last. limit <= 0 returns all.
func (s *Store) List(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, s.entries[len(s.entries)-n:])
	return out
}

// Len returns the number of buffered entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear resets the collection and immediately appends one INFO entry
// recording the clear.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = s.entries[:0]
	s.mu.Unlock()
	s.Append("INFO", "logs", "log history cleared")
}

// Subscribe returns a channel receiving entries appended after the call.
// The returned cancel function must be called to release the subscription.
func (s *Store) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 64)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
	return ch, cancel
}
