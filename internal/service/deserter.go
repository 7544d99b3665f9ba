package service

import (
	"sync"
	"time"
)

// DeserterTracker remembers members who abandoned a match before it started.
type DeserterTracker struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func NewDeserterTracker() *DeserterTracker {
	return &DeserterTracker{until: make(map[string]time.Time)}
}

// Mark flags memberID until the given time. An existing longer mark wins.
func (d *DeserterTracker) Mark(memberID string, until time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.until[memberID]; ok && cur.After(until) {
		return
	}
	d.until[memberID] = until
}

func (d *DeserterTracker) IsDeserter(memberID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.until[memberID]
	return ok && now.Before(until)
}

// Sweep drops expired marks and returns how many were removed.
func (d *DeserterTracker) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id, until := range d.until {
		if !now.Before(until) {
			delete(d.until, id)
			n++
		}
	}
	return n
}
