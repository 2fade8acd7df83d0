package service

import (
	"sync"

	"github.com/google/uuid"
)

// calendarLocks serializes bookings per veterinarian inside one process.
// Entries are dropped once nobody holds or waits on them.
type calendarLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*calendarLock
}

type calendarLock struct {
	mu   sync.Mutex
	refs int
}

func newCalendarLocks() *calendarLocks {
	return &calendarLocks{locks: make(map[uuid.UUID]*calendarLock)}
}

// Lock blocks until the calendar of vetID is free and returns its release.
func (l *calendarLocks) Lock(vetID uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[vetID]
	if !ok {
		entry = &calendarLock{}
		l.locks[vetID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, vetID)
		}
		l.mu.Unlock()
	}
}

func (l *calendarLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
