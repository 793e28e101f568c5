package testutil

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// StubClock returns a settable time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2022-01-01 12:00 at UTC+8, which is
// logical day 738156 on the default calendar.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2022, 1, 1, 4, 0, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AdvanceDays moves the clock forward by n whole days.
func (c *StubClock) AdvanceDays(n int) {
	c.Advance(time.Duration(n) * 24 * time.Hour)
}

// StubIDGenerator returns sequential UUIDs: 00000001-0000-4000-8000-000000000000,
// 00000002-..., etc. Their hex forms differ in the first bucket directory.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter uint32
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++

	var id uuid.UUID
	id[0] = byte(g.counter >> 24)
	id[1] = byte(g.counter >> 16)
	id[2] = byte(g.counter >> 8)
	id[3] = byte(g.counter)
	id[6] = 0x40 // version 4
	id[8] = 0x80 // RFC 4122 variant
	return id
}
