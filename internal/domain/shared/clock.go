package shared

import "time"

// Clock is an abstraction for time operations, allowing time to be mocked in tests
type Clock interface {
	Now() time.Time
	Monotonic() time.Duration
	Sleep(d time.Duration)
}

// RealClock implements Clock using the actual system time
type RealClock struct {
	start time.Time
}

// Now returns the current system time in UTC
func (r *RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Monotonic returns a strictly increasing duration since the clock was created.
// Backed by the runtime monotonic clock, so it is immune to wall-clock jumps.
func (r *RealClock) Monotonic() time.Duration {
	return time.Since(r.start)
}

// Sleep blocks for the given duration
func (r *RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// MockClock implements Clock with a controllable time for testing
type MockClock struct {
	CurrentTime time.Time
	elapsed     time.Duration
}

// Now returns the mock's current time
func (m *MockClock) Now() time.Time {
	return m.CurrentTime
}

// Monotonic returns the total duration the mock clock has been advanced
func (m *MockClock) Monotonic() time.Duration {
	return m.elapsed
}

// Sleep advances the mock clock without blocking (instant in tests)
func (m *MockClock) Sleep(d time.Duration) {
	m.Advance(d)
}

// Advance moves the mock clock forward by the given duration
func (m *MockClock) Advance(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
	m.elapsed += d
}

// SetTime sets the mock clock to a specific time
func (m *MockClock) SetTime(t time.Time) {
	if t.After(m.CurrentTime) {
		m.elapsed += t.Sub(m.CurrentTime)
	}
	m.CurrentTime = t
}

// NewMockClock creates a MockClock starting at the given time
// If zero time is provided, starts at current time
func NewMockClock(startTime time.Time) *MockClock {
	if startTime.IsZero() {
		startTime = time.Now()
	}
	return &MockClock{CurrentTime: startTime}
}

// NewRealClock creates a RealClock instance
func NewRealClock() Clock {
	return &RealClock{start: time.Now()}
}
