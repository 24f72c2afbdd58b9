// Package mclock is a wrapper for a monotonic clock source.
package mclock

import (
	"time"
)

// AbsTime represents absolute monotonic time.
type AbsTime time.Duration

var processStart = time.Now()

// Now returns the current absolute monotonic time.
func Now() AbsTime {
	return AbsTime(time.Since(processStart))
}

// Add returns t + d.
func (t AbsTime) Add(d time.Duration) AbsTime {
	return t + AbsTime(d)
}

// Sub returns t - t2.
func (t AbsTime) Sub(t2 AbsTime) time.Duration {
	return time.Duration(t - t2)
}

// Clock interface makes it possible to replace the monotonic system clock with
// a simulated clock.
type Clock interface {
	Now() AbsTime
	Sleep(time.Duration)
	NewTimer(time.Duration) *Timer
	After(time.Duration) <-chan AbsTime
	AfterFunc(d time.Duration, f func()) *Timer
}

// System implements Clock using the system clock.
type System struct{}

// Now returns the current monotonic time.
func (System) Now() AbsTime {
	return Now()
}

// Sleep blocks for the given duration.
func (System) Sleep(d time.Duration) {
	time.Sleep(d)
}

// NewTimer creates a timer sending the current time on its channel after d has elapsed.
func (System) NewTimer(d time.Duration) *Timer {
	ch := make(chan AbsTime, 1)
	t := time.AfterFunc(d, func() {
		ch <- Now()
	})
	return &Timer{timer: t, c: ch}
}

// After returns a channel that receives the current time after d has elapsed.
func (s System) After(d time.Duration) <-chan AbsTime {
	return s.NewTimer(d).C()
}

// AfterFunc runs f on a new goroutine after d has elapsed.
func (System) AfterFunc(d time.Duration, f func()) *Timer {
	return &Timer{timer: time.AfterFunc(d, f)}
}

// Timer wraps a system timer so it can deliver AbsTime values.
type Timer struct {
	timer *time.Timer
	c     <-chan AbsTime
}

// C returns the timer's channel, if one was created with NewTimer.
func (t *Timer) C() <-chan AbsTime {
	return t.c
}

// Stop cancels the timer.
func (t *Timer) Stop() bool {
	return t.timer.Stop()
}

// Reset rearms the timer.
func (t *Timer) Reset(d time.Duration) {
	t.timer.Reset(d)
}
