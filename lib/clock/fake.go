// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only through Advance. Safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	changed *sync.Cond
}

// fakeTimer backs After, Sleep and tickers. A zero period is one-shot.
type fakeTimer struct {
	due    time.Time
	period time.Duration
	fire   chan time.Time
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) schedule(d, period time.Duration) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{due: c.now.Add(d), period: period, fire: make(chan time.Time, 1)}
	if d <= 0 && period == 0 {
		timer.fire <- c.now
		return timer
	}
	c.timers = append(c.timers, timer)
	c.changed.Broadcast()
	return timer
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	return c.schedule(d, 0).fire
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d > 0 {
		<-c.After(d)
	}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	timer := c.schedule(d, d)
	return &Ticker{C: timer.fire, stopFunc: func() { c.remove(timer) }}
}

func (c *FakeClock) remove(timer *fakeTimer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = slices.DeleteFunc(c.timers, func(t *fakeTimer) bool { return t == timer })
}

// Advance moves the clock forward by d, firing due timers in deadline
// order with Now reading each deadline as it fires. A tick whose
// channel is still full is dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.now.Add(d)
	for {
		index := -1
		for i, timer := range c.timers {
			if !timer.due.After(target) && (index < 0 || timer.due.Before(c.timers[index].due)) {
				index = i
			}
		}
		if index < 0 {
			break
		}
		timer := c.timers[index]
		c.now = timer.due
		select {
		case timer.fire <- timer.due:
		default:
		}
		if timer.period > 0 {
			timer.due = timer.due.Add(timer.period)
		} else {
			c.timers = slices.Delete(c.timers, index, index+1)
		}
	}
	c.now = target
}

// WaitForTimers blocks until at least n timers are pending. Tests call
// it before Advance so the goroutine under test has registered its
// sleep or ticker.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.timers) < n {
		c.changed.Wait()
	}
}

// Pending returns the number of timers that have not fired or been
// stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
