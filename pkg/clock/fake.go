// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests. Time only moves when Advance or
// Set is called. Timers that come due during an Advance fire in deadline
// order; timers sharing a deadline fire in registration order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeTimer
	seq     int
}

// NewFake returns a Fake pinned at the given instant. The instant must be
// UTC; anything else is normalized so tests cannot leak local zones.
func NewFake(at time.Time) *Fake {
	return &Fake{now: at.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set jumps the clock to at without firing timers in between.
func (f *Fake) Set(at time.Time) {
	f.mu.Lock()
	f.now = at.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d, firing every timer whose deadline
// is reached, in order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		next := f.nextDueLocked(target)
		if next == nil {
			break
		}
		if next.deadline.After(f.now) {
			f.now = next.deadline
		}
		next.fireLocked(f.now)
	}
	f.now = target
	f.mu.Unlock()
}

// nextDueLocked returns the earliest armed timer with deadline <= target,
// breaking ties by registration order.
func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	var best *fakeTimer
	for _, w := range f.waiters {
		if !w.armed || w.deadline.After(target) {
			continue
		}
		if best == nil || w.deadline.Before(best.deadline) ||
			(w.deadline.Equal(best.deadline) && w.seq < best.seq) {
			best = w
		}
	}
	return best
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{
		clk:      f,
		ch:       make(chan time.Time, 1),
		deadline: f.now.Add(d),
		armed:    true,
		seq:      f.seq,
	}
	f.waiters = append(f.waiters, t)
	return t
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	return f.NewTimer(d).C()
}

// Waiters reports how many armed timers exist. Tests use it to block until
// the code under test has gone to sleep.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.waiters {
		if w.armed {
			n++
		}
	}
	return n
}

// BlockUntil polls until at least n timers are armed. Only for tests; the
// poll interval is real time, not fake time.
func (f *Fake) BlockUntil(n int) {
	for f.Waiters() < n {
		time.Sleep(time.Millisecond)
	}
}

type fakeTimer struct {
	clk      *Fake
	ch       chan time.Time
	deadline time.Time
	armed    bool
	seq      int
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) fireLocked(at time.Time) {
	t.armed = false
	select {
	case t.ch <- at:
	default:
	}
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	was := t.armed
	t.armed = false
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	was := t.armed
	t.deadline = t.clk.now.Add(d)
	t.armed = true
	return was
}
