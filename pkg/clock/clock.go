// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package clock provides the injectable wall-clock abstraction used by all
// time-dependent parts of the playout core. Channel time is always UTC, so
// System normalizes every Now() to UTC before returning it.
package clock

import "time"

// Clock is the time source handed to schedulers, stores, and servers.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
	After(d time.Duration) <-chan time.Time
}

// Timer mirrors time.Timer so that fakes can fire deterministically.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// System is the production clock. Now() is always in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }

type systemTimer struct {
	t *time.Timer
}

func (s *systemTimer) C() <-chan time.Time        { return s.t.C }
func (s *systemTimer) Stop() bool                 { return s.t.Stop() }
func (s *systemTimer) Reset(d time.Duration) bool { return s.t.Reset(d) }

// OrSystem returns c, or System if c is nil. Constructors use it so a
// forgotten clock argument degrades to real time instead of a panic.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}
