// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemNowIsUTC(t *testing.T) {
	c := System{}
	assert.Equal(t, time.UTC, c.Now().Location())
}

func TestOrSystem(t *testing.T) {
	assert.IsType(t, System{}, OrSystem(nil))
	f := NewFake(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Same(t, f, OrSystem(f))
}

func TestFakeAdvanceFiresTimersInOrder(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	t1 := f.NewTimer(10 * time.Second)
	t2 := f.NewTimer(5 * time.Second)

	f.Advance(7 * time.Second)

	select {
	case at := <-t2.C():
		assert.Equal(t, start.Add(5*time.Second), at)
	default:
		t.Fatal("timer t2 should have fired")
	}
	select {
	case <-t1.C():
		t.Fatal("timer t1 should not have fired yet")
	default:
	}

	f.Advance(5 * time.Second)
	select {
	case at := <-t1.C():
		assert.Equal(t, start.Add(10*time.Second), at)
	default:
		t.Fatal("timer t1 should have fired")
	}
	assert.Equal(t, start.Add(12*time.Second), f.Now())
}

func TestFakeSameDeadlineFIFO(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	first := f.NewTimer(time.Second)
	second := f.NewTimer(time.Second)
	f.Advance(time.Second)

	// Both fired at the same instant; registration order decides delivery.
	at1 := <-first.C()
	at2 := <-second.C()
	assert.Equal(t, at1, at2)
}

func TestFakeStopAndReset(t *testing.T) {
	f := NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	tm := f.NewTimer(time.Minute)
	require.True(t, tm.Stop())
	require.False(t, tm.Stop())

	f.Advance(2 * time.Minute)
	select {
	case <-tm.C():
		t.Fatal("stopped timer fired")
	default:
	}

	tm.Reset(30 * time.Second)
	f.Advance(30 * time.Second)
	select {
	case <-tm.C():
	default:
		t.Fatal("reset timer did not fire")
	}
}

func TestFakeNormalizesZone(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	f := NewFake(time.Date(2025, 3, 1, 13, 0, 0, 0, loc))
	assert.Equal(t, time.UTC, f.Now().Location())
	assert.Equal(t, 12, f.Now().Hour())
}

func TestCheckUTC(t *testing.T) {
	cases := []struct {
		desc string
		in   time.Time
		ok   bool
	}{
		{"utc", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"local zone", time.Date(2025, 3, 1, 0, 0, 0, 0, time.FixedZone("X", 7200)), false},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			err := CheckUTC("start", c.in)
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrNotUTC)
			}
		})
	}
}
