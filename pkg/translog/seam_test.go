// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package translog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrovue/playout/pkg/clock"
)

var day0 = time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)

// gridEntries builds n contiguous one-grid entries starting at day0, each
// with a single content segment filling the slot.
func gridEntries(n int, gridMin int) []Entry {
	entries := make([]Entry, 0, n)
	at := day0
	span := time.Duration(gridMin) * time.Minute
	for i := 0; i < n; i++ {
		entries = append(entries, Entry{
			BlockID:    fmt.Sprintf("blk-%03d", i),
			BlockIndex: i,
			Start:      at,
			End:        at.Add(span),
			Segments: []Segment{{
				Index:      0,
				Type:       SegmentContent,
				AssetURI:   "/media/episode.mp4",
				DurationMS: span.Milliseconds(),
			}},
		})
		at = at.Add(span)
	}
	return entries
}

func testLog(n int) Log {
	return Log{
		ID:            "tl-0001",
		ChannelID:     "wxrv",
		BroadcastDate: "2025-03-01",
		GridMinutes:   30,
		DayStartHour:  6,
		Timezone:      "UTC",
		Entries:       gridEntries(n, 30),
	}
}

func seamCode(t *testing.T, err error) string {
	t.Helper()
	var se *SeamError
	require.ErrorAs(t, err, &se)
	return se.Code
}

func TestValidateAcceptsContiguousGridLog(t *testing.T) {
	require.NoError(t, Validate(testLog(4)))
}

func TestValidateRequiresGridMetadata(t *testing.T) {
	lg := testLog(1)
	lg.GridMinutes = 0
	err := Validate(lg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid_block_minutes")
}

func TestValidateContiguity(t *testing.T) {
	lg := testLog(3)
	lg.Entries[2].Start = lg.Entries[2].Start.Add(time.Millisecond)
	lg.Entries[2].End = lg.Entries[2].End.Add(time.Millisecond)
	assert.Equal(t, SeamContiguity, seamCode(t, Validate(lg)))
}

func TestValidateGridSpan(t *testing.T) {
	lg := testLog(2)
	lg.Entries[1].End = lg.Entries[1].End.Add(-time.Second)
	assert.Equal(t, SeamGrid, seamCode(t, Validate(lg)))
}

func TestValidateMonotonicStarts(t *testing.T) {
	lg := testLog(2)
	lg.Entries[1].Start = lg.Entries[0].Start
	lg.Entries[1].End = lg.Entries[0].End
	assert.Equal(t, SeamMonotonic, seamCode(t, Validate(lg)))
}

func TestValidateNonZeroSpan(t *testing.T) {
	lg := testLog(1)
	lg.Entries[0].End = lg.Entries[0].Start
	assert.Equal(t, SeamNonZero, seamCode(t, Validate(lg)))
}

func TestValidateRejectsNonUTC(t *testing.T) {
	lg := testLog(1)
	cet := time.FixedZone("CET", 3600)
	lg.Entries[0].Start = lg.Entries[0].Start.In(cet)
	assert.ErrorIs(t, Validate(lg), clock.ErrNotUTC)
}

func TestLockStampsCopy(t *testing.T) {
	fake := clock.NewFake(day0.Add(-time.Hour))
	lg := testLog(3)

	locked, err := Lock(lg, fake)
	require.NoError(t, err)
	assert.True(t, locked.Locked)
	assert.Equal(t, day0.Add(-time.Hour), locked.LockedAt)
	assert.False(t, lg.Locked, "input log must not be mutated")

	// Mutating the locked copy must not reach back into the input.
	locked.Entries[0].BlockID = "tampered"
	assert.Equal(t, "blk-000", lg.Entries[0].BlockID)
}

func TestLockIdempotentBytes(t *testing.T) {
	fake := clock.NewFake(day0.Add(-time.Hour))
	lg := testLog(2)

	a, err := Lock(lg, fake)
	require.NoError(t, err)
	b, err := Lock(lg, fake)
	require.NoError(t, err)
	assert.Equal(t, EncodeJSONL(a), EncodeJSONL(b))
}

func TestLockFailsOnMutatedSeams(t *testing.T) {
	fake := clock.NewFake(day0)
	lg := testLog(2)
	locked, err := Lock(lg, fake)
	require.NoError(t, err)

	// A copy whose seams were broken after the fact cannot be re-locked.
	locked.Entries[1].Start = locked.Entries[1].Start.Add(time.Minute)
	_, err = Lock(locked, fake)
	assert.Equal(t, SeamGrid, seamCode(t, err))
}
