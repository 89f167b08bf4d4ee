// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrovue/playout/pkg/translog"
)

var stationID = Filler{URI: "file:///filler/station-id.mp4", DurationMS: 30_000}

// The 1320 s episode in an 1800 s slot with markers at 330/660/990 s has
// three 160 s breaks. A 30 s filler walks them with one rolling cursor:
// each break starts where the previous one left off, wrapping at filler
// EOF, so cuts carry across break boundaries.
func TestFillBreaksSequentialWrap(t *testing.T) {
	segs, err := Expand(episodeBlock())
	require.NoError(t, err)

	cur := &Cursor{}
	filled, err := FillBreaks(segs, stationID, cur)
	require.NoError(t, err)
	require.Len(t, filled, 22, "4 content + 18 filler cuts")

	type cut struct{ off, dur int64 }
	var got []cut
	var fillerTotal int64
	for i, s := range filled {
		assert.Equal(t, i, s.Index)
		if s.Type != translog.SegmentFiller {
			continue
		}
		assert.Equal(t, stationID.URI, s.AssetURI, "no break may stay unfilled")
		got = append(got, cut{s.AssetStartOffsetMS, s.DurationMS})
		fillerTotal += s.DurationMS
	}
	want := []cut{
		// Break 1: fresh cursor, five full plays and a 10 s head.
		{0, 30_000}, {0, 30_000}, {0, 30_000}, {0, 30_000}, {0, 30_000}, {0, 10_000},
		// Break 2: resumes 10 s in.
		{10_000, 20_000}, {0, 30_000}, {0, 30_000}, {0, 30_000}, {0, 30_000}, {0, 20_000},
		// Break 3: resumes 20 s in.
		{20_000, 10_000}, {0, 30_000}, {0, 30_000}, {0, 30_000}, {0, 30_000}, {0, 30_000},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, int64(480_000), fillerTotal, "filler covers the full ad time, no pad")
	assert.Zero(t, cur.OffsetMS, "480 s of 30 s filler ends exactly at EOF")
}

func TestFillBreaksCursorPersistsAcrossBlocks(t *testing.T) {
	cur := &Cursor{OffsetMS: 25_000}
	segs := []translog.Segment{
		{Index: 0, Type: translog.SegmentContent, AssetURI: "file:///a.mp4", DurationMS: 60_000},
		{Index: 1, Type: translog.SegmentFiller, DurationMS: 12_000},
	}
	filled, err := FillBreaks(segs, stationID, cur)
	require.NoError(t, err)
	require.Len(t, filled, 3)
	assert.Equal(t, int64(25_000), filled[1].AssetStartOffsetMS)
	assert.Equal(t, int64(5_000), filled[1].DurationMS)
	assert.Equal(t, int64(0), filled[2].AssetStartOffsetMS)
	assert.Equal(t, int64(7_000), filled[2].DurationMS)
	assert.Equal(t, int64(7_000), cur.OffsetMS)
}

func TestFillBreaksLeavesFilledSegmentsAlone(t *testing.T) {
	cur := &Cursor{}
	segs := []translog.Segment{
		{Index: 0, Type: translog.SegmentCommercial, AssetURI: "file:///spot.mp4", DurationMS: 30_000},
		{Index: 1, Type: translog.SegmentFiller, AssetURI: "file:///already.mp4", DurationMS: 15_000},
		{Index: 2, Type: translog.SegmentFiller, DurationMS: 15_000},
	}
	filled, err := FillBreaks(segs, stationID, cur)
	require.NoError(t, err)
	require.Len(t, filled, 3)
	assert.Equal(t, "file:///spot.mp4", filled[0].AssetURI)
	assert.Equal(t, "file:///already.mp4", filled[1].AssetURI, "pre-filled segments pass through")
	assert.Equal(t, stationID.URI, filled[2].AssetURI)
	assert.Equal(t, int64(15_000), cur.OffsetMS)
}

func TestFillBreaksRejectsBadFiller(t *testing.T) {
	segs := []translog.Segment{{Type: translog.SegmentFiller, DurationMS: 10_000}}
	_, err := FillBreaks(segs, Filler{URI: "file:///zero.mp4"}, &Cursor{})
	require.Error(t, err)

	_, err = FillBreaks(segs, stationID, &Cursor{OffsetMS: 30_000})
	require.Error(t, err, "cursor at EOF is out of range")
}
