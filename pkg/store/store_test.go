// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrovue/playout/pkg/clock"
	"github.com/retrovue/playout/pkg/override"
	"github.com/retrovue/playout/pkg/schedule"
	"github.com/retrovue/playout/pkg/translog"
)

var storeT0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T, clk clock.Clock, records override.Store) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "planning.db"), DefaultConfig(), clk, records)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func testBlocks(start time.Time) []schedule.ProgramBlock {
	return []schedule.ProgramBlock{
		{
			Title: "Morning Movie", AssetID: "movie-1", AssetURI: "file:///movies/movie-1.mp4",
			StartAtUTC: start, SlotDurationSec: 3600, EpisodeDurationSec: 3000,
		},
		{
			Title: "Sitcom", AssetID: "ep-1", AssetURI: "file:///series/ep-1.mp4",
			StartAtUTC: start.Add(time.Hour), SlotDurationSec: 1800, EpisodeDurationSec: 1320,
		},
	}
}

func lockedTestLog(channel, date string, start time.Time, entries int) translog.Log {
	lg := translog.Log{
		ID:            "tl-" + channel + "-" + date,
		ChannelID:     channel,
		BroadcastDate: date,
		GridMinutes:   30,
		DayStartHour:  6,
		Timezone:      "UTC",
		Locked:        true,
		LockedAt:      start,
	}
	for i := 0; i < entries; i++ {
		s := start.Add(time.Duration(i) * 30 * time.Minute)
		lg.Entries = append(lg.Entries, translog.Entry{
			BlockID:    fmt.Sprintf("blk-%03d", i),
			BlockIndex: i,
			Start:      s,
			End:        s.Add(30 * time.Minute),
			Segments: []translog.Segment{{
				Index: 0, Type: translog.SegmentContent,
				AssetURI: "file:///a.mp4", DurationMS: 1_800_000,
			}},
		})
	}
	return lg
}

func TestSaveDayUpsertsInPlace(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(storeT0)
	s := openTestStore(t, clk, nil)

	day := ResolvedScheduleDay{
		ChannelID:     "wxrv",
		BroadcastDate: "2025-03-01",
		PlanID:        "plan-a",
		Blocks:        testBlocks(storeT0),
	}
	require.NoError(t, s.SaveDay(ctx, day))

	day.PlanID = "plan-b"
	require.NoError(t, s.SaveDay(ctx, day))

	var count int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM resolved_schedule_days WHERE channel_id = 'wxrv'").Scan(&count))
	assert.Equal(t, 1, count, "upsert must never append a duplicate")

	got, ok, err := s.GetDay(ctx, "wxrv", "2025-03-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plan-b", got.PlanID)
	assert.Nil(t, got.SegmentedBlocks, "segment data is derived, absent until backfill")
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "movie-1", got.Blocks[0].AssetID)
	assert.True(t, storeT0.Equal(got.Blocks[0].StartAtUTC))

	_, ok, err = s.GetDay(ctx, "wxrv", "2025-03-02")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOperatorOverrideRecordFirst(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(storeT0)
	records := override.NewMemory()
	s := openTestStore(t, clk, records)

	day := ResolvedScheduleDay{
		ChannelID: "wxrv", BroadcastDate: "2025-03-01",
		PlanID: "plan-a", Blocks: testBlocks(storeT0),
	}
	require.NoError(t, s.SaveDay(ctx, day))

	day.PlanID = "plan-forced"
	got, err := s.OperatorOverride(ctx, day, "OPERATOR_OVERRIDE")
	require.NoError(t, err)
	assert.True(t, got.IsManualOverride)

	recs, err := records.List(ctx, override.LayerScheduleDay)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "wxrv/2025-03-01", recs[0].TargetID)
	assert.Equal(t, "OPERATOR_OVERRIDE", recs[0].ReasonCode)
	assert.LessOrEqual(t, recs[0].CreatedUTCMS, got.UpdatedUTCMS)

	stored, ok, err := s.GetDay(ctx, "wxrv", "2025-03-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plan-forced", stored.PlanID)
	assert.True(t, stored.IsManualOverride)
}

func TestOperatorOverrideAbortsOnRecordFailure(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(storeT0)
	records := override.NewMemory()
	s := openTestStore(t, clk, records)

	day := ResolvedScheduleDay{
		ChannelID: "wxrv", BroadcastDate: "2025-03-01",
		PlanID: "plan-a", Blocks: testBlocks(storeT0),
	}
	require.NoError(t, s.SaveDay(ctx, day))

	records.FailPersists(true)
	day.PlanID = "plan-forced"
	_, err := s.OperatorOverride(ctx, day, "OPERATOR_OVERRIDE")
	require.Error(t, err)
	var pe *override.PersistError
	assert.ErrorAs(t, err, &pe)

	stored, ok, err := s.GetDay(ctx, "wxrv", "2025-03-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plan-a", stored.PlanID, "record failure must leave the store unchanged")
	assert.False(t, stored.IsManualOverride)
}

func TestHydrateSegmentedBackfillsOnce(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(storeT0)
	s := openTestStore(t, clk, nil)

	day := ResolvedScheduleDay{
		ChannelID: "wxrv", BroadcastDate: "2025-03-01",
		PlanID: "plan-a", Blocks: testBlocks(storeT0),
	}
	require.NoError(t, s.SaveDay(ctx, day))

	p := schedule.Pipeline{Filler: schedule.Filler{URI: "file:///filler/station-id.mp4", DurationMS: 30_000}}
	hydrated, ok, err := s.HydrateSegmented(ctx, "wxrv", "2025-03-01", p)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, hydrated.SegmentedBlocks, 2)
	for _, sb := range hydrated.SegmentedBlocks {
		var total int64
		for _, seg := range sb.Segments {
			total += seg.DurationMS
		}
		assert.Equal(t, sb.Block.SlotMS(), total)
	}

	// The backfill persisted under the same key: a fresh read needs no
	// pipeline work, and the traffic cursor advanced durably.
	stored, ok, err := s.GetDay(ctx, "wxrv", "2025-03-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, stored.SegmentedBlocks)

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM resolved_schedule_days").Scan(&count))
	assert.Equal(t, 1, count)

	cur, err := s.TrafficCursor(ctx, "wxrv")
	require.NoError(t, err)
	// Both trailing breaks are multiples of the 30 s filler, so the
	// cursor wraps back to the top of the reel.
	assert.Equal(t, int64(0), cur.OffsetMS)
}

func TestTransmissionEntriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(storeT0)
	s := openTestStore(t, clk, nil)

	lg := lockedTestLog("wxrv", "2025-03-01", storeT0, 3)
	require.NoError(t, s.SaveTransmissionEntries(ctx, lg, 7))

	// Same day re-published: rows replaced, not duplicated.
	require.NoError(t, s.SaveTransmissionEntries(ctx, lg, 8))
	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM transmission_entries").Scan(&count))
	assert.Equal(t, 3, count)

	got, err := s.LoadTransmissionWindow(ctx, "wxrv", storeT0.Add(35*time.Minute).UnixMilli())
	require.NoError(t, err)
	require.Len(t, got, 2, "first entry ended before the window start")
	assert.Equal(t, int64(8), got[0].Generation)
	assert.Equal(t, "blk-001", got[0].Entry.BlockID)
	assert.True(t, storeT0.Add(30*time.Minute).Equal(got[0].Entry.Start))
	require.Len(t, got[0].Entry.Segments, 1)
	assert.Equal(t, translog.SegmentContent, got[0].Entry.Segments[0].Type)
}

func TestTransmissionEntriesRefuseUnlocked(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, clock.NewFake(storeT0), nil)

	lg := lockedTestLog("wxrv", "2025-03-01", storeT0, 1)
	lg.Locked = false
	require.Error(t, s.SaveTransmissionEntries(ctx, lg, 1))
}
