// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package schedule implements the planning pipeline: compiling a day's zone
// directives into grid-aligned program blocks, expanding blocks into content
// and ad-break segments at chapter markers, filling breaks from the rolling
// filler cursor, and chopping the result into one-grid transmission entries.
package schedule

import (
	"fmt"
	"time"

	"github.com/retrovue/playout/pkg/translog"
)

// ProgramBlock is the unit emitted by the compiler: one piece of content
// occupying a whole number of grid slots. StartAtUTC is grid-aligned UTC.
// EpisodeDurationSec is the actual content length; the tail of the slot is
// ad-break and filler time.
type ProgramBlock struct {
	Title              string    `json:"title"`
	AssetID            string    `json:"asset_id"`
	AssetURI           string    `json:"asset_uri"`
	StartAtUTC         time.Time `json:"start_at_utc"`
	SlotDurationSec    int64     `json:"slot_duration_sec"`
	EpisodeDurationSec int64     `json:"episode_duration_sec"`
	ChapterMarkersMS   []int64   `json:"chapter_markers_ms,omitempty"`
}

// EndAtUTC is the exclusive end of the block's slot.
func (b ProgramBlock) EndAtUTC() time.Time {
	return b.StartAtUTC.Add(time.Duration(b.SlotDurationSec) * time.Second)
}

// SlotMS is the slot duration in milliseconds.
func (b ProgramBlock) SlotMS() int64 { return b.SlotDurationSec * 1000 }

// EpisodeMS is the content duration in milliseconds.
func (b ProgramBlock) EpisodeMS() int64 { return b.EpisodeDurationSec * 1000 }

// SegmentedBlock pairs a compiled block with its expanded, traffic-filled
// segment rows. This is the derived form stored on resolved schedule days
// and chopped into transmission entries.
type SegmentedBlock struct {
	Block    ProgramBlock       `json:"block"`
	Segments []translog.Segment `json:"segments"`
}

// OnGrid reports whether t sits on a grid boundary: whole minutes, with the
// minute-of-hour a multiple of the grid period.
func OnGrid(t time.Time, gridMinutes int) bool {
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return false
	}
	return t.Minute()%gridMinutes == 0
}

// CeilSlotSec rounds a content duration up to a whole number of grid slots,
// never less than one slot. 100 min on a 30-min grid becomes 120 min.
func CeilSlotSec(durationMS int64, gridMinutes int) int64 {
	gridSec := int64(gridMinutes) * 60
	durSec := (durationMS + 999) / 1000
	if durSec <= gridSec {
		return gridSec
	}
	slots := (durSec + gridSec - 1) / gridSec
	return slots * gridSec
}

// BroadcastDate returns the broadcast date containing now: the local
// calendar date, shifted back one day for times before the day-start hour.
func BroadcastDate(now time.Time, loc *time.Location, dayStartHour int) string {
	local := now.In(loc)
	if local.Hour() < dayStartHour {
		local = local.AddDate(0, 0, -1)
	}
	return local.Format(translog.DayLayout)
}

// DayStartUTC returns the UTC instant at which the given broadcast date
// begins in the channel's zone.
func DayStartUTC(date string, loc *time.Location, dayStartHour int) (time.Time, error) {
	d, err := time.ParseInLocation(translog.DayLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad broadcast date %q: %w", date, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), dayStartHour, 0, 0, 0, loc).UTC(), nil
}

// NextBroadcastDate returns the date string one day after date.
func NextBroadcastDate(date string) (string, error) {
	return shiftBroadcastDate(date, 1)
}

// PrevBroadcastDate returns the date string one day before date.
func PrevBroadcastDate(date string) (string, error) {
	return shiftBroadcastDate(date, -1)
}

func shiftBroadcastDate(date string, days int) (string, error) {
	d, err := time.Parse(translog.DayLayout, date)
	if err != nil {
		return "", fmt.Errorf("bad broadcast date %q: %w", date, err)
	}
	return d.AddDate(0, 0, days).Format(translog.DayLayout), nil
}
