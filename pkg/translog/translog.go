// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package translog defines the transmission log: the per-channel, per-day
// ordered list of one-grid entries that AIR executes, each entry holding the
// segment rows for its block. The package owns seam validation, the atomic
// lock step, and the immutable on-disk artifacts (.tlog and .tlog.jsonl).
package translog

import (
	"time"
)

// TimeLayout is the wire format for timestamps in artifacts. Millisecond
// precision, always UTC, so encoding stays byte-deterministic.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DayLayout names a broadcast date.
const DayLayout = "2006-01-02"

// SegmentType classifies what a segment row plays.
type SegmentType string

const (
	SegmentContent    SegmentType = "content"
	SegmentCommercial SegmentType = "commercial"
	SegmentPromo      SegmentType = "promo"
	SegmentFiller     SegmentType = "filler"
	SegmentPad        SegmentType = "pad"
)

// Valid reports whether t is one of the five defined types.
func (t SegmentType) Valid() bool {
	switch t {
	case SegmentContent, SegmentCommercial, SegmentPromo, SegmentFiller, SegmentPad:
		return true
	}
	return false
}

// Label is the fixed-width TYPE column value used in artifacts.
func (t SegmentType) Label() string {
	switch t {
	case SegmentContent:
		return "PROGRAM"
	case SegmentCommercial:
		return "AD"
	case SegmentPromo:
		return "PROMO"
	case SegmentFiller:
		return "FILLER"
	case SegmentPad:
		return "PAD"
	}
	return "UNKNOWN"
}

// Segment is one row inside an entry. AssetURI is empty for pad segments
// and for ad-break placeholders the traffic manager has not filled yet.
// AssetStartOffsetMS is the offset into the asset at which playback starts;
// filler offsets wrap at the filler asset's length.
type Segment struct {
	Index              int         `json:"segment_index"`
	Type               SegmentType `json:"segment_type"`
	AssetURI           string      `json:"asset_uri,omitempty"`
	AssetStartOffsetMS int64       `json:"asset_start_offset_ms"`
	DurationMS         int64       `json:"segment_duration_ms"`
}

// Entry is one block's scheduled presentation, spanning exactly one grid
// period. Start/End are absolute UTC instants.
type Entry struct {
	BlockID    string    `json:"block_id"`
	BlockIndex int       `json:"block_index"`
	Start      time.Time `json:"start_utc"`
	End        time.Time `json:"end_utc"`
	Segments   []Segment `json:"segments"`
}

// DurationMS is the entry's span in milliseconds.
func (e Entry) DurationMS() int64 {
	return e.End.Sub(e.Start).Milliseconds()
}

// Covers reports whether ts falls inside the half-open [Start, End).
func (e Entry) Covers(ts time.Time) bool {
	return !ts.Before(e.Start) && ts.Before(e.End)
}

// Log is a channel's transmission log for one broadcast date, plus the
// metadata stamped at assembly. ID is the transmission_log_id.
type Log struct {
	ID            string
	ChannelID     string
	BroadcastDate string // DayLayout
	GridMinutes   int
	DayStartHour  int
	Timezone      string
	Locked        bool
	LockedAt      time.Time
	Entries       []Entry
}

// GridMS is the grid period in milliseconds.
func (l Log) GridMS() int64 {
	return int64(l.GridMinutes) * 60_000
}

// Clone returns a deep copy; locking and publishing hand out copies so the
// caller's log can never mutate a locked one.
func (l Log) Clone() Log {
	out := l
	out.Entries = make([]Entry, len(l.Entries))
	for i, e := range l.Entries {
		ce := e
		ce.Segments = append([]Segment(nil), e.Segments...)
		out.Entries[i] = ce
	}
	return out
}
