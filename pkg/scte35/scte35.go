// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package scte35 builds SCTE-35 splice_insert sections for the ad breaks
// of a transmission entry. The core knows every break boundary from the
// playout log; AIR and downstream distribution encoders receive the
// splice points through the channel's program format so they can mark
// the TS without re-deriving the schedule.
package scte35

import (
	"github.com/Comcast/gots/v2"
	"github.com/Comcast/gots/v2/scte35"

	"github.com/retrovue/playout/pkg/translog"
)

const (
	ptsHz       = 90_000
	ptsWrap     = uint64(1) << 33
	defaultTier = 4095
)

// Splice is one ad-break splice point inside an entry: the break's
// offset from entry start, its total length, and the encoded
// splice_info_section (including CRC) announcing it.
type Splice struct {
	SegmentIndex int    `json:"segment_index"`
	OffsetMS     int64  `json:"offset_ms"`
	DurationMS   int64  `json:"duration_ms"`
	EventID      uint32 `json:"event_id"`
	Payload      []byte `json:"payload"`
}

// isBreak reports whether a segment type belongs to an ad break.
func isBreak(t translog.SegmentType) bool {
	switch t {
	case translog.SegmentCommercial, translog.SegmentPromo, translog.SegmentFiller, translog.SegmentPad:
		return true
	}
	return false
}

// EntrySplices emits one out-of-network splice_insert per break run in
// the entry. Consecutive break segments form one run; its duration is
// their summed length. Event ids count up from eventIDBase in run order.
// PTS values are the run's offset from entry start on the 90 kHz clock,
// wrapped at 33 bits.
func EntrySplices(e translog.Entry, eventIDBase uint32) []Splice {
	var out []Splice
	var offsetMS int64
	for i := 0; i < len(e.Segments); {
		s := e.Segments[i]
		if !isBreak(s.Type) {
			offsetMS += s.DurationMS
			i++
			continue
		}
		runStart := i
		runOffset := offsetMS
		var runMS int64
		for i < len(e.Segments) && isBreak(e.Segments[i].Type) {
			runMS += e.Segments[i].DurationMS
			offsetMS += e.Segments[i].DurationMS
			i++
		}
		if runMS == 0 {
			continue
		}
		eventID := eventIDBase + uint32(len(out))
		out = append(out, Splice{
			SegmentIndex: runStart,
			OffsetMS:     runOffset,
			DurationMS:   runMS,
			EventID:      eventID,
			Payload: CreateSpliceInsertPayload(SpliceInsertParams{
				PtsTime:               uint64(runOffset) * ptsHz / 1000 % ptsWrap,
				Duration:              uint64(runMS) * ptsHz / 1000,
				SpliceEventID:         eventID,
				Tier:                  defaultTier,
				OutOfNetworkIndicator: true,
				AutoReturn:            true,
			}),
		})
	}
	return out
}

// SpliceInsertParams carries the fields of one splice_insert command.
type SpliceInsertParams struct {
	PtsTime                    uint64
	Duration                   uint64
	SpliceEventID              uint32
	Tier                       uint16
	UniqueProgramID            uint16
	AvailNum                   uint8
	AvailsExpected             uint8
	SpliceEventCancelIndicator bool
	OutOfNetworkIndicator      bool
	SpliceImmediateFlag        bool
	AutoReturn                 bool
}

// CreateSpliceInsertPayload creates a SCTE-35 splice_info_section including CRC.
func CreateSpliceInsertPayload(p SpliceInsertParams) []byte {
	s := scte35.CreateSCTE35()
	s.SetTier(uint16(p.Tier))
	cmd := scte35.CreateSpliceInsertCommand()
	cmd.SetUniqueProgramId(p.UniqueProgramID)
	cmd.SetEventID(p.SpliceEventID)
	cmd.SetAvailNum(p.AvailNum)
	cmd.SetAvailsExpected(p.AvailsExpected)
	cmd.SetIsEventCanceled(p.SpliceEventCancelIndicator)
	if p.Duration != 0 {
		cmd.SetHasDuration(true)
		cmd.SetDuration(gots.PTS(p.Duration))
		cmd.SetIsAutoReturn(p.AutoReturn)
	}
	cmd.SetHasPTS(true)
	cmd.SetPTS(gots.PTS(p.PtsTime))
	cmd.SetIsOut(p.OutOfNetworkIndicator)
	cmd.SetSpliceImmediate(p.SpliceImmediateFlag)
	s.SetCommandInfo(cmd)
	return s.UpdateData()
}
