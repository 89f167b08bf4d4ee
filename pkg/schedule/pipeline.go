// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/retrovue/playout/pkg/translog"
)

// Pipeline bundles the library and filler configuration for one channel.
type Pipeline struct {
	Library Library
	Filler  Filler
}

// SegmentDay compiles the directive and expands and fills every block. The
// traffic cursor advances in block order and its final position is left in
// cur for the caller to persist.
func (p Pipeline) SegmentDay(ctx context.Context, d DayDirective, cur *Cursor) ([]SegmentedBlock, error) {
	blocks, err := Compile(ctx, p.Library, d)
	if err != nil {
		return nil, err
	}
	return p.SegmentBlocks(blocks, cur)
}

// SegmentBlocks expands and fills an already-compiled block list, for days
// whose blocks were resolved earlier and stored without segments.
func (p Pipeline) SegmentBlocks(blocks []ProgramBlock, cur *Cursor) ([]SegmentedBlock, error) {
	out := make([]SegmentedBlock, 0, len(blocks))
	for _, b := range blocks {
		segs, err := Expand(b)
		if err != nil {
			return nil, err
		}
		segs, err = FillBreaks(segs, p.Filler, cur)
		if err != nil {
			return nil, err
		}
		out = append(out, SegmentedBlock{Block: b, Segments: segs})
	}
	return out, nil
}

// BuildTransmissionLog chops segmented blocks into one-grid transmission
// entries. A program block spanning several grid slots becomes that many
// entries; a segment straddling a slot boundary is split there, the second
// part resuming at an advanced asset offset. Entry block ids are dense over
// the day (blk-000, blk-001, ...) and each entry renumbers its segments
// from zero.
func BuildTransmissionLog(d DayDirective, sbs []SegmentedBlock, logID string) (translog.Log, error) {
	lg := translog.Log{
		ID:            logID,
		ChannelID:     d.ChannelID,
		BroadcastDate: d.BroadcastDate,
		GridMinutes:   d.GridMinutes,
		DayStartHour:  d.DayStartHour,
		Timezone:      d.Timezone,
	}
	gridMS := lg.GridMS()
	if gridMS <= 0 {
		return translog.Log{}, fmt.Errorf("grid %d min is not positive", d.GridMinutes)
	}

	next := 0
	for _, sb := range sbs {
		slotMS := sb.Block.SlotMS()
		if slotMS%gridMS != 0 {
			return translog.Log{}, fmt.Errorf("block %s slot %dms is not whole %dms grids", sb.Block.AssetID, slotMS, gridMS)
		}
		var total int64
		for _, s := range sb.Segments {
			total += s.DurationMS
		}
		if total != slotMS {
			return translog.Log{}, fmt.Errorf("block %s segments sum %dms, slot is %dms", sb.Block.AssetID, total, slotMS)
		}

		slices := chopSegments(sb.Segments, gridMS)
		for k, slotSegs := range slices {
			start := sb.Block.StartAtUTC.Add(time.Duration(int64(k) * gridMS * int64(time.Millisecond)))
			lg.Entries = append(lg.Entries, translog.Entry{
				BlockID:    fmt.Sprintf("blk-%03d", next),
				BlockIndex: next,
				Start:      start,
				End:        start.Add(time.Duration(gridMS) * time.Millisecond),
				Segments:   slotSegs,
			})
			next++
		}
	}

	if err := translog.Validate(lg); err != nil {
		return translog.Log{}, err
	}
	return lg, nil
}

// chopSegments cuts a block's segment run into per-slot lists of exactly
// gridMS each. Straddling segments split at the boundary; the tail keeps
// the segment's type and asset with the consumed duration added to its
// offset.
func chopSegments(segs []translog.Segment, gridMS int64) [][]translog.Segment {
	var slices [][]translog.Segment
	var slot []translog.Segment
	capacity := gridMS

	emit := func(s translog.Segment) {
		s.Index = len(slot)
		slot = append(slot, s)
	}
	closeSlot := func() {
		slices = append(slices, slot)
		slot = nil
		capacity = gridMS
	}

	for _, s := range segs {
		for s.DurationMS > 0 {
			if s.DurationMS <= capacity {
				capacity -= s.DurationMS
				emit(s)
				s.DurationMS = 0
			} else {
				head := s
				head.DurationMS = capacity
				emit(head)
				if s.AssetURI != "" {
					s.AssetStartOffsetMS += capacity
				}
				s.DurationMS -= capacity
				capacity = 0
			}
			if capacity == 0 {
				closeSlot()
			}
		}
	}
	if len(slot) > 0 {
		closeSlot()
	}
	return slices
}
