// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"fmt"
	"sort"

	"github.com/retrovue/playout/pkg/translog"
)

// Expand splits a program block at its chapter markers into N+1 content
// segments interleaved with N unfilled break placeholders. Break time is
// the slot minus the episode, split equally across the breaks with the
// remainder absorbed by the last one, so segment durations always sum to
// the slot exactly. Markers at or past the episode end are ignored. A block
// without markers puts all break time in a single trailing placeholder.
//
// Unfilled placeholders carry the filler type and an empty asset URI; the
// traffic walk replaces them.
func Expand(b ProgramBlock) ([]translog.Segment, error) {
	slotMS := b.SlotMS()
	epMS := b.EpisodeMS()
	if epMS <= 0 {
		return nil, fmt.Errorf("block %s: episode duration %dms must be positive", b.AssetID, epMS)
	}
	if epMS > slotMS {
		return nil, fmt.Errorf("block %s: episode %dms exceeds slot %dms", b.AssetID, epMS, slotMS)
	}

	markers := usableMarkers(b.ChapterMarkersMS, epMS)
	bounds := make([]int64, 0, len(markers)+2)
	bounds = append(bounds, 0)
	bounds = append(bounds, markers...)
	bounds = append(bounds, epMS)

	breakTotal := slotMS - epMS
	nBreaks := len(markers)
	var segs []translog.Segment
	appendSeg := func(s translog.Segment) {
		s.Index = len(segs)
		segs = append(segs, s)
	}

	if nBreaks == 0 {
		appendSeg(translog.Segment{
			Type:       translog.SegmentContent,
			AssetURI:   b.AssetURI,
			DurationMS: epMS,
		})
		if breakTotal > 0 {
			appendSeg(translog.Segment{Type: translog.SegmentFiller, DurationMS: breakTotal})
		}
		return segs, nil
	}

	share := breakTotal / int64(nBreaks)
	for i := 0; i < len(bounds)-1; i++ {
		appendSeg(translog.Segment{
			Type:               translog.SegmentContent,
			AssetURI:           b.AssetURI,
			AssetStartOffsetMS: bounds[i],
			DurationMS:         bounds[i+1] - bounds[i],
		})
		if i < nBreaks {
			dur := share
			if i == nBreaks-1 {
				dur = breakTotal - share*int64(nBreaks-1)
			}
			if dur > 0 {
				appendSeg(translog.Segment{Type: translog.SegmentFiller, DurationMS: dur})
			}
		}
	}
	return segs, nil
}

// usableMarkers sorts, dedupes and clamps markers to the open interval
// (0, episode). Markers at or beyond the episode end would produce a
// zero-length tail segment and are dropped.
func usableMarkers(markers []int64, epMS int64) []int64 {
	out := make([]int64, 0, len(markers))
	for _, m := range markers {
		if m > 0 && m < epMS {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	dedup := out[:0]
	var prev int64 = -1
	for _, m := range out {
		if m != prev {
			dedup = append(dedup, m)
			prev = m
		}
	}
	return dedup
}
