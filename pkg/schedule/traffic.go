// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"fmt"

	"github.com/retrovue/playout/pkg/translog"
)

// Filler is the single looping asset the traffic walk cuts break segments
// from.
type Filler struct {
	URI        string `json:"uri"`
	DurationMS int64  `json:"duration_ms"`
}

// Cursor is the rolling offset into the filler asset. It carries across
// breaks and blocks, and is persisted with the resolved schedule so a
// recompile resumes where the previous day left off.
type Cursor struct {
	OffsetMS int64 `json:"offset_ms"`
}

// FillBreaks replaces unfilled break placeholders with filler segments cut
// from the cursor position. A break larger than the remaining filler is
// covered by consecutive wrapped cuts; the cursor position carries from one
// break into the next. Segments that already name an asset pass through
// untouched. Indices are renumbered densely over the result.
func FillBreaks(segs []translog.Segment, f Filler, cur *Cursor) ([]translog.Segment, error) {
	if f.DurationMS <= 0 {
		return nil, fmt.Errorf("filler %q duration %dms must be positive", f.URI, f.DurationMS)
	}
	if cur.OffsetMS < 0 || cur.OffsetMS >= f.DurationMS {
		return nil, fmt.Errorf("filler cursor %dms out of range [0,%dms)", cur.OffsetMS, f.DurationMS)
	}
	out := make([]translog.Segment, 0, len(segs))
	for _, s := range segs {
		if s.Type != translog.SegmentFiller || s.AssetURI != "" {
			s.Index = len(out)
			out = append(out, s)
			continue
		}
		remaining := s.DurationMS
		for remaining > 0 {
			size := f.DurationMS - cur.OffsetMS
			if size > remaining {
				size = remaining
			}
			out = append(out, translog.Segment{
				Index:              len(out),
				Type:               translog.SegmentFiller,
				AssetURI:           f.URI,
				AssetStartOffsetMS: cur.OffsetMS,
				DurationMS:         size,
			})
			cur.OffsetMS = (cur.OffsetMS + size) % f.DurationMS
			remaining -= size
		}
	}
	return out, nil
}
