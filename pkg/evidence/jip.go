// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE.md file.

package evidence

import (
	"sync"

	"github.com/retrovue/playout/pkg/translog"
)

// SegmentCache remembers the segment list each block was started with so
// that as-run rows can name the segment type and duration behind a bare
// (block_id, segment_index) pair reported from air. Air renumbers segments
// from zero after a join-in-progress trim, so the cache must be primed with
// the post-trim list, not the published one.
type SegmentCache struct {
	mu     sync.Mutex
	blocks map[string][]translog.Segment
}

// NewSegmentCache returns an empty cache.
func NewSegmentCache() *SegmentCache {
	return &SegmentCache{blocks: make(map[string][]translog.Segment)}
}

// Prepopulate installs the segment list for a block, replacing any earlier
// list. Segments are copied and renumbered 0..n-1 in slice order so lookups
// line up with air's post-trim indexes regardless of the indexes carried in.
func (c *SegmentCache) Prepopulate(blockID string, segments []translog.Segment) {
	list := make([]translog.Segment, len(segments))
	copy(list, segments)
	for i := range list {
		list[i].Index = i
	}
	c.mu.Lock()
	c.blocks[blockID] = list
	c.mu.Unlock()
}

// Lookup resolves a segment by block and index. ok is false when the block
// was never primed or the index is out of range.
func (c *SegmentCache) Lookup(blockID string, index int) (translog.Segment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.blocks[blockID]
	if !ok || index < 0 || index >= len(list) {
		return translog.Segment{}, false
	}
	return list[index], true
}

// Clear drops a block after its fence has been processed.
func (c *SegmentCache) Clear(blockID string) {
	c.mu.Lock()
	delete(c.blocks, blockID)
	c.mu.Unlock()
}

// PostJIP trims a published segment list to what actually airs when playback
// joins offsetMS into the block. Fully elapsed segments are dropped, the
// segment spanning the join point keeps only its remaining duration, and the
// survivors are renumbered from zero. The input is not modified.
func PostJIP(segments []translog.Segment, offsetMS int64) []translog.Segment {
	if offsetMS <= 0 {
		out := make([]translog.Segment, len(segments))
		copy(out, segments)
		for i := range out {
			out[i].Index = i
		}
		return out
	}
	out := make([]translog.Segment, 0, len(segments))
	var elapsed int64
	for _, seg := range segments {
		end := elapsed + seg.DurationMS
		if end <= offsetMS {
			elapsed = end
			continue
		}
		if elapsed < offsetMS {
			// Joined mid-segment: air plays only the remainder.
			seg.AssetStartOffsetMS += offsetMS - elapsed
			seg.DurationMS = end - offsetMS
		}
		seg.Index = len(out)
		out = append(out, seg)
		elapsed = end
	}
	return out
}
