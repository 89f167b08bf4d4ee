// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/retrovue/playout/pkg/clock"
)

// candidate is a block with its declared start, before compaction. Order
// preserves directive emission order for stable sorting.
type candidate struct {
	block         ProgramBlock
	declaredStart time.Time
}

// Compile turns a day directive into the compacted, validated block list
// for the broadcast day. Compilation is deterministic: the same directive
// and library state always yield the same blocks. Any violation aborts the
// whole day with a CompileError.
func Compile(ctx context.Context, lib Library, d DayDirective) ([]ProgramBlock, error) {
	if d.GridMinutes <= 0 || 60%d.GridMinutes != 0 {
		return nil, compileErrf(CodeGridViolation, "grid %d min does not divide the hour", d.GridMinutes)
	}
	if d.DayStartHour < 0 || d.DayStartHour > 23 {
		return nil, compileErrf(CodeGridViolation, "day start hour %d out of range", d.DayStartHour)
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, compileErrWrap(CodeGridViolation, err, "bad timezone %q", d.Timezone)
	}
	if _, err := DayStartUTC(d.BroadcastDate, loc, d.DayStartHour); err != nil {
		return nil, compileErrWrap(CodeGridViolation, err, "bad broadcast date %q", d.BroadcastDate)
	}

	var cands []candidate
	for zi := range d.Zones {
		zc, err := expandZone(ctx, lib, d, &d.Zones[zi])
		if err != nil {
			return nil, err
		}
		cands = append(cands, zc...)
	}

	// Declared starts sort the candidates; ties keep directive order.
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].declaredStart.Before(cands[j].declaredStart)
	})

	blocks, err := compact(cands)
	if err != nil {
		return nil, err
	}
	if err := validateBlocks(blocks, d.GridMinutes); err != nil {
		return nil, err
	}
	return blocks, nil
}

func expandZone(ctx context.Context, lib Library, d DayDirective, z *Zone) ([]candidate, error) {
	if err := checkGridInstant("zone "+z.Name+" start", z.Start, d.GridMinutes); err != nil {
		return nil, err
	}
	if err := checkGridInstant("zone "+z.Name+" end", z.End, d.GridMinutes); err != nil {
		return nil, err
	}
	if !z.End.After(z.Start) {
		return nil, compileErrf(CodeGridViolation, "zone %s end %s not after start %s",
			z.Name, z.End.Format(time.RFC3339), z.Start.Format(time.RFC3339))
	}

	var cands []candidate
	cursor := z.Start
	for di, dir := range z.Directives {
		switch v := dir.(type) {
		case PlaySingle:
			meta, err := lib.Asset(ctx, v.AssetID)
			if err != nil {
				return nil, compileErrWrap(CodeAssetUnresolvable, err, "zone %s directive %d: asset %q", z.Name, di, v.AssetID)
			}
			c := newCandidate(meta, cursor, d.GridMinutes)
			cands = append(cands, c)
			cursor = cursor.Add(time.Duration(c.block.SlotDurationSec) * time.Second)

		case ProgramReference:
			eps, err := lib.ProgramEpisodes(ctx, v.ProgramID)
			if err != nil {
				return nil, compileErrWrap(CodeAssetUnresolvable, err, "zone %s directive %d: program %q", z.Name, di, v.ProgramID)
			}
			if v.Episode < 0 || v.Episode >= len(eps) {
				return nil, compileErrf(CodeAssetUnresolvable, "zone %s directive %d: program %q has no episode %d",
					z.Name, di, v.ProgramID, v.Episode)
			}
			c := newCandidate(eps[v.Episode], cursor, d.GridMinutes)
			cands = append(cands, c)
			cursor = cursor.Add(time.Duration(c.block.SlotDurationSec) * time.Second)

		case PlayProgram:
			eps, err := lib.ProgramEpisodes(ctx, v.ProgramID)
			if err != nil {
				return nil, compileErrWrap(CodeAssetUnresolvable, err, "zone %s directive %d: program %q", z.Name, di, v.ProgramID)
			}
			if len(eps) == 0 {
				return nil, compileErrf(CodeEmptyPool, "zone %s directive %d: program %q has no episodes", z.Name, di, v.ProgramID)
			}
			if v.PlayMode == PlayRandom {
				eps = shuffledEpisodes(eps, d.ChannelID, d.BroadcastDate, z.Name)
			}
			k := 0
			for cursor.Before(z.End) {
				c := newCandidate(eps[k%len(eps)], cursor, d.GridMinutes)
				cands = append(cands, c)
				cursor = cursor.Add(time.Duration(c.block.SlotDurationSec) * time.Second)
				k++
			}

		case MovieMarathon:
			mc, end, err := expandMarathon(ctx, lib, d, z, di, v)
			if err != nil {
				return nil, err
			}
			cands = append(cands, mc...)
			if end.After(cursor) {
				cursor = end
			}

		default:
			return nil, compileErrf(CodeGridViolation, "zone %s directive %d: unsupported directive %T", z.Name, di, dir)
		}
	}
	return cands, nil
}

// expandMarathon emits one candidate per movie over the marathon window.
// With bleed enabled, declared starts advance by each movie's actual
// runtime while slots remain grid-ceiled, so consecutive declared slots
// overlap and compaction pushes each block to the previous block's end.
func expandMarathon(ctx context.Context, lib Library, d DayDirective, z *Zone, di int, v MovieMarathon) ([]candidate, time.Time, error) {
	if err := checkGridInstant(fmt.Sprintf("zone %s marathon %d start", z.Name, di), v.Start, d.GridMinutes); err != nil {
		return nil, time.Time{}, err
	}
	if err := clock.CheckUTC(fmt.Sprintf("zone %s marathon %d end", z.Name, di), v.End); err != nil {
		return nil, time.Time{}, compileErrWrap(CodeNotUTC, err, "zone %s marathon %d", z.Name, di)
	}
	if !v.End.After(v.Start) {
		return nil, time.Time{}, compileErrf(CodeGridViolation, "zone %s marathon %d: end not after start", z.Name, di)
	}
	movies, err := lib.ResolvePool(ctx, v.Pool)
	if err != nil {
		return nil, time.Time{}, compileErrWrap(CodeEmptyPool, err, "zone %s marathon %d pool", z.Name, di)
	}
	if len(movies) == 0 {
		return nil, time.Time{}, compileErrf(CodeEmptyPool, "zone %s marathon %d: pool matched no assets", z.Name, di)
	}

	var cands []candidate
	cursor := v.Start
	for k := 0; cursor.Before(v.End); k++ {
		m := movies[k%len(movies)]
		c := newCandidate(m, cursor, d.GridMinutes)
		cands = append(cands, c)
		if v.AllowBleed {
			cursor = cursor.Add(time.Duration(m.DurationMS) * time.Millisecond)
		} else {
			cursor = cursor.Add(time.Duration(c.block.SlotDurationSec) * time.Second)
		}
	}
	return cands, v.End, nil
}

func newCandidate(meta AssetMeta, declared time.Time, gridMinutes int) candidate {
	slotSec := CeilSlotSec(meta.DurationMS, gridMinutes)
	return candidate{
		block: ProgramBlock{
			Title:              meta.Title,
			AssetID:            meta.AssetID,
			AssetURI:           meta.URI,
			SlotDurationSec:    slotSec,
			EpisodeDurationSec: meta.DurationMS / 1000,
			ChapterMarkersMS:   append([]int64(nil), meta.ChapterMarkersMS...),
		},
		declaredStart: declared,
	}
}

// compact walks the sorted candidates with a placement cursor. A declared
// start the cursor has already passed (the previous block bled over it) is
// pushed forward to the cursor; a pushed block that still would not extend
// past the previous block's end is an illegal overlap, never a silent
// prune. A declared start ahead of the cursor leaves a hole in the day.
func compact(cands []candidate) ([]ProgramBlock, error) {
	blocks := make([]ProgramBlock, 0, len(cands))
	var cursor time.Time
	for i, c := range cands {
		start := c.declaredStart
		slot := time.Duration(c.block.SlotDurationSec) * time.Second
		if i > 0 {
			switch {
			case cursor.After(start):
				start = cursor
				if !start.Add(slot).After(cursor) {
					return nil, compileErrf(CodeIllegalOverlap,
						"block %q declared %s is fully enclosed by the previous block",
						c.block.AssetID, c.declaredStart.Format(time.RFC3339))
				}
			case start.After(cursor):
				return nil, compileErrf(CodeGridViolation,
					"gap before block %q: previous block ends %s, declared start %s",
					c.block.AssetID, cursor.Format(time.RFC3339), start.Format(time.RFC3339))
			}
		}
		b := c.block
		b.StartAtUTC = start
		blocks = append(blocks, b)
		cursor = start.Add(slot)
	}
	return blocks, nil
}

func validateBlocks(blocks []ProgramBlock, gridMinutes int) error {
	gridSec := int64(gridMinutes) * 60
	for i, b := range blocks {
		if err := clock.CheckUTC("block start", b.StartAtUTC); err != nil {
			return compileErrWrap(CodeNotUTC, err, "block %d (%s)", i, b.AssetID)
		}
		if !OnGrid(b.StartAtUTC, gridMinutes) {
			return compileErrf(CodeGridViolation, "block %d (%s) start %s off the %d-min grid",
				i, b.AssetID, b.StartAtUTC.Format(time.RFC3339), gridMinutes)
		}
		if b.SlotDurationSec <= 0 || b.SlotDurationSec%gridSec != 0 {
			return compileErrf(CodeGridViolation, "block %d (%s) slot %ds is not whole grid slots",
				i, b.AssetID, b.SlotDurationSec)
		}
		if b.EpisodeDurationSec > b.SlotDurationSec {
			return compileErrf(CodeGridViolation, "block %d (%s) episode %ds exceeds slot %ds",
				i, b.AssetID, b.EpisodeDurationSec, b.SlotDurationSec)
		}
	}
	return nil
}

func checkGridInstant(what string, t time.Time, gridMinutes int) error {
	if err := clock.CheckUTC(what, t); err != nil {
		return compileErrWrap(CodeNotUTC, err, "%s", what)
	}
	if !OnGrid(t, gridMinutes) {
		return compileErrf(CodeGridViolation, "%s %s off the %d-min grid", what, t.Format(time.RFC3339), gridMinutes)
	}
	return nil
}

// shuffledEpisodes returns a deterministically shuffled copy: the seed is
// derived from channel, date and zone so recompiling the same day yields
// the same order.
func shuffledEpisodes(eps []AssetMeta, channelID, date, zone string) []AssetMeta {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", channelID, date, zone)
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	out := append([]AssetMeta(nil), eps...)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
