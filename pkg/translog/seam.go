// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package translog

import (
	"fmt"

	"github.com/retrovue/playout/pkg/clock"
)

// Seam invariant ids. All four must hold before a log can be locked.
const (
	SeamContiguity = "INV-TL-SEAM-001" // entries[i].end == entries[i+1].start
	SeamGrid       = "INV-TL-SEAM-002" // every entry spans exactly one grid
	SeamMonotonic  = "INV-TL-SEAM-003" // strictly increasing starts
	SeamNonZero    = "INV-TL-SEAM-004" // end > start
)

// SeamError reports the first seam violation found.
type SeamError struct {
	Code    string
	BlockID string
	Detail  string
}

func (e *SeamError) Error() string {
	return fmt.Sprintf("transmission log seam violation %s (block %s): %s", e.Code, e.BlockID, e.Detail)
}

// Validate runs the four seam invariants plus the UTC guard over every
// entry. GridMinutes must be set; SEAM-002 is meaningless without it.
func Validate(l Log) error {
	if l.GridMinutes <= 0 {
		return fmt.Errorf("transmission log %s: grid_block_minutes missing from metadata", l.ID)
	}
	gridMS := l.GridMS()
	for i, e := range l.Entries {
		if err := clock.CheckUTC("entry start", e.Start); err != nil {
			return err
		}
		if err := clock.CheckUTC("entry end", e.End); err != nil {
			return err
		}
		if !e.End.After(e.Start) {
			return &SeamError{Code: SeamNonZero, BlockID: e.BlockID,
				Detail: fmt.Sprintf("start %s, end %s", e.Start.Format(TimeLayout), e.End.Format(TimeLayout))}
		}
		if e.DurationMS() != gridMS {
			return &SeamError{Code: SeamGrid, BlockID: e.BlockID,
				Detail: fmt.Sprintf("spans %dms, grid is %dms", e.DurationMS(), gridMS)}
		}
		if i > 0 {
			prev := l.Entries[i-1]
			if !e.Start.After(prev.Start) {
				return &SeamError{Code: SeamMonotonic, BlockID: e.BlockID,
					Detail: fmt.Sprintf("start %s does not advance past %s",
						e.Start.Format(TimeLayout), prev.Start.Format(TimeLayout))}
			}
			if !prev.End.Equal(e.Start) {
				return &SeamError{Code: SeamContiguity, BlockID: e.BlockID,
					Detail: fmt.Sprintf("starts at %s, previous block %s ended at %s",
						e.Start.Format(TimeLayout), prev.BlockID, prev.End.Format(TimeLayout))}
			}
		}
	}
	return nil
}

// Lock validates the seams and returns a locked deep copy stamped with now.
// Locking is idempotent for an unchanged log; a mutated copy whose seams no
// longer hold fails like any other invalid log.
func Lock(l Log, now clock.Clock) (Log, error) {
	at := clock.OrSystem(now).Now()
	if err := clock.CheckUTC("lock time", at); err != nil {
		return Log{}, err
	}
	if err := Validate(l); err != nil {
		return Log{}, err
	}
	out := l.Clone()
	out.Locked = true
	out.LockedAt = at
	return out, nil
}
