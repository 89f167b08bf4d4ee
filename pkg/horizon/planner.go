// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package horizon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/retrovue/playout/pkg/clock"
	"github.com/retrovue/playout/pkg/execwindow"
	"github.com/retrovue/playout/pkg/schedule"
	"github.com/retrovue/playout/pkg/store"
	"github.com/retrovue/playout/pkg/translog"
)

// DirectiveSource supplies the operator-authored zone layout for one
// channel broadcast date. It is the system's external planning input.
type DirectiveSource interface {
	Directive(ctx context.Context, channelID, date string) (schedule.DayDirective, error)
}

// DirectiveFunc adapts a function to DirectiveSource.
type DirectiveFunc func(ctx context.Context, channelID, date string) (schedule.DayDirective, error)

func (f DirectiveFunc) Directive(ctx context.Context, channelID, date string) (schedule.DayDirective, error) {
	return f(ctx, channelID, date)
}

// StoreEPG resolves broadcast dates by compiling their directives and
// saving the result into the resolved-schedule store.
type StoreEPG struct {
	ChannelID  string
	Directives DirectiveSource
	Library    schedule.Library
	Store      *store.Store
	NewPlanID  func() string // defaults to uuid.NewString
}

func (e *StoreEPG) planID() string {
	if e.NewPlanID != nil {
		return e.NewPlanID()
	}
	return uuid.NewString()
}

// FarthestResolved reports the latest broadcast date already stored for
// the channel.
func (e *StoreEPG) FarthestResolved(ctx context.Context) (string, bool, error) {
	return e.Store.FarthestDay(ctx, e.ChannelID)
}

// ResolveDay compiles one broadcast date and stores its resolved day.
// Segments are left for the slow path; EPG depth only needs blocks.
func (e *StoreEPG) ResolveDay(ctx context.Context, date string) error {
	d, err := e.Directives.Directive(ctx, e.ChannelID, date)
	if err != nil {
		return fmt.Errorf("%w: directive for %s/%s: %v", ErrExhausted, e.ChannelID, date, err)
	}
	blocks, err := schedule.Compile(ctx, e.Library, d)
	if err != nil {
		return err
	}
	return e.Store.SaveDay(ctx, store.ResolvedScheduleDay{
		ChannelID:     e.ChannelID,
		BroadcastDate: date,
		PlanID:        e.planID(),
		Blocks:        blocks,
	})
}

// StorePlanner realizes the planning pipeline for the horizon loop: it
// hydrates (or compiles) a broadcast day, chops it into one-grid
// transmission entries, locks the log, writes the immutable artifact
// pair, and hands the entries to the manager for publishing. Commit
// persists the entries after the window accepted them.
type StorePlanner struct {
	ChannelID    string
	DayStartHour int
	Directives   DirectiveSource
	Store        *store.Store
	Pipeline     schedule.Pipeline
	Writer       translog.ArtifactWriter
	Clock        clock.Clock

	loc *time.Location
}

// NewStorePlanner resolves the channel timezone and returns the planner.
func NewStorePlanner(channelID, timezone string, dayStartHour int,
	directives DirectiveSource, st *store.Store, pipe schedule.Pipeline,
	writer translog.ArtifactWriter, clk clock.Clock) (*StorePlanner, error) {

	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("channel %s timezone: %w", channelID, err)
	}
	return &StorePlanner{
		ChannelID:    channelID,
		DayStartHour: dayStartHour,
		Directives:   directives,
		Store:        st,
		Pipeline:     pipe,
		Writer:       writer,
		Clock:        clock.OrSystem(clk),
		loc:          loc,
	}, nil
}

// PlanDay produces the locked execution entries for one broadcast date.
// The day is hydrated from the resolved-schedule store when present and
// compiled from its directive otherwise; either way the segmented blocks
// end up stored, the log locked, and the artifacts on disk before any
// entry is returned.
func (p *StorePlanner) PlanDay(ctx context.Context, date string) (Plan, error) {
	d, err := p.Directives.Directive(ctx, p.ChannelID, date)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: directive for %s/%s: %v", ErrExhausted, p.ChannelID, date, err)
	}

	day, ok, err := p.Store.HydrateSegmented(ctx, p.ChannelID, date, p.Pipeline)
	if err != nil {
		return Plan{}, err
	}
	if !ok {
		if day, err = p.compileDay(ctx, d, date); err != nil {
			return Plan{}, err
		}
	}

	lg, err := schedule.BuildTransmissionLog(d, day.SegmentedBlocks, "tl-"+p.ChannelID+"-"+date)
	if err != nil {
		return Plan{}, err
	}
	locked, err := translog.Lock(lg, p.Clock)
	if err != nil {
		return Plan{}, err
	}
	if _, err := p.Writer.Write(locked, p.Clock.Now()); err != nil {
		return Plan{}, err
	}
	return Plan{Date: date, Log: locked, Entries: toExecEntries(locked, date)}, nil
}

// compileDay runs the full pipeline for a date the EPG has not resolved
// yet and stores both the day and the advanced traffic cursor.
func (p *StorePlanner) compileDay(ctx context.Context, d schedule.DayDirective, date string) (store.ResolvedScheduleDay, error) {
	cur, err := p.Store.TrafficCursor(ctx, p.ChannelID)
	if err != nil {
		return store.ResolvedScheduleDay{}, err
	}
	sbs, err := p.Pipeline.SegmentDay(ctx, d, &cur)
	if err != nil {
		return store.ResolvedScheduleDay{}, err
	}
	blocks := make([]schedule.ProgramBlock, len(sbs))
	for i, sb := range sbs {
		blocks[i] = sb.Block
	}
	day := store.ResolvedScheduleDay{
		ChannelID:       p.ChannelID,
		BroadcastDate:   date,
		PlanID:          uuid.NewString(),
		Blocks:          blocks,
		SegmentedBlocks: sbs,
	}
	if err := p.Store.SaveDay(ctx, day); err != nil {
		return store.ResolvedScheduleDay{}, err
	}
	if err := p.Store.SaveTrafficCursor(ctx, p.ChannelID, cur); err != nil {
		return store.ResolvedScheduleDay{}, err
	}
	return day, nil
}

// FenceFill produces entries covering now. Durable entries persisted by
// an earlier run are preferred; only when none cover now is the
// containing broadcast date planned fresh, trimmed to the entries still
// ahead of the clock.
func (p *StorePlanner) FenceFill(ctx context.Context, now time.Time) (Plan, error) {
	nowMS := now.UnixMilli()
	date := schedule.BroadcastDate(now, p.loc, p.DayStartHour)

	stored, err := p.Store.LoadTransmissionWindow(ctx, p.ChannelID, nowMS)
	if err != nil {
		return Plan{}, err
	}
	if len(stored) > 0 && stored[0].Entry.Covers(now) {
		entries := make([]execwindow.Entry, len(stored))
		for i, se := range stored {
			entries[i] = execwindow.Entry{
				Entry:         se.Entry,
				ChannelID:     se.ChannelID,
				BroadcastDate: se.BroadcastDate,
			}
		}
		// No log: the entries were committed when first planned.
		return Plan{Date: date, Entries: entries}, nil
	}

	plan, err := p.PlanDay(ctx, date)
	if err != nil {
		return Plan{}, err
	}
	ahead := plan.Entries[:0]
	for _, e := range plan.Entries {
		if e.EndMS() > nowMS {
			ahead = append(ahead, e)
		}
	}
	if len(ahead) == 0 || !ahead[0].Entry.Covers(now) {
		return Plan{}, fmt.Errorf("%w: no entry covers %s on %s", ErrExhausted, now.Format(time.RFC3339), date)
	}
	plan.Entries = ahead
	return plan, nil
}

// Commit persists a published plan's entries under their final
// generation. Plans assembled from already-durable entries carry no log
// and need no write.
func (p *StorePlanner) Commit(ctx context.Context, plan Plan, generation int64) error {
	if len(plan.Log.Entries) == 0 {
		return nil
	}
	return p.Store.SaveTransmissionEntries(ctx, plan.Log, generation)
}

func toExecEntries(lg translog.Log, date string) []execwindow.Entry {
	out := make([]execwindow.Entry, len(lg.Entries))
	for i, e := range lg.Entries {
		out[i] = execwindow.Entry{Entry: e, ChannelID: lg.ChannelID, BroadcastDate: date}
	}
	return out
}
