// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package horizon runs the per-channel control loop that keeps the
// schedule ahead of the clock: EPG depth in resolved days, execution
// depth in locked transmission entries, and a per-tick check that the
// block covering now actually exists. Planning failures are logged and
// retried on the next tick; they never stop the loop.
package horizon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/retrovue/playout/pkg/clock"
	"github.com/retrovue/playout/pkg/execwindow"
	"github.com/retrovue/playout/pkg/override"
	"github.com/retrovue/playout/pkg/schedule"
	"github.com/retrovue/playout/pkg/translog"
)

// ReasonAutoExtend marks publishes made by the loop itself, both depth
// extension and fence fill.
const ReasonAutoExtend = "AUTO_EXTEND"

// CodePipelineExhausted is reported when the planning pipeline cannot
// produce entries for a requested range.
const CodePipelineExhausted = "PIPELINE_EXHAUSTED"

// ErrExhausted is the sentinel planners wrap when they have nothing left
// to plan: no directive, no resolved day, an empty block list.
var ErrExhausted = errors.New(CodePipelineExhausted)

// Plan is one planned broadcast day: the locked log whose artifacts are
// already on disk and the execution entries derived from it.
type Plan struct {
	Date    string
	Log     translog.Log
	Entries []execwindow.Entry
}

// Planner produces locked execution entries on demand. PlanDay covers a
// whole broadcast date; FenceFill produces just enough to cover now.
// Commit persists a plan's entries after the window accepted them.
type Planner interface {
	PlanDay(ctx context.Context, date string) (Plan, error)
	FenceFill(ctx context.Context, now time.Time) (Plan, error)
	Commit(ctx context.Context, p Plan, generation int64) error
}

// EPG is the schedule-resolution collaborator. FarthestResolved reports
// the latest broadcast date already resolved, ok=false when none is.
// ResolveDay resolves one more date.
type EPG interface {
	FarthestResolved(ctx context.Context) (string, bool, error)
	ResolveDay(ctx context.Context, date string) error
}

// Config bounds one channel's horizon loop.
type Config struct {
	ChannelID          string
	Timezone           string
	DayStartHour       int
	MinEPGDays         int
	MinExecutionHours  int
	EvaluationInterval time.Duration
	AttemptLogSize     int
}

func (c Config) withDefaults() Config {
	if c.MinEPGDays <= 0 {
		c.MinEPGDays = 2
	}
	if c.MinExecutionHours <= 0 {
		c.MinExecutionHours = 6
	}
	if c.EvaluationInterval <= 0 {
		c.EvaluationInterval = 30 * time.Second
	}
	if c.AttemptLogSize <= 0 {
		c.AttemptLogSize = 64
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	return c
}

// Attempt is one logged extension or fence-fill outcome.
type Attempt struct {
	AtUTCMS      int64  `json:"at_utc_ms"`
	Kind         string `json:"kind"` // epg | extend | fence
	Date         string `json:"date,omitempty"`
	RangeStartMS int64  `json:"range_start_ms,omitempty"`
	RangeEndMS   int64  `json:"range_end_ms,omitempty"`
	OK           bool   `json:"ok"`
	Code         string `json:"code,omitempty"`
}

// Status is a point-in-time snapshot of the loop's state for operators.
type Status struct {
	ChannelID            string    `json:"channel_id"`
	EPGFarthestDate      string    `json:"epg_farthest_date"`
	ExecutionWindowEndMS int64     `json:"execution_window_end_utc_ms"`
	NextBlockCompliant   bool      `json:"next_block_compliant"`
	Attempts             []Attempt `json:"extension_attempt_log"`
}

// Manager is the per-channel horizon loop. Construct with NewManager and
// either run Serve under a supervisor or drive EvaluateOnce from tests.
type Manager struct {
	cfg     Config
	loc     *time.Location
	clk     clock.Clock
	epg     EPG
	planner Planner
	window  *execwindow.Store
	log     *slog.Logger

	mu          sync.Mutex
	epgFarthest string
	windowEndMS int64
	compliant   bool
	attempts    []Attempt
}

// NewManager wires a horizon loop for one channel. The window store must
// be hydrated (or empty for a brand-new channel) before the first tick.
func NewManager(cfg Config, clk clock.Clock, epg EPG, planner Planner, window *execwindow.Store, log *slog.Logger) (*Manager, error) {
	cfg = cfg.withDefaults()
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("channel %s timezone: %w", cfg.ChannelID, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:         cfg,
		loc:         loc,
		clk:         clock.OrSystem(clk),
		epg:         epg,
		planner:     planner,
		window:      window,
		log:         log.With("channel", cfg.ChannelID),
		windowEndMS: window.WindowEndMS(),
		compliant:   true,
	}, nil
}

// Serve runs the loop until ctx is canceled, evaluating once immediately
// and then every EvaluationInterval. Cancellation lands at the tick
// boundary; a tick in flight finishes first.
func (m *Manager) Serve(ctx context.Context) error {
	for {
		m.EvaluateOnce(ctx)
		t := m.clk.NewTimer(m.cfg.EvaluationInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C():
		}
	}
}

// Status returns a copy of the loop state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		ChannelID:            m.cfg.ChannelID,
		EPGFarthestDate:      m.epgFarthest,
		ExecutionWindowEndMS: m.windowEndMS,
		NextBlockCompliant:   m.compliant,
		Attempts:             append([]Attempt(nil), m.attempts...),
	}
}

// EvaluateOnce runs one tick: EPG depth, execution depth, next-block
// readiness. Every failure is recorded and left for the next tick.
func (m *Manager) EvaluateOnce(ctx context.Context) {
	now := m.clk.Now()
	today := schedule.BroadcastDate(now, m.loc, m.cfg.DayStartHour)
	m.extendEPG(ctx, now, today)
	m.extendExecution(ctx, now, today)
	m.checkNextBlock(ctx, now)
}

// extendEPG resolves broadcast dates until the EPG horizon reaches
// now + MinEPGDays.
func (m *Manager) extendEPG(ctx context.Context, now time.Time, today string) {
	target := now.Add(time.Duration(m.cfg.MinEPGDays) * 24 * time.Hour)

	m.mu.Lock()
	farthest := m.epgFarthest
	m.mu.Unlock()
	if farthest == "" {
		d, ok, err := m.epg.FarthestResolved(ctx)
		if err != nil {
			m.record(Attempt{AtUTCMS: now.UnixMilli(), Kind: "epg", OK: false, Code: codeOf(err)})
			m.log.Warn("epg farthest lookup failed", "err", err)
			return
		}
		if ok {
			farthest = d
		}
	}

	for {
		if farthest != "" {
			end, err := m.dayEndUTC(farthest)
			if err != nil {
				m.log.Warn("bad epg farthest date", "date", farthest, "err", err)
				break
			}
			if !end.Before(target) {
				break
			}
		}
		next := today
		if farthest != "" {
			var err error
			if next, err = schedule.NextBroadcastDate(farthest); err != nil {
				m.log.Warn("bad epg farthest date", "date", farthest, "err", err)
				break
			}
		}
		if err := m.epg.ResolveDay(ctx, next); err != nil {
			m.record(Attempt{AtUTCMS: now.UnixMilli(), Kind: "epg", Date: next, OK: false, Code: codeOf(err)})
			m.log.Warn("epg extension failed", "date", next, "err", err)
			break
		}
		m.record(Attempt{AtUTCMS: now.UnixMilli(), Kind: "epg", Date: next, OK: true})
		farthest = next
	}

	m.mu.Lock()
	m.epgFarthest = farthest
	m.mu.Unlock()
}

// extendExecution plans and publishes broadcast days until the execution
// window reaches now + MinExecutionHours. Only a successful publish
// advances the window end; the first failure ends the loop for this tick.
func (m *Manager) extendExecution(ctx context.Context, now time.Time, today string) {
	targetMS := now.Add(time.Duration(m.cfg.MinExecutionHours) * time.Hour).UnixMilli()

	for {
		endMS := m.window.WindowEndMS()
		m.mu.Lock()
		m.windowEndMS = endMS
		m.mu.Unlock()
		if endMS >= targetMS {
			return
		}

		date := today
		if endMS > 0 {
			// The window end is the first uncovered instant; the date it
			// falls on is the next one to plan.
			date = schedule.BroadcastDate(time.UnixMilli(endMS).UTC(), m.loc, m.cfg.DayStartHour)
		}

		plan, err := m.planner.PlanDay(ctx, date)
		if err != nil {
			m.record(Attempt{AtUTCMS: now.UnixMilli(), Kind: "extend", Date: date, OK: false, Code: codeOf(err)})
			m.log.Warn("execution extension failed", "date", date, "err", err)
			return
		}
		if len(plan.Entries) == 0 {
			m.record(Attempt{AtUTCMS: now.UnixMilli(), Kind: "extend", Date: date, OK: false, Code: CodePipelineExhausted})
			m.log.Warn("execution extension produced no entries", "date", date)
			return
		}

		gen, code, ok := m.install(ctx, plan, endMS == 0)
		att := Attempt{
			AtUTCMS:      now.UnixMilli(),
			Kind:         "extend",
			Date:         date,
			RangeStartMS: plan.Entries[0].StartMS(),
			RangeEndMS:   plan.Entries[len(plan.Entries)-1].EndMS(),
			OK:           ok,
			Code:         code,
		}
		m.record(att)
		if !ok {
			m.log.Warn("execution publish refused", "date", date, "code", code)
			return
		}
		if err := m.planner.Commit(ctx, plan, gen); err != nil {
			// The window advanced; durability catches up on a later plan.
			m.log.Error("plan commit failed", "date", date, "err", err)
		}
		m.log.Info("execution window extended",
			"date", date, "entries", len(plan.Entries), "generation", gen)
	}
}

// install places a plan's entries in the window. An empty window takes
// the seed path; anything else is an atomic replace of the plan's own
// range without operator override. The window allocates the generation
// either way.
func (m *Manager) install(ctx context.Context, plan Plan, seed bool) (int64, string, bool) {
	if seed {
		return m.window.Seed(plan.Entries), "", true
	}
	res := m.window.PublishAtomicReplace(ctx,
		plan.Entries[0].StartMS(), plan.Entries[len(plan.Entries)-1].EndMS(),
		plan.Entries, ReasonAutoExtend, false)
	if !res.OK {
		return 0, res.Code, false
	}
	return res.Generation, "", true
}

// checkNextBlock enforces INV-HORIZON-NEXT-BLOCK-READY-001: the entry
// covering now must exist. A gap triggers one fence-fill attempt; its
// publish runs without operator override, so a gap inside the locked
// window is recorded as a locked-immutable violation for the operator to
// resolve.
func (m *Manager) checkNextBlock(ctx context.Context, now time.Time) {
	nowMS := now.UnixMilli()
	if _, ok := m.window.EntryAt(nowMS, false); ok {
		m.setCompliant(true)
		return
	}

	plan, err := m.planner.FenceFill(ctx, now)
	if err != nil || len(plan.Entries) == 0 {
		code := CodePipelineExhausted
		if err != nil {
			code = codeOf(err)
		}
		m.record(Attempt{AtUTCMS: nowMS, Kind: "fence", Date: plan.Date, OK: false, Code: code})
		m.log.Warn("fence fill failed", "err", err, "code", code)
		m.setCompliant(false)
		return
	}

	first, last := plan.Entries[0], plan.Entries[len(plan.Entries)-1]
	res := m.window.PublishAtomicReplace(ctx,
		first.StartMS(), last.EndMS(), plan.Entries, ReasonAutoExtend, false)
	att := Attempt{
		AtUTCMS:      nowMS,
		Kind:         "fence",
		Date:         plan.Date,
		RangeStartMS: first.StartMS(),
		RangeEndMS:   last.EndMS(),
		OK:           res.OK,
		Code:         res.Code,
	}
	m.record(att)
	if !res.OK {
		m.log.Warn("fence fill publish refused", "code", res.Code)
		m.setCompliant(false)
		return
	}
	if err := m.planner.Commit(ctx, plan, res.Generation); err != nil {
		m.log.Error("fence fill commit failed", "err", err)
	}
	_, ok := m.window.EntryAt(nowMS, false)
	m.setCompliant(ok)
}

func (m *Manager) setCompliant(ok bool) {
	m.mu.Lock()
	m.compliant = ok
	m.mu.Unlock()
}

// record appends to the bounded attempt log, dropping the oldest entries.
func (m *Manager) record(a Attempt) {
	m.mu.Lock()
	m.attempts = append(m.attempts, a)
	if n := len(m.attempts) - m.cfg.AttemptLogSize; n > 0 {
		m.attempts = append([]Attempt(nil), m.attempts[n:]...)
	}
	m.mu.Unlock()
}

// dayEndUTC is the instant the given broadcast date's 24 hours run out.
func (m *Manager) dayEndUTC(date string) (time.Time, error) {
	start, err := schedule.DayStartUTC(date, m.loc, m.cfg.DayStartHour)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(24 * time.Hour), nil
}

// codeOf maps an error to the code surfaced in attempt logs and operator
// status.
func codeOf(err error) string {
	var compile *schedule.CompileError
	if errors.As(err, &compile) {
		return compile.Code
	}
	var seam *translog.SeamError
	if errors.As(err, &seam) {
		return seam.Code
	}
	var exists *translog.ArtifactExistsError
	if errors.As(err, &exists) {
		return "TL-ART-001"
	}
	var persist *override.PersistError
	if errors.As(err, &persist) {
		return override.CodePersistFailed
	}
	switch {
	case errors.Is(err, ErrExhausted):
		return CodePipelineExhausted
	case errors.Is(err, clock.ErrNotUTC):
		return schedule.CodeNotUTC
	}
	return "PLANNING_FAILED"
}
