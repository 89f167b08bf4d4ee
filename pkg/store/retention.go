// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"sync"
	"time"

	"github.com/retrovue/playout/pkg/clock"
	"github.com/retrovue/playout/pkg/schedule"
)

// RetentionPolicy sets the purge cadence and depth. Zero values take the
// defaults: hourly throttles, four hours of transmission history, UTC
// midnight as the day boundary. Location and DayStartHour should match the
// station's programming-day settings so Tier-1 counts days the way the
// scheduler does.
type RetentionPolicy struct {
	Tier1Throttle  time.Duration
	Tier2Throttle  time.Duration
	Tier2Retention time.Duration
	Location       *time.Location
	DayStartHour   int
}

func (p RetentionPolicy) withDefaults() RetentionPolicy {
	if p.Tier1Throttle <= 0 {
		p.Tier1Throttle = time.Hour
	}
	if p.Tier2Throttle <= 0 {
		p.Tier2Throttle = time.Hour
	}
	if p.Tier2Retention <= 0 {
		p.Tier2Retention = 4 * time.Hour
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	return p
}

// Retention runs the two independent purgers. Each tier keeps its own
// last-purge timestamp; a call inside the throttle window returns 0
// without touching the database.
type Retention struct {
	store  *Store
	clk    clock.Clock
	policy RetentionPolicy

	mu          sync.Mutex
	tier1LastMS int64
	tier2LastMS int64
}

// NewRetention wires a purger pair over the store.
func NewRetention(s *Store, clk clock.Clock, policy RetentionPolicy) *Retention {
	return &Retention{
		store:  s,
		clk:    clock.OrSystem(clk),
		policy: policy.withDefaults(),
	}
}

// PurgePlanning is Tier-1: deletes resolved schedule days older than
// yesterday (broadcast_day < today-1) and reports how many rows went.
// "Today" is the broadcast date under the policy's zone and day-start
// hour, so early-morning sweeps never eat the day still on air.
func (r *Retention) PurgePlanning(ctx context.Context) (int64, error) {
	now := r.clk.Now()
	if !r.admit(&r.tier1LastMS, now, r.policy.Tier1Throttle) {
		return 0, nil
	}
	today := schedule.BroadcastDate(now, r.policy.Location, r.policy.DayStartHour)
	cutoff, err := schedule.PrevBroadcastDate(today)
	if err != nil {
		return 0, err
	}
	res, err := r.store.db.ExecContext(ctx,
		"DELETE FROM resolved_schedule_days WHERE broadcast_day < ?", cutoff)
	if err != nil {
		return 0, err
	}
	r.commit(&r.tier1LastMS, now)
	return res.RowsAffected()
}

// PurgeTransmission is Tier-2: deletes transmission entries that ended at
// or before now minus the retention depth.
func (r *Retention) PurgeTransmission(ctx context.Context) (int64, error) {
	now := r.clk.Now()
	if !r.admit(&r.tier2LastMS, now, r.policy.Tier2Throttle) {
		return 0, nil
	}
	cutoff := now.Add(-r.policy.Tier2Retention).UnixMilli()
	res, err := r.store.db.ExecContext(ctx,
		"DELETE FROM transmission_entries WHERE end_utc_ms <= ?", cutoff)
	if err != nil {
		return 0, err
	}
	r.commit(&r.tier2LastMS, now)
	return res.RowsAffected()
}

// admit reports whether the tier is outside its throttle window.
func (r *Retention) admit(lastMS *int64, now time.Time, throttle time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.UnixMilli()-*lastMS >= throttle.Milliseconds()
}

// commit stamps the tier's last successful purge.
func (r *Retention) commit(lastMS *int64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*lastMS = now.UnixMilli()
}
