// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/retrovue/playout/pkg/override"
	"github.com/retrovue/playout/pkg/schedule"
)

// ResolvedScheduleDay is one channel's compiled plan for one broadcast
// date. SegmentedBlocks is derived data: nil until the slow-path backfill
// expands and traffic-fills the blocks.
type ResolvedScheduleDay struct {
	ChannelID        string                    `json:"channel_id"`
	BroadcastDate    string                    `json:"broadcast_date"`
	PlanID           string                    `json:"plan_id"`
	Blocks           []schedule.ProgramBlock   `json:"blocks"`
	SegmentedBlocks  []schedule.SegmentedBlock `json:"segmented_blocks,omitempty"`
	IsManualOverride bool                      `json:"is_manual_override"`
	UpdatedUTCMS     int64                     `json:"updated_utc_ms"`
}

// SaveDay upserts by (channel, broadcast date): the row is updated in
// place, never duplicated.
func (s *Store) SaveDay(ctx context.Context, day ResolvedScheduleDay) error {
	day.UpdatedUTCMS = s.clk.Now().UnixMilli()
	return s.saveDay(ctx, day)
}

func (s *Store) saveDay(ctx context.Context, day ResolvedScheduleDay) error {
	blocks, err := json.Marshal(day.Blocks)
	if err != nil {
		return fmt.Errorf("marshal blocks: %w", err)
	}
	var segmented any
	if day.SegmentedBlocks != nil {
		buf, err := json.Marshal(day.SegmentedBlocks)
		if err != nil {
			return fmt.Errorf("marshal segmented blocks: %w", err)
		}
		segmented = string(buf)
	}
	query := `
	INSERT INTO resolved_schedule_days
		(channel_id, broadcast_day, plan_id, blocks_json, segmented_blocks_json, is_manual_override, updated_utc_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(channel_id, broadcast_day) DO UPDATE SET
		plan_id = excluded.plan_id,
		blocks_json = excluded.blocks_json,
		segmented_blocks_json = excluded.segmented_blocks_json,
		is_manual_override = excluded.is_manual_override,
		updated_utc_ms = excluded.updated_utc_ms
	`
	_, err = s.db.ExecContext(ctx, query,
		day.ChannelID, day.BroadcastDate, day.PlanID, string(blocks), segmented, day.IsManualOverride, day.UpdatedUTCMS)
	return err
}

// GetDay returns the stored day, reporting ok=false when the key is absent.
func (s *Store) GetDay(ctx context.Context, channelID, date string) (ResolvedScheduleDay, bool, error) {
	query := `
	SELECT plan_id, blocks_json, segmented_blocks_json, is_manual_override, updated_utc_ms
	FROM resolved_schedule_days WHERE channel_id = ? AND broadcast_day = ?
	`
	day := ResolvedScheduleDay{ChannelID: channelID, BroadcastDate: date}
	var blocksJSON string
	var segmentedJSON sql.NullString
	err := s.db.QueryRowContext(ctx, query, channelID, date).Scan(
		&day.PlanID, &blocksJSON, &segmentedJSON, &day.IsManualOverride, &day.UpdatedUTCMS)
	if errors.Is(err, sql.ErrNoRows) {
		return ResolvedScheduleDay{}, false, nil
	}
	if err != nil {
		return ResolvedScheduleDay{}, false, err
	}
	if err := json.Unmarshal([]byte(blocksJSON), &day.Blocks); err != nil {
		return ResolvedScheduleDay{}, false, fmt.Errorf("unmarshal blocks: %w", err)
	}
	if segmentedJSON.Valid {
		if err := json.Unmarshal([]byte(segmentedJSON.String), &day.SegmentedBlocks); err != nil {
			return ResolvedScheduleDay{}, false, fmt.Errorf("unmarshal segmented blocks: %w", err)
		}
	}
	return day, true, nil
}

// FarthestDay returns the latest resolved broadcast date stored for the
// channel, ok=false when the channel has none.
func (s *Store) FarthestDay(ctx context.Context, channelID string) (string, bool, error) {
	var date sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(broadcast_day) FROM resolved_schedule_days WHERE channel_id = ?", channelID).Scan(&date)
	if err != nil {
		return "", false, err
	}
	return date.String, date.Valid, nil
}

// OperatorOverride replaces the stored day with record-first durability:
// the override record persists before the row changes, and a record
// failure leaves the store untouched.
func (s *Store) OperatorOverride(ctx context.Context, day ResolvedScheduleDay, reasonCode string) (ResolvedScheduleDay, error) {
	if s.records == nil {
		return ResolvedScheduleDay{}, errors.New("no override record store configured")
	}
	now := s.clk.Now().UnixMilli()
	rec := override.Record{
		Layer:        override.LayerScheduleDay,
		TargetID:     day.ChannelID + "/" + day.BroadcastDate,
		ReasonCode:   reasonCode,
		CreatedUTCMS: now,
		Summary:      fmt.Sprintf("replace resolved day with %d blocks", len(day.Blocks)),
	}
	if err := s.records.Persist(ctx, rec); err != nil {
		return ResolvedScheduleDay{}, err
	}
	day.IsManualOverride = true
	day.UpdatedUTCMS = now
	if err := s.saveDay(ctx, day); err != nil {
		return ResolvedScheduleDay{}, err
	}
	return day, nil
}

// HydrateSegmented returns the day with SegmentedBlocks present. A stored
// row without them takes the slow path: expand the blocks, run the traffic
// fill from the channel's persisted cursor, and write the result back under
// the same key so the next reader gets the fast path.
func (s *Store) HydrateSegmented(ctx context.Context, channelID, date string, p schedule.Pipeline) (ResolvedScheduleDay, bool, error) {
	day, ok, err := s.GetDay(ctx, channelID, date)
	if err != nil || !ok {
		return ResolvedScheduleDay{}, ok, err
	}
	if day.SegmentedBlocks != nil {
		return day, true, nil
	}

	cur, err := s.TrafficCursor(ctx, channelID)
	if err != nil {
		return ResolvedScheduleDay{}, false, err
	}
	sbs, err := p.SegmentBlocks(day.Blocks, &cur)
	if err != nil {
		return ResolvedScheduleDay{}, false, fmt.Errorf("backfill %s/%s: %w", channelID, date, err)
	}
	day.SegmentedBlocks = sbs
	day.UpdatedUTCMS = s.clk.Now().UnixMilli()
	if err := s.saveDay(ctx, day); err != nil {
		return ResolvedScheduleDay{}, false, err
	}
	if err := s.SaveTrafficCursor(ctx, channelID, cur); err != nil {
		return ResolvedScheduleDay{}, false, err
	}
	return day, true, nil
}

// TrafficCursor returns the channel's persisted filler cursor, zero when
// the channel has none yet.
func (s *Store) TrafficCursor(ctx context.Context, channelID string) (schedule.Cursor, error) {
	var cur schedule.Cursor
	err := s.db.QueryRowContext(ctx,
		"SELECT offset_ms FROM traffic_cursors WHERE channel_id = ?", channelID).Scan(&cur.OffsetMS)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Cursor{}, nil
	}
	if err != nil {
		return schedule.Cursor{}, err
	}
	return cur, nil
}

// SaveTrafficCursor upserts the channel's filler cursor.
func (s *Store) SaveTrafficCursor(ctx context.Context, channelID string, cur schedule.Cursor) error {
	query := `
	INSERT INTO traffic_cursors (channel_id, offset_ms, updated_utc_ms)
	VALUES (?, ?, ?)
	ON CONFLICT(channel_id) DO UPDATE SET
		offset_ms = excluded.offset_ms,
		updated_utc_ms = excluded.updated_utc_ms
	`
	_, err := s.db.ExecContext(ctx, query, channelID, cur.OffsetMS, s.clk.Now().UnixMilli())
	return err
}
