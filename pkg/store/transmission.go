// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/retrovue/playout/pkg/translog"
)

// StoredEntry is one transmission entry as persisted: the durable source
// the execution window rehydrates from after a restart, and the rows the
// Tier-2 purger ages out.
type StoredEntry struct {
	ChannelID     string
	BroadcastDate string
	Generation    int64
	Entry         translog.Entry
}

// SaveTransmissionEntries upserts a locked log's entries. Re-publishing a
// day replaces its rows in place under (channel, day, block id).
func (s *Store) SaveTransmissionEntries(ctx context.Context, lg translog.Log, generation int64) error {
	if !lg.Locked {
		return fmt.Errorf("refusing to persist unlocked log %s", lg.ID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO transmission_entries
		(channel_id, broadcast_day, block_id, start_utc_ms, end_utc_ms, generation, entry_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(channel_id, broadcast_day, block_id) DO UPDATE SET
		start_utc_ms = excluded.start_utc_ms,
		end_utc_ms = excluded.end_utc_ms,
		generation = excluded.generation,
		entry_json = excluded.entry_json
	`
	for _, e := range lg.Entries {
		buf, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", e.BlockID, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			lg.ChannelID, lg.BroadcastDate, e.BlockID,
			e.Start.UnixMilli(), e.End.UnixMilli(), generation, string(buf)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadTransmissionWindow returns a channel's entries ending after fromUTCMS
// in start order, for execution-window hydration at boot.
func (s *Store) LoadTransmissionWindow(ctx context.Context, channelID string, fromUTCMS int64) ([]StoredEntry, error) {
	query := `
	SELECT broadcast_day, generation, entry_json
	FROM transmission_entries
	WHERE channel_id = ? AND end_utc_ms > ?
	ORDER BY start_utc_ms
	`
	rows, err := s.db.QueryContext(ctx, query, channelID, fromUTCMS)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEntry
	for rows.Next() {
		se := StoredEntry{ChannelID: channelID}
		var entryJSON string
		if err := rows.Scan(&se.BroadcastDate, &se.Generation, &entryJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(entryJSON), &se.Entry); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		out = append(out, se)
	}
	return out, rows.Err()
}
