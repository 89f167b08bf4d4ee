// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, dir string) *AsRunWriter {
	t.Helper()
	w, err := NewAsRunWriter(dir, "UTC", 6)
	require.NoError(t, err)
	return w
}

func asrunAt(h, m, s int) time.Time {
	return time.Date(2025, 3, 1, h, m, s, 0, time.UTC)
}

func TestAsRunRendersFixedWidthPair(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir)

	rows := []AsRunRow{
		{ActualUTC: asrunAt(17, 0, 0), Status: StatusStart, Type: "BLOCK",
			EventID: "blk-001", Notes: "(block open)", EventUUID: "u-1", BlockID: "blk-001"},
		{ActualUTC: asrunAt(17, 0, 0), DurationMS: 300_000, Status: StatusAired, Type: "PROGRAM",
			EventID: "blk-001-S0000", EventUUID: "u-2", BlockID: "blk-001"},
		{ActualUTC: asrunAt(17, 6, 0), Status: StatusFence, Type: "FENCE",
			EventID: "blk-001-FENCE", EventUUID: "u-3", BlockID: "blk-001",
			Notes: "swap_tick=7, fence_tick=8, primed_success=Y, truncated_by_fence=N, early_exhaustion=N"},
	}
	n, err := w.Append("wxrv", "2025-03-01", rows)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	text, err := os.ReadFile(filepath.Join(dir, "wxrv", "2025-03-01.asrun"))
	require.NoError(t, err)
	lines := strings.Split(string(text), "\n")
	require.GreaterOrEqual(t, len(lines), 10)

	assert.Equal(t, "# RetroVue as-run log", lines[0])
	assert.Equal(t, "# channel: wxrv", lines[1])
	assert.Equal(t, "# date: 2025-03-01", lines[2])
	assert.Equal(t, "# broadcast_day_start: 06:00", lines[3])
	assert.Equal(t, "# timezone: UTC", lines[4])
	assert.Equal(t, asrunHeaderRow, lines[5])
	assert.Equal(t, asrunUnderline, lines[6])
	assert.Equal(t, "17:00:00 00:00:00 START      BLOCK    blk-001                          (block open)", lines[7])
	assert.Equal(t, "17:00:00 00:05:00 AIRED      PROGRAM  blk-001-S0000                    -", lines[8])
	assert.Equal(t, "17:06:00 00:00:00 FENCE      FENCE    blk-001-FENCE                    swap_tick=7, fence_tick=8, primed_success=Y, truncated_by_fence=N, early_exhaustion=N", lines[9])

	// Sidecar holds the same rows, one JSON object per line.
	jsonl, err := os.ReadFile(filepath.Join(dir, "wxrv", "2025-03-01.asrun.jsonl"))
	require.NoError(t, err)
	jlines := strings.Split(strings.TrimRight(string(jsonl), "\n"), "\n")
	require.Len(t, jlines, 3)
	assert.Contains(t, jlines[0], `"event_uuid":"u-1"`)
	assert.Contains(t, jlines[1], `"actual_utc":"2025-03-01T17:00:00.000Z"`)
	assert.Contains(t, jlines[1], `"duration_ms":300000`)
}

func TestAsRunDedupsByEventUUID(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir)

	row := AsRunRow{ActualUTC: asrunAt(17, 0, 0), Status: StatusStart, Type: "BLOCK",
		EventID: "blk-001", EventUUID: "u-1", BlockID: "blk-001"}
	n, err := w.Append("wxrv", "2025-03-01", []AsRunRow{row})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Replaying the same uuid writes nothing, including inside one batch.
	n, err = w.Append("wxrv", "2025-03-01", []AsRunRow{row, row})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	seen, err := w.Seen("wxrv", "2025-03-01", "u-1")
	require.NoError(t, err)
	assert.True(t, seen)

	rows, err := w.Rows("wxrv", "2025-03-01")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAsRunReloadsDayAfterRestart(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir)
	_, err := w.Append("wxrv", "2025-03-01", []AsRunRow{
		{ActualUTC: asrunAt(17, 0, 0), Status: StatusStart, Type: "BLOCK",
			EventID: "blk-001", Notes: "(block open)", EventUUID: "u-1", BlockID: "blk-001"},
	})
	require.NoError(t, err)

	// A fresh writer over the same directory recovers rows and dedup state
	// from the JSONL sidecar.
	w2 := newTestWriter(t, dir)
	seen, err := w2.Seen("wxrv", "2025-03-01", "u-1")
	require.NoError(t, err)
	assert.True(t, seen)

	n, err := w2.Append("wxrv", "2025-03-01", []AsRunRow{
		{ActualUTC: asrunAt(17, 0, 0), Status: StatusStart, Type: "BLOCK",
			EventID: "blk-001", EventUUID: "u-1", BlockID: "blk-001"},
		{ActualUTC: asrunAt(17, 30, 0), Status: StatusStart, Type: "BLOCK",
			EventID: "blk-002", EventUUID: "u-2", BlockID: "blk-002"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := w2.Rows("wxrv", "2025-03-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "blk-001", rows[0].BlockID)
	assert.Equal(t, "blk-002", rows[1].BlockID)
	assert.Equal(t, asrunAt(17, 0, 0), rows[0].ActualUTC)
}

func TestAsRunFilesStayInBijection(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, dir)
	for i, uuid := range []string{"u-1", "u-2", "u-3", "u-4"} {
		_, err := w.Append("wxrv", "2025-03-01", []AsRunRow{
			{ActualUTC: asrunAt(17, i, 0), Status: StatusStart, Type: "BLOCK",
				EventID: "blk-001", EventUUID: uuid, BlockID: "blk-001"},
		})
		require.NoError(t, err)
	}

	text, err := os.ReadFile(filepath.Join(dir, "wxrv", "2025-03-01.asrun"))
	require.NoError(t, err)
	jsonl, err := os.ReadFile(filepath.Join(dir, "wxrv", "2025-03-01.asrun.jsonl"))
	require.NoError(t, err)

	bodyLines := strings.Split(strings.TrimRight(string(text), "\n"), "\n")[7:]
	jlines := strings.Split(strings.TrimRight(string(jsonl), "\n"), "\n")
	assert.Equal(t, len(jlines), len(bodyLines))
	assert.Len(t, jlines, 4)
}

func TestAsRunRejectsRowWithoutUUID(t *testing.T) {
	w := newTestWriter(t, t.TempDir())
	_, err := w.Append("wxrv", "2025-03-01", []AsRunRow{
		{ActualUTC: asrunAt(17, 0, 0), Status: StatusStart, Type: "BLOCK", EventID: "blk-001"},
	})
	assert.ErrorContains(t, err, "no event uuid")
}

func TestAsRunRejectsUnsafeIDs(t *testing.T) {
	w := newTestWriter(t, t.TempDir())
	_, err := w.Append("../wxrv", "2025-03-01", nil)
	assert.Error(t, err)
	_, err = w.Seen("wxrv", "2025/03/01", "u-1")
	assert.Error(t, err)
}

func TestAsRunBroadcastDateUsesDayStart(t *testing.T) {
	w := newTestWriter(t, t.TempDir())
	// 05:59 belongs to the previous broadcast day, 06:00 to the new one.
	assert.Equal(t, "2025-02-28", w.BroadcastDate(time.Date(2025, 3, 1, 5, 59, 0, 0, time.UTC)))
	assert.Equal(t, "2025-03-01", w.BroadcastDate(time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)))
}

func TestAsRunRefusesBadTimezone(t *testing.T) {
	_, err := NewAsRunWriter(t.TempDir(), "Mars/Olympus", 6)
	assert.Error(t, err)
}
