// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package translog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata" // channel-local TIME columns need zone data on bare runners

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrovue/playout/pkg/clock"
)

var generated = time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC)

// lockedSample is a two-entry locked log with mixed segment types. The
// first entry mirrors a series block: content, two commercials, filler.
func lockedSample(t *testing.T) Log {
	t.Helper()
	lg := testLog(2)
	lg.Timezone = "America/New_York"
	lg.Entries[0].Segments = []Segment{
		{Index: 0, Type: SegmentContent, AssetURI: "/media/shows/episode01.mp4", DurationMS: 1_350_000},
		{Index: 1, Type: SegmentCommercial, AssetURI: "/media/spots/cola.mp4", DurationMS: 150_000},
		{Index: 2, Type: SegmentCommercial, AssetURI: "/media/spots/soap.mp4", DurationMS: 150_000},
		{Index: 3, Type: SegmentFiller, AssetURI: "/media/filler/bumper.mp4", DurationMS: 150_000},
	}
	lg.Entries[1].Segments = []Segment{
		{Index: 0, Type: SegmentContent, AssetURI: "/media/shows/episode02.mp4", DurationMS: 1_500_000},
		{Index: 1, Type: SegmentPad, DurationMS: 300_000},
	}
	locked, err := Lock(lg, clock.NewFake(generated))
	require.NoError(t, err)
	return locked
}

func TestWriteArtifactPair(t *testing.T) {
	base := t.TempDir()
	lg := lockedSample(t)

	paths, err := ArtifactWriter{BaseDir: base, Version: "0.3.0"}.Write(lg, generated)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "wxrv", "2025-03-01.tlog"), paths.Tlog)
	assert.Equal(t, filepath.Join(base, "wxrv", "2025-03-01.tlog.jsonl"), paths.JSONL)

	require.NoError(t, VerifyBijection(paths.Tlog, paths.JSONL))
}

func TestWriteRefusesUnlocked(t *testing.T) {
	lg := testLog(1)
	_, err := ArtifactWriter{BaseDir: t.TempDir()}.Write(lg, generated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unlocked")
}

func TestWriteRefusesOverwrite(t *testing.T) {
	base := t.TempDir()
	lg := lockedSample(t)
	w := ArtifactWriter{BaseDir: base, Version: "0.3.0"}

	_, err := w.Write(lg, generated)
	require.NoError(t, err)

	_, err = w.Write(lg, generated)
	var exists *ArtifactExistsError
	require.ErrorAs(t, err, &exists)
	assert.Contains(t, exists.Error(), "TL-ART-001")
}

func TestWriteDeterministic(t *testing.T) {
	lg := lockedSample(t)
	w1 := ArtifactWriter{BaseDir: t.TempDir(), Version: "0.3.0"}
	w2 := ArtifactWriter{BaseDir: t.TempDir(), Version: "0.3.0"}

	p1, err := w1.Write(lg, generated)
	require.NoError(t, err)
	p2, err := w2.Write(lg, generated)
	require.NoError(t, err)

	for _, pair := range [][2]string{{p1.Tlog, p2.Tlog}, {p1.JSONL, p2.JSONL}} {
		a, err := os.ReadFile(pair[0])
		require.NoError(t, err)
		b, err := os.ReadFile(pair[1])
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestEncodeTlogLayout(t *testing.T) {
	lg := lockedSample(t)
	out, err := EncodeTlog(lg, generated, "0.3.0")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")

	assert.Equal(t, "# RetroVue transmission log", lines[0])
	assert.Contains(t, lines, "# generated_utc: 2025-03-01T05:00:00.000Z")
	assert.Contains(t, lines, "# transmission_log_id: tl-0001")

	// Entry 0 starts 14:00 UTC which is 09:00 in America/New_York.
	var blockRow string
	for _, l := range lines {
		if strings.Contains(l, "BLOCK") && strings.Contains(l, "blk-000 ") {
			blockRow = l
			break
		}
	}
	require.NotEmpty(t, blockRow)
	assert.True(t, strings.HasPrefix(blockRow, "09:00:00 00:30:00 BLOCK    blk-000"), blockRow)
	assert.Contains(t, blockRow, "UTC_START=2025-03-01T14:00:00.000Z")
	assert.Contains(t, blockRow, "UTC_END=2025-03-01T14:30:00.000Z")

	// Segment and fence rows carry the fixed event id scheme.
	joined := string(out)
	assert.Contains(t, joined, "blk-000-S0000")
	assert.Contains(t, joined, "episode01.mp4")
	assert.Contains(t, joined, "blk-000-FENCE")
	// Pad segments have no asset.
	var padRow string
	for _, l := range lines {
		if strings.Contains(l, "PAD") {
			padRow = l
		}
	}
	require.NotEmpty(t, padRow)
	assert.True(t, strings.HasSuffix(padRow, " -"), padRow)
}

func TestRowsEventIDs(t *testing.T) {
	lg := lockedSample(t)
	rows := Rows(lg)
	// 2 entries: (1 block + 4 segments + 1 fence) + (1 block + 2 segments + 1 fence)
	require.Len(t, rows, 10)
	assert.Equal(t, "blk-000", rows[0].EventID)
	assert.Equal(t, RowBlock, rows[0].Type)
	assert.Equal(t, "blk-000-S0001", rows[2].EventID)
	assert.Equal(t, "AD", rows[2].Type)
	assert.Equal(t, "blk-000-FENCE", rows[5].EventID)
	assert.Equal(t, int64(0), rows[5].DurationMS)

	// Segment rows advance through the entry by duration.
	assert.Equal(t, lg.Entries[0].Start.Add(1_350_000*time.Millisecond), rows[2].Start)
}

func TestReadJSONLRoundTrip(t *testing.T) {
	base := t.TempDir()
	lg := lockedSample(t)
	paths, err := ArtifactWriter{BaseDir: base, Version: "0.3.0"}.Write(lg, generated)
	require.NoError(t, err)

	rows, err := ReadJSONL(paths.JSONL)
	require.NoError(t, err)
	want := Rows(lg)
	require.Len(t, rows, len(want))
	for i := range rows {
		assert.Equal(t, want[i].EventID, rows[i].EventID)
		assert.Equal(t, want[i].BlockID, rows[i].BlockID)
		assert.Equal(t, want[i].Type, rows[i].Type)
		assert.Equal(t, want[i].DurationMS, rows[i].DurationMS)
		assert.True(t, want[i].Start.Equal(rows[i].Start))
		assert.Equal(t, want[i].AssetURI, rows[i].AssetURI)
	}
}

func TestReadJSONLRejectsZoneOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tlog.jsonl")
	line := `{"event_id":"b","block_id":"b","scheduled_start_utc":"2025-03-01T15:00:00.000+01:00","scheduled_duration_ms":1000,"type":"BLOCK","asset_uri":""}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(line), 0o644))
	_, err := ReadJSONL(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_UTC")
}

func TestVerifyBijectionDetectsDrift(t *testing.T) {
	base := t.TempDir()
	lg := lockedSample(t)
	paths, err := ArtifactWriter{BaseDir: base, Version: "0.3.0"}.Write(lg, generated)
	require.NoError(t, err)

	// Drop the last jsonl line; the sets no longer match.
	data, err := os.ReadFile(paths.JSONL)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	truncated := strings.Join(lines[:len(lines)-1], "\n") + "\n"
	require.NoError(t, os.WriteFile(paths.JSONL, []byte(truncated), 0o644))

	err = VerifyBijection(paths.Tlog, paths.JSONL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing from .jsonl")
}
