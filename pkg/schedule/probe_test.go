// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestMP4(t *testing.T, dir, name string, timescale uint32, duration uint64) string {
	t.Helper()
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "und")
	init.Moov.Mvhd.Timescale = timescale
	init.Moov.Mvhd.Duration = duration
	var buf bytes.Buffer
	require.NoError(t, init.Encode(&buf))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestProbeDurationMS(t *testing.T) {
	dir := t.TempDir()
	path := writeTestMP4(t, dir, "episode.mp4", 1000, 1_320_000)
	got, err := ProbeDurationMS(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1_320_000), got)
}

func TestProbeDurationScales(t *testing.T) {
	dir := t.TempDir()
	path := writeTestMP4(t, dir, "movie.mp4", 90000, 90000*6000)
	got, err := ProbeDurationMS(path)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000_000), got)
}

func TestProbeDurationBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-mp4.mp4")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))
	_, err := ProbeDurationMS(path)
	require.Error(t, err)
}

func TestLoadDirRegistersSidecars(t *testing.T) {
	dir := t.TempDir()
	writeTestMP4(t, dir, "ep1.mp4", 1000, 1_320_000)

	sidecars := map[string]string{
		"ep1.json": `{
			"asset_id": "sitcom-e1", "uri": "ep1.mp4", "title": "Pilot",
			"program_id": "sitcom", "episode": 1
		}`,
		"spot.json": `{
			"asset_id": "spot-99", "uri": "file:///ads/spot-99.mp4",
			"duration_ms": 30000, "tags": {"kind": "ad"}, "pools": ["ads"]
		}`,
	}
	for name, body := range sidecars {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	lib := NewStaticLibrary()
	require.NoError(t, lib.LoadDir(dir))

	ep, err := lib.Asset(context.Background(), "sitcom-e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1_320_000), ep.DurationMS, "duration probed from the mp4")

	eps, err := lib.ProgramEpisodes(context.Background(), "sitcom")
	require.NoError(t, err)
	require.Len(t, eps, 1)

	pool, err := lib.ResolvePool(context.Background(), PoolSelector{Name: "ads"})
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "spot-99", pool[0].AssetID)
}
