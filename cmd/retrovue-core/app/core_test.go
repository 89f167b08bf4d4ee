// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrovue/playout/pkg/clock"
	"github.com/retrovue/playout/pkg/logging"
	"github.com/retrovue/playout/pkg/schedule"
)

// Noon on a Saturday; the test channel's programming day started at 06:00.
var coreT0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func writeSidecars(t *testing.T, dir string) {
	t.Helper()
	for i := 1; i <= 2; i++ {
		sc := map[string]any{
			"asset_id":    fmt.Sprintf("ep-%d", i),
			"uri":         fmt.Sprintf("file:///series/ep-%d.mp4", i),
			"title":       fmt.Sprintf("Cartoon %d", i),
			"duration_ms": 22 * 60 * 1000,
			"program_id":  "cartoons",
			"episode":     i,
		}
		data, err := json.Marshal(sc)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("ep-%d.json", i)), data, 0o644))
	}
}

func writeDirectives(t *testing.T, root, channelID string, dates ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, channelID), 0o755))
	for _, date := range dates {
		start, err := schedule.DayStartUTC(date, time.UTC, 6)
		require.NoError(t, err)
		dir := schedule.DayDirective{
			ChannelID:     channelID,
			BroadcastDate: date,
			GridMinutes:   30,
			DayStartHour:  6,
			Timezone:      "UTC",
			Zones: []schedule.Zone{{
				Name:  "daytime",
				Start: start,
				End:   start.Add(12 * time.Hour),
				Directives: []schedule.ZoneDirective{
					schedule.PlayProgram{ProgramID: "cartoons", PlayMode: schedule.PlaySequential},
				},
			}},
		}
		data, err := json.Marshal(dir)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(
			filepath.Join(root, channelID, date+".json"), data, 0o644))
	}
}

func testConfig(t *testing.T) *ServerConfig {
	t.Helper()
	base := t.TempDir()
	cfg := DefaultConfig
	cfg.LogFormat = logging.LogDiscard
	cfg.DataDir = filepath.Join(base, "data")
	cfg.ArtifactDir = filepath.Join(base, "artifacts")
	cfg.AsRunDir = filepath.Join(base, "asrun")
	cfg.DirectiveRoot = filepath.Join(base, "directives")
	cfg.LibraryRoot = filepath.Join(base, "library")
	cfg.Channels = []ChannelConfig{{
		ID:               "wxrv",
		Timezone:         "UTC",
		DayStartHour:     6,
		LockedWindowMin:  15,
		FillerURI:        "file:///ads/station-id.mp4",
		FillerDurationMS: 30_000,
	}}
	require.NoError(t, os.MkdirAll(cfg.LibraryRoot, 0o755))
	writeSidecars(t, cfg.LibraryRoot)
	writeDirectives(t, cfg.DirectiveRoot, "wxrv",
		"2025-03-01", "2025-03-02", "2025-03-03", "2025-03-04")
	return &cfg
}

func newTestCore(t *testing.T, cfg *ServerConfig) (*Core, *clock.Fake) {
	t.Helper()
	require.NoError(t, logging.InitSlog("info", logging.LogDiscard))
	clk := clock.NewFake(coreT0)
	core, err := NewCore(context.Background(), cfg, clk, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, core.Close()) })
	return core, clk
}

func TestCoreEvaluatesHorizonFromDisk(t *testing.T) {
	cfg := testConfig(t)
	core, _ := newTestCore(t, cfg)

	ch, ok := core.Channel("wxrv")
	require.True(t, ok)

	ch.Horizon.EvaluateOnce(context.Background())
	st := ch.Horizon.Status()
	assert.Equal(t, "2025-03-03", st.EPGFarthestDate)
	assert.Equal(t, time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC).UnixMilli(), st.ExecutionWindowEndMS)
	assert.True(t, st.NextBlockCompliant)

	_, found := ch.Window.EntryAt(coreT0.UnixMilli(), false)
	assert.True(t, found, "an entry covers now after the first tick")

	// The locked artifacts landed under the artifact dir.
	_, err := os.Stat(filepath.Join(cfg.ArtifactDir, "wxrv", "2025-03-01.tlog"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.ArtifactDir, "wxrv", "2025-03-01.tlog.jsonl"))
	assert.NoError(t, err)
}

// A restarted core rebuilds its execution window from the transmission
// rows, without replanning against the immutable artifacts.
func TestCoreHydratesWindowOnRestart(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, logging.InitSlog("info", logging.LogDiscard))

	core, err := NewCore(context.Background(), cfg, clock.NewFake(coreT0), nil)
	require.NoError(t, err)
	ch, _ := core.Channel("wxrv")
	ch.Horizon.EvaluateOnce(context.Background())
	endMS := ch.Window.WindowEndMS()
	require.Greater(t, endMS, int64(0))
	require.NoError(t, core.Close())

	clk := clock.NewFake(coreT0.Add(time.Minute))
	core2, err := NewCore(context.Background(), cfg, clk, nil)
	require.NoError(t, err)
	defer func() {
		if core2 != nil {
			_ = core2.Close()
		}
	}()
	ch2, _ := core2.Channel("wxrv")
	assert.Equal(t, endMS, ch2.Window.WindowEndMS())
	_, found := ch2.Window.EntryAt(clk.Now().UnixMilli(), false)
	assert.True(t, found)

	err = core2.Close()
	core2 = nil
	require.NoError(t, err)
}

func TestCoreStartsWithEmptyLibraryRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.LibraryRoot = filepath.Join(t.TempDir(), "missing")
	core, _ := newTestCore(t, cfg)

	ch, _ := core.Channel("wxrv")
	ch.Horizon.EvaluateOnce(context.Background())
	st := ch.Horizon.Status()
	assert.False(t, st.NextBlockCompliant, "no assets means nothing to plan")
	require.NotEmpty(t, st.Attempts)
	assert.False(t, st.Attempts[0].OK)
}
