// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/retrovue/playout/internal"
	"github.com/retrovue/playout/pkg/clock"
	"github.com/retrovue/playout/pkg/evidence"
	"github.com/retrovue/playout/pkg/execwindow"
	"github.com/retrovue/playout/pkg/hls"
	"github.com/retrovue/playout/pkg/horizon"
	"github.com/retrovue/playout/pkg/logging"
	"github.com/retrovue/playout/pkg/override"
	"github.com/retrovue/playout/pkg/schedule"
	"github.com/retrovue/playout/pkg/store"
	"github.com/retrovue/playout/pkg/translog"
)

// Channel bundles the per-channel runtime: the execution window the
// playout engine is fed from, the horizon loop keeping it ahead of the
// clock, the HLS preview segmenter, and the control link to AIR.
type Channel struct {
	Cfg       ChannelConfig
	Window    *execwindow.Store
	Horizon   *horizon.Manager
	Segmenter *hls.Segmenter

	clk      clock.Clock
	air      *airLink
	segments *evidence.SegmentCache
	sinkPath string
}

// Core owns every shared store and the per-channel runtimes. Everything
// here is built once at startup; the suture tree in services.go runs the
// pieces that need goroutines.
type Core struct {
	Cfg   *ServerConfig
	Clock clock.Clock

	Store     *store.Store
	Records   override.Store
	Library   *schedule.StaticLibrary
	Acks      *evidence.AckStore
	AsRun     *evidence.AsRunWriter
	Segments  *evidence.SegmentCache
	Evidence  *evidence.Server
	Retention *store.Retention

	channels map[string]*Channel
	order    []string
	log      *slog.Logger

	badger *override.BadgerStore
}

// NewCore opens the stores under cfg.DataDir and builds the per-channel
// runtimes, hydrating each execution window from the transmission rows
// still ahead of the clock.
func NewCore(ctx context.Context, cfg *ServerConfig, clk clock.Clock, logger *slog.Logger) (*Core, error) {
	clk = clock.OrSystem(clk)
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{cfg.DataDir, cfg.ArtifactDir, cfg.AsRunDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	badger, err := override.OpenBadger(filepath.Join(cfg.DataDir, "overrides"))
	if err != nil {
		return nil, fmt.Errorf("open override store: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "planning.db"), store.DefaultConfig(), clk, badger)
	if err != nil {
		_ = badger.Close()
		return nil, fmt.Errorf("open planning store: %w", err)
	}

	c := &Core{
		Cfg:      cfg,
		Clock:    clk,
		Store:    st,
		Records:  badger,
		badger:   badger,
		channels: make(map[string]*Channel, len(cfg.Channels)),
		log:      logger,
	}

	c.Library = schedule.NewStaticLibrary()
	if _, err := os.Stat(cfg.LibraryRoot); err == nil {
		if err := c.Library.LoadDir(cfg.LibraryRoot); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("load library: %w", err)
		}
	} else {
		logger.Warn("library root missing, starting with empty library", "dir", cfg.LibraryRoot)
	}

	tz, dayStart := "UTC", 0
	if len(cfg.Channels) > 0 {
		tz, dayStart = tzOrUTC(cfg.Channels[0].Timezone), cfg.Channels[0].DayStartHour
	}
	c.Acks = evidence.NewAckStore(filepath.Join(cfg.DataDir, "acks"))
	c.AsRun, err = evidence.NewAsRunWriter(cfg.AsRunDir, tz, dayStart)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("as-run writer: %w", err)
	}
	c.Segments = evidence.NewSegmentCache()
	c.Evidence = evidence.NewServer(c.Acks, c.AsRun, c.Segments)

	loc, err := time.LoadLocation(tz)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Retention = store.NewRetention(st, clk, store.RetentionPolicy{
		Tier2Retention: time.Duration(cfg.Tier2RetentionDays) * 24 * time.Hour,
		Location:       loc,
		DayStartHour:   dayStart,
	})

	for _, chCfg := range cfg.Channels {
		ch, err := c.buildChannel(ctx, chCfg)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("channel %s: %w", chCfg.ID, err)
		}
		c.channels[chCfg.ID] = ch
		c.order = append(c.order, chCfg.ID)
	}
	return c, nil
}

func (c *Core) buildChannel(ctx context.Context, chCfg ChannelConfig) (*Channel, error) {
	window := execwindow.NewStore(chCfg.ID, chCfg.LockedWindow(), c.Clock, c.Records)
	if err := c.hydrate(ctx, chCfg.ID, window); err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}

	dirs := FileDirectives{Root: c.Cfg.DirectiveRoot}
	pipe := schedule.Pipeline{
		Library: c.Library,
		Filler:  schedule.Filler{URI: chCfg.FillerURI, DurationMS: chCfg.FillerDurationMS},
	}
	writer := translog.ArtifactWriter{BaseDir: c.Cfg.ArtifactDir, Version: internal.GetVersion()}
	planner, err := horizon.NewStorePlanner(chCfg.ID, tzOrUTC(chCfg.Timezone), chCfg.DayStartHour,
		dirs, c.Store, pipe, writer, c.Clock)
	if err != nil {
		return nil, err
	}
	epg := &horizon.StoreEPG{
		ChannelID:  chCfg.ID,
		Directives: dirs,
		Library:    c.Library,
		Store:      c.Store,
	}
	mgr, err := horizon.NewManager(horizon.Config{
		ChannelID:          chCfg.ID,
		Timezone:           tzOrUTC(chCfg.Timezone),
		DayStartHour:       chCfg.DayStartHour,
		MinEPGDays:         chCfg.MinEPGDays,
		MinExecutionHours:  chCfg.MinExecutionHours,
		EvaluationInterval: time.Duration(chCfg.EvaluationIntervalS) * time.Second,
	}, c.Clock, epg, planner, window, logging.WithChannel(c.log, chCfg.ID))
	if err != nil {
		return nil, err
	}

	seg, err := hls.New(hls.Config{
		TargetDuration: time.Duration(c.Cfg.HLSTargetDurationS) * time.Second,
		MaxSegments:    c.Cfg.HLSMaxSegments,
		Clock:          c.Clock,
	})
	if err != nil {
		return nil, err
	}

	return &Channel{
		Cfg:       chCfg,
		Window:    window,
		Horizon:   mgr,
		Segmenter: seg,
		clk:       c.Clock,
		air:       newAirLink(chCfg.AirAddr),
		segments:  c.Segments,
		sinkPath:  filepath.Join(c.Cfg.DataDir, "air", chCfg.ID+".sock"),
	}, nil
}

// hydrate seeds a window with the persisted transmission entries still
// ahead of the clock. Entries keep the generations they were published
// under, so the next publish continues the channel's generation sequence.
func (c *Core) hydrate(ctx context.Context, channelID string, window *execwindow.Store) error {
	stored, err := c.Store.LoadTransmissionWindow(ctx, channelID, c.Clock.Now().UnixMilli())
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}
	entries := make([]execwindow.Entry, 0, len(stored))
	for _, se := range stored {
		entries = append(entries, execwindow.Entry{
			Entry:         se.Entry,
			ChannelID:     se.ChannelID,
			BroadcastDate: se.BroadcastDate,
			Generation:    se.Generation,
		})
	}
	window.AddEntries(entries)
	c.log.Info("execution window hydrated", "channel", channelID, "entries", len(entries))
	return nil
}

// Channel returns the runtime for one channel id.
func (c *Core) Channel(id string) (*Channel, bool) {
	ch, ok := c.channels[id]
	return ch, ok
}

// ChannelIDs lists channels in config order.
func (c *Core) ChannelIDs() []string {
	return append([]string(nil), c.order...)
}

// Close releases the stores and stops every segmenter. Safe to call on a
// partially built core.
func (c *Core) Close() error {
	var errs []error
	for _, ch := range c.channels {
		if ch.Segmenter != nil {
			ch.Segmenter.Stop()
		}
		if ch.air != nil {
			errs = append(errs, ch.air.Close())
		}
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.badger != nil {
		errs = append(errs, c.badger.Close())
	}
	return errors.Join(errs...)
}
