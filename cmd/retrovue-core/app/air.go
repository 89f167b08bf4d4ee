// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/retrovue/playout/pkg/evidence"
	"github.com/retrovue/playout/pkg/evidence/airpb"
	"github.com/retrovue/playout/pkg/scte35"
)

// airLink is the lazily dialed control connection to one channel's AIR
// process. The connection is established on first use and reused; gRPC
// handles reconnects underneath.
type airLink struct {
	addr string

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client *airpb.PlayoutControlClient
}

func newAirLink(addr string) *airLink {
	return &airLink{addr: addr}
}

func (l *airLink) playout() (*airpb.PlayoutControlClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.addr == "" {
		return nil, fmt.Errorf("no AIR address configured")
	}
	if l.client == nil {
		conn, err := grpc.NewClient(l.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dial AIR %s: %w", l.addr, err)
		}
		l.conn = conn
		l.client = airpb.NewPlayoutControlClient(conn)
	}
	return l.client, nil
}

func (l *airLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn, l.client = nil, nil
	return err
}

// programFormat is the JSON document handed to AIR with StartChannel. It
// tells the engine how to shape its TS output and where the ad-break
// splice points of the starting block sit.
type programFormat struct {
	ChannelID          string          `json:"channel_id"`
	HLSTargetDurationS int             `json:"hls_target_duration_s"`
	Splices            []scte35.Splice `json:"scte35_splices,omitempty"`
}

// spliceEventBase spaces per-block event id ranges far enough apart that
// ids stay unique across a broadcast day.
const spliceEventBase = 1000

// Preview assets in the retro library are mastered at NTSC rate.
const (
	previewFPSNum = 30000
	previewFPSDen = 1001
)

func msToFrames(ms int64) int64 {
	return ms * previewFPSNum / (previewFPSDen * 1000)
}

// StartAir joins the channel's AIR process into the block covering now:
// the elapsed part of the block is trimmed off, the remainder is
// prepopulated into the segment cache so evidence rows type correctly,
// and AIR is walked through start, preview load, sink attach and the
// switch to live. The returned plan handle is the block id.
func (c *Channel) StartAir(ctx context.Context, hlsTargetDurationS int) (string, error) {
	client, err := c.air.playout()
	if err != nil {
		return "", err
	}
	nowMS := c.clk.Now().UnixMilli()
	entry, ok := c.Window.EntryAt(nowMS, false)
	if !ok {
		return "", fmt.Errorf("no execution entry covers now for channel %s", c.Cfg.ID)
	}

	joined := evidence.PostJIP(entry.Segments, nowMS-entry.Start.UnixMilli())
	if len(joined) == 0 {
		return "", fmt.Errorf("block %s has no airtime left", entry.BlockID)
	}
	c.segments.Prepopulate(entry.BlockID, joined)

	pf := programFormat{
		ChannelID:          c.Cfg.ID,
		HLSTargetDurationS: hlsTargetDurationS,
		Splices:            scte35.EntrySplices(entry.Entry, uint32(spliceEventBase*(entry.BlockIndex+1))),
	}
	buf, err := json.Marshal(pf)
	if err != nil {
		return "", err
	}
	reply, err := client.StartChannel(ctx, &airpb.StartChannelRequest{
		ChannelID:         c.Cfg.ID,
		PlanHandle:        entry.BlockID,
		ProgramFormatJSON: string(buf),
	})
	if err = commandErr("start", reply, err); err != nil {
		return "", err
	}

	first := joined[0]
	reply, err = client.LoadPreview(ctx, &airpb.LoadPreviewRequest{
		ChannelID:  c.Cfg.ID,
		AssetPath:  first.AssetURI,
		StartFrame: msToFrames(first.AssetStartOffsetMS),
		FrameCount: msToFrames(first.DurationMS),
		FPSNum:     previewFPSNum,
		FPSDen:     previewFPSDen,
	})
	if err = commandErr("preview load", reply, err); err != nil {
		return "", err
	}

	reply, err = client.AttachStream(ctx, &airpb.AttachStreamRequest{
		ChannelID:       c.Cfg.ID,
		Transport:       airpb.TransportUnixDomainSocket,
		Endpoint:        c.sinkPath,
		ReplaceExisting: true,
	})
	if err = commandErr("sink attach", reply, err); err != nil {
		return "", err
	}

	reply, err = client.SwitchToLive(ctx, &airpb.ChannelRequest{ChannelID: c.Cfg.ID})
	if err = commandErr("switch to live", reply, err); err != nil {
		return "", err
	}
	return entry.BlockID, nil
}

func commandErr(step string, reply *airpb.CommandReply, err error) error {
	if err != nil {
		return err
	}
	if !reply.OK {
		return fmt.Errorf("AIR refused %s: %s", step, reply.Detail)
	}
	return nil
}

// StopAir stops playout on the channel's AIR process.
func (c *Channel) StopAir(ctx context.Context) error {
	client, err := c.air.playout()
	if err != nil {
		return err
	}
	reply, err := client.StopChannel(ctx, &airpb.ChannelRequest{ChannelID: c.Cfg.ID})
	return commandErr("stop", reply, err)
}

// AirVersion asks the channel's AIR process for its version string.
func (c *Channel) AirVersion(ctx context.Context) (string, error) {
	client, err := c.air.playout()
	if err != nil {
		return "", err
	}
	reply, err := client.GetVersion(ctx, &airpb.GetVersionRequest{})
	if err != nil {
		return "", err
	}
	return reply.Version, nil
}
