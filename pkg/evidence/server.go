// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package evidence receives the execution-evidence stream from AIR and
// reconciles it into the immutable as-run record. The server owns three
// pieces of durable or semi-durable state: the per-session ACK high-water
// mark, the per-day as-run files, and the in-RAM pending segment starts
// that pair starts with ends.
package evidence

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/retrovue/playout/pkg/evidence/airpb"
	"github.com/retrovue/playout/pkg/translog"
)

// Server implements airpb.EvidenceServiceServer. One stream serves one
// playout session; pending starts live on the server, not the stream, so
// a reconnect resumes pairing where the dropped stream left off.
type Server struct {
	acks     *AckStore
	asrun    *AsRunWriter
	segments *SegmentCache

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	helloFirst uint64
	helloLast  uint64
	pending    map[string]map[int]pendingStart // block id -> segment index
}

type pendingStart struct {
	uuid       string
	startUTCMS int64
}

// NewServer wires the stream handler to its stores. segments may be nil
// when no control plane primes the cache; rows then carry type UNKNOWN.
func NewServer(acks *AckStore, asrun *AsRunWriter, segments *SegmentCache) *Server {
	return &Server{
		acks:     acks,
		asrun:    asrun,
		segments: segments,
		sessions: make(map[string]*sessionState),
	}
}

// EvidenceStream runs one session's stream until the peer disconnects.
// The first message must be a valid hello; after that, each event is
// processed fully (write files, advance ack, send ack, in that order)
// before the next is read.
func (s *Server) EvidenceStream(stream airpb.EvidenceStream) error {
	var (
		sess      *sessionState
		channelID string
		sessionID string
	)
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if sess == nil {
			if msg.Hello == nil {
				return status.Error(codes.InvalidArgument, "evidence stream must open with a hello")
			}
			if err := validateHeader(msg); err != nil {
				return status.Error(codes.InvalidArgument, err.Error())
			}
			channelID, sessionID = msg.ChannelID, msg.PlayoutSessionID
			sess = s.session(channelID, sessionID)
		} else if err := validateHeader(msg); err != nil || msg.ChannelID != channelID || msg.PlayoutSessionID != sessionID {
			slog.Warn("Dropping evidence message with bad header",
				"channel", channelID, "session", sessionID, "seq", msg.Sequence, "err", err)
			continue
		}

		if msg.Hello != nil {
			ack, err := s.handleHello(sess, channelID, sessionID, msg)
			if err != nil {
				return err
			}
			if err := stream.Send(&airpb.Ack{AckedSequence: ack}); err != nil {
				return err
			}
			continue
		}

		if msg.PayloadKind() == "" {
			slog.Warn("Unknown evidence payload",
				"channel", channelID, "session", sessionID, "seq", msg.Sequence)
			continue
		}

		ack, err := s.acks.Get(channelID, sessionID)
		if err != nil {
			return err
		}
		if msg.Sequence <= ack {
			// Already committed. Replayed starts still rebuild the
			// pending map so ends that follow can pair after a restart.
			if msg.SegmentStart != nil {
				s.primePending(sess, msg)
			}
			if err := stream.Send(&airpb.Ack{AckedSequence: ack}); err != nil {
				return err
			}
			continue
		}

		if err := s.commitEvent(sess, channelID, msg); err != nil {
			return err
		}
		if err := s.acks.Advance(channelID, sessionID, msg.Sequence); err != nil {
			return err
		}
		if err := stream.Send(&airpb.Ack{AckedSequence: msg.Sequence}); err != nil {
			return err
		}
	}
}

// handleHello records the session's replay bounds and returns the durable
// high-water mark to ack.
func (s *Server) handleHello(sess *sessionState, channelID, sessionID string, msg *airpb.EvidenceFromAir) (uint64, error) {
	s.mu.Lock()
	sess.helloFirst = msg.Hello.FirstSequenceAvailable
	sess.helloLast = msg.Hello.LastSequenceEmitted
	s.mu.Unlock()
	ack, err := s.acks.Get(channelID, sessionID)
	if err != nil {
		return 0, err
	}
	slog.Info("Evidence session hello",
		"channel", channelID, "session", sessionID,
		"firstAvailable", msg.Hello.FirstSequenceAvailable,
		"lastEmitted", msg.Hello.LastSequenceEmitted, "durableAck", ack)
	return ack, nil
}

// commitEvent maps one new event onto as-run rows and writes them. Rows
// are routed to broadcast dates by their own actual times, so a replayed
// event lands in the same day file and dedups by uuid.
func (s *Server) commitEvent(sess *sessionState, channelID string, msg *airpb.EvidenceFromAir) error {
	byDay := make(map[string][]AsRunRow)
	add := func(r AsRunRow) {
		date := s.asrun.BroadcastDate(r.ActualUTC)
		byDay[date] = append(byDay[date], r)
	}

	switch {
	case msg.BlockStart != nil:
		m := msg.BlockStart
		add(AsRunRow{
			ActualUTC: time.UnixMilli(m.ActualStartUTCMS).UTC(),
			Status:    StatusStart,
			Type:      translog.RowBlock,
			EventID:   m.BlockID,
			Notes:     "(block open)",
			EventUUID: msg.EventUUID,
			BlockID:   m.BlockID,
		})

	case msg.SegmentStart != nil:
		s.primePending(sess, msg)
		return nil

	case msg.SegmentEnd != nil:
		m := msg.SegmentEnd
		idx := int(m.SegmentIndex)
		p, matched := s.takePending(sess, m.BlockID, idx)
		row := AsRunRow{
			Status:    StatusAired,
			Type:      s.segmentLabel(m.BlockID, idx),
			EventID:   fmt.Sprintf("%s-S%04d", m.BlockID, idx),
			Notes:     m.Note,
			EventUUID: msg.EventUUID,
			BlockID:   m.BlockID,
		}
		if m.Status != "" {
			row.Status = m.Status
		}
		if matched {
			row.ActualUTC = time.UnixMilli(p.startUTCMS).UTC()
			if d := m.ActualEndUTCMS - p.startUTCMS; d > 0 {
				row.DurationMS = d
			}
		} else {
			row.ActualUTC = time.UnixMilli(m.ActualEndUTCMS).UTC()
			row.Notes = "unmatched segment end"
			slog.Warn("Segment end without pending start",
				"channel", channelID, "block", m.BlockID, "index", idx, "seq", msg.Sequence)
		}
		add(row)

	case msg.BlockFence != nil:
		m := msg.BlockFence
		for _, tr := range s.flushPending(sess, m.BlockID, m.FenceUTCMS) {
			add(tr)
		}
		add(AsRunRow{
			ActualUTC: time.UnixMilli(m.FenceUTCMS).UTC(),
			Status:    StatusFence,
			Type:      translog.RowFence,
			EventID:   m.BlockID + "-FENCE",
			Notes: fmt.Sprintf("swap_tick=%d, fence_tick=%d, primed_success=%s, truncated_by_fence=%s, early_exhaustion=%s",
				m.SwapTick, m.FenceTick, yn(m.PrimedSuccess), yn(m.TruncatedByFence), yn(m.EarlyExhaustion)),
			EventUUID: msg.EventUUID,
			BlockID:   m.BlockID,
		})
		if s.segments != nil {
			s.segments.Clear(m.BlockID)
		}
	}

	for date, rows := range byDay {
		if _, err := s.asrun.Append(channelID, date, rows); err != nil {
			return err
		}
	}
	return nil
}

// flushPending drains a block's pending starts in index order, one
// TRUNCATED row each. The fence cut these segments short, so the row's
// duration runs from the segment's actual start to the fence.
func (s *Server) flushPending(sess *sessionState, blockID string, fenceUTCMS int64) []AsRunRow {
	s.mu.Lock()
	block := sess.pending[blockID]
	delete(sess.pending, blockID)
	s.mu.Unlock()
	if len(block) == 0 {
		return nil
	}
	idxs := make([]int, 0, len(block))
	for idx := range block {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	rows := make([]AsRunRow, 0, len(block))
	for _, idx := range idxs {
		p := block[idx]
		var dur int64
		if d := fenceUTCMS - p.startUTCMS; d > 0 {
			dur = d
		}
		rows = append(rows, AsRunRow{
			ActualUTC:  time.UnixMilli(p.startUTCMS).UTC(),
			DurationMS: dur,
			Status:     StatusTruncated,
			Type:       s.segmentLabel(blockID, idx),
			EventID:    fmt.Sprintf("%s-S%04d", blockID, idx),
			Notes:      "FENCE_TERMINATION",
			EventUUID:  p.uuid,
			BlockID:    blockID,
		})
	}
	return rows
}

func (s *Server) primePending(sess *sessionState, msg *airpb.EvidenceFromAir) {
	m := msg.SegmentStart
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := sess.pending[m.BlockID]
	if !ok {
		block = make(map[int]pendingStart)
		sess.pending[m.BlockID] = block
	}
	block[int(m.SegmentIndex)] = pendingStart{uuid: msg.EventUUID, startUTCMS: m.ActualStartUTCMS}
}

func (s *Server) takePending(sess *sessionState, blockID string, idx int) (pendingStart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := sess.pending[blockID]
	if !ok {
		return pendingStart{}, false
	}
	p, ok := block[idx]
	if ok {
		delete(block, idx)
	}
	return p, ok
}

func (s *Server) segmentLabel(blockID string, idx int) string {
	if s.segments != nil {
		if seg, ok := s.segments.Lookup(blockID, idx); ok {
			return seg.Type.Label()
		}
	}
	return "UNKNOWN"
}

func (s *Server) session(channelID, sessionID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := channelID + "/" + sessionID
	st, ok := s.sessions[key]
	if !ok {
		st = &sessionState{pending: make(map[string]map[int]pendingStart)}
		s.sessions[key] = st
	}
	return st
}

func validateHeader(m *airpb.EvidenceFromAir) error {
	if m.SchemaVersion != airpb.SchemaVersion {
		return fmt.Errorf("unsupported schema_version %d", m.SchemaVersion)
	}
	if err := checkPathIDs(m.ChannelID, m.PlayoutSessionID); err != nil {
		return err
	}
	return nil
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}
