// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package hls turns the live MPEG-TS byte stream from AIR into a bounded
// in-memory HLS window: a rolling playlist plus the finished segments it
// references. Nothing here touches the filesystem; the whole lifecycle
// is RAM-resident and the memory bound is max_segments worth of TS data.
package hls

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mogiioin/hls-m3u8/m3u8"

	"github.com/retrovue/playout/pkg/clock"
)

const (
	pcrHz   = 90_000
	pcrWrap = uint64(1) << 33
)

var (
	// ErrNotStarted is returned by Feed before Start has been called.
	ErrNotStarted = errors.New("hls: segmenter not started")
	// ErrStopped is returned by Feed and Start after Stop.
	ErrStopped = errors.New("hls: segmenter stopped")
)

// Config bounds the segmenter. TargetDuration is the finalize threshold,
// MaxSegments the retained window. Clock defaults to the system clock.
type Config struct {
	TargetDuration time.Duration
	MaxSegments    int
	Clock          clock.Clock
}

// Segment is one finished TS segment. Data is immutable once finalized.
type Segment struct {
	Name          string
	Data          []byte
	DurationSec   float64
	MediaSequence uint64
}

// Segmenter splits the TS feed at key packets (payload-unit-start with
// the random-access indicator) once the in-progress buffer spans
// TargetDuration of PCR time. One mutex guards the buffer, the finished
// window, and the media-sequence counter.
type Segmenter struct {
	cfg Config
	clk clock.Clock

	mu      sync.Mutex
	started bool
	stopped bool
	isReady bool
	ready   chan struct{}
	stopCh  chan struct{}

	remainder []byte
	pmtPID    int
	pcrPID    int

	current   []byte
	firstPCR  uint64
	hasFirst  bool
	latestPCR uint64
	hasLatest bool

	finalized uint64
	window    []Segment
	playlist  *m3u8.MediaPlaylist
}

// New validates the config and builds an idle segmenter.
func New(cfg Config) (*Segmenter, error) {
	if cfg.TargetDuration <= 0 {
		return nil, fmt.Errorf("hls: target duration %v is not positive", cfg.TargetDuration)
	}
	if cfg.MaxSegments < 1 {
		return nil, fmt.Errorf("hls: max segments %d, need at least 1", cfg.MaxSegments)
	}
	pl, err := m3u8.NewMediaPlaylist(uint(cfg.MaxSegments), uint(cfg.MaxSegments))
	if err != nil {
		return nil, fmt.Errorf("hls: new playlist: %w", err)
	}
	pl.SetTargetDuration(uint(math.Ceil(cfg.TargetDuration.Seconds())))
	return &Segmenter{
		cfg:      cfg,
		clk:      clock.OrSystem(cfg.Clock),
		ready:    make(chan struct{}),
		stopCh:   make(chan struct{}),
		playlist: pl,
	}, nil
}

// Start arms the segmenter for Feed. Idempotent.
func (s *Segmenter) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.started = true
	return nil
}

// Stop aborts any WaitForPlaylist callers and refuses further Feed.
// Already-finished segments and the playlist stay readable.
func (s *Segmenter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
}

// Feed appends TS bytes. Partial packets are buffered across calls and
// the scanner resyncs on garbage. Safe for one writer against any number
// of readers.
func (s *Segmenter) Feed(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if !s.started {
		return ErrNotStarted
	}
	s.remainder = append(s.remainder, b...)
	for {
		i := bytes.IndexByte(s.remainder, syncByte)
		if i < 0 {
			s.remainder = s.remainder[:0]
			return nil
		}
		if i > 0 {
			s.remainder = s.remainder[i:]
		}
		if len(s.remainder) < packetSize {
			return nil
		}
		s.handlePacket(tsPacket(s.remainder[:packetSize]))
		s.remainder = s.remainder[packetSize:]
	}
}

// handlePacket advances PSI state, tracks PCR, and cuts a segment when a
// key packet arrives past the target duration. The key packet itself
// opens the next segment.
func (s *Segmenter) handlePacket(pkt tsPacket) {
	pid := pkt.pid()
	if pkt.payloadUnitStart() {
		switch {
		case pid == 0:
			if sec, ok := pkt.psiSection(); ok {
				if pmt, ok := patFirstProgramPMT(sec); ok {
					s.pmtPID = pmt
				}
			}
		case s.pmtPID != 0 && pid == s.pmtPID:
			if sec, ok := pkt.psiSection(); ok {
				if pcr, ok := pmtPCRPID(sec); ok {
					s.pcrPID = pcr
				}
			}
		}
	}

	if pcr, ok := pkt.pcr(); ok && (s.pcrPID == 0 || pid == s.pcrPID) {
		s.latestPCR, s.hasLatest = pcr, true
		if !s.hasFirst {
			s.firstPCR, s.hasFirst = pcr, true
		}
	}

	if pkt.payloadUnitStart() && pkt.randomAccess() && len(s.current) > 0 {
		if dur, ok := s.spanSeconds(); ok && dur >= s.cfg.TargetDuration.Seconds() {
			s.finalize(dur)
		}
	}
	s.current = append(s.current, pkt...)
}

// spanSeconds is the PCR span of the in-progress buffer, wrap-aware.
func (s *Segmenter) spanSeconds() (float64, bool) {
	if !s.hasFirst || !s.hasLatest {
		return 0, false
	}
	d := s.latestPCR - s.firstPCR
	if s.latestPCR < s.firstPCR {
		d = s.latestPCR + pcrWrap - s.firstPCR
	}
	return float64(d) / pcrHz, true
}

// finalize publishes the in-progress buffer as the next numbered segment
// and slides the window. Callers hold s.mu.
func (s *Segmenter) finalize(durSec float64) {
	name := fmt.Sprintf("seg_%05d.ts", s.finalized)
	s.window = append(s.window, Segment{
		Name:          name,
		Data:          s.current,
		DurationSec:   durSec,
		MediaSequence: s.finalized,
	})
	if len(s.window) > s.cfg.MaxSegments {
		// Zero the slot so the evicted segment's bytes can be collected.
		s.window[0] = Segment{}
		s.window = s.window[1:]
	}
	s.playlist.Slide(name, durSec, "")
	s.finalized++

	s.current = nil
	s.firstPCR, s.hasFirst = s.latestPCR, s.hasLatest

	if !s.isReady {
		s.isReady = true
		close(s.ready)
	}
}

// HasPlaylist reports whether at least one segment has been finalized.
func (s *Segmenter) HasPlaylist() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isReady
}

// WaitForPlaylist blocks until the playlist exists, the timeout passes,
// or Stop is called. A zero timeout never blocks.
func (s *Segmenter) WaitForPlaylist(timeout time.Duration) bool {
	s.mu.Lock()
	ready, readyCh, stopCh := s.isReady, s.ready, s.stopCh
	s.mu.Unlock()
	if ready {
		return true
	}
	if timeout == 0 {
		return false
	}
	t := s.clk.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-readyCh:
		return true
	case <-stopCh:
		return false
	case <-t.C():
		return false
	}
}

// Playlist renders the current media playlist. ok is false until the
// first segment finalizes.
func (s *Segmenter) Playlist() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isReady {
		return "", false
	}
	return s.playlist.String(), true
}

// SegmentData returns the bytes of a retained segment by playlist name,
// or ok=false once it has been evicted.
func (s *Segmenter) SegmentData(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.window {
		if s.window[i].Name == name {
			return s.window[i].Data, true
		}
	}
	return nil, false
}

// Segments returns a snapshot of the retained window metadata, oldest
// first. Data slices are shared; treat them as read-only.
func (s *Segmenter) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Segment(nil), s.window...)
}
