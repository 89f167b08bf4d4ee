// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package execwindow holds the in-memory execution window: the sorted set
// of locked transmission entries the playout engine is fed from. Publishes
// inside the locked horizon are refused unless an operator override is
// recorded first.
package execwindow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/retrovue/playout/pkg/clock"
	"github.com/retrovue/playout/pkg/override"
	"github.com/retrovue/playout/pkg/translog"
)

// CodeLockedWindow is returned when a publish without operator override
// touches the locked window.
const CodeLockedWindow = "INV-HORIZON-LOCKED-IMMUTABLE-001-VIOLATED"

// Entry is one schedulable block: a locked transmission entry plus its
// owning channel, programming day, and publish generation.
type Entry struct {
	translog.Entry

	ChannelID     string `json:"channel_id"`
	BroadcastDate string `json:"programming_day_date"`
	Generation    int64  `json:"generation_id"`
}

// StartMS returns the entry start in UTC milliseconds.
func (e Entry) StartMS() int64 { return e.Start.UnixMilli() }

// EndMS returns the entry end in UTC milliseconds.
func (e Entry) EndMS() int64 { return e.End.UnixMilli() }

// PublishResult reports the outcome of a publish. On refusal OK is false
// and Code carries the violation; Err holds the cause when one exists.
type PublishResult struct {
	OK         bool
	Code       string
	Generation int64
	Err        error
}

// Store is the per-channel execution window. One mutex serializes every
// mutation, so concurrent publishes for a channel apply in a total order.
// Entries are treated as immutable once published; snapshots share their
// segment slices.
type Store struct {
	channelID    string
	lockedWindow time.Duration
	clk          clock.Clock
	records      override.Store

	mu      sync.Mutex
	entries []Entry
	maxGen  int64
}

// NewStore builds an empty window for one channel. lockedWindow is the
// span after now inside which entries are immutable without an override.
func NewStore(channelID string, lockedWindow time.Duration, clk clock.Clock, records override.Store) *Store {
	return &Store{
		channelID:    channelID,
		lockedWindow: lockedWindow,
		clk:          clock.OrSystem(clk),
		records:      records,
	}
}

// ChannelID returns the owning channel.
func (s *Store) ChannelID() string { return s.channelID }

// lockedEndMS is the first instant outside the locked window.
func (s *Store) lockedEndMS() int64 {
	return s.clk.Now().UnixMilli() + s.lockedWindow.Milliseconds()
}

// Snapshot copies the entries whose start falls in [startMS, endMS) and
// reports the highest generation among them, 0 when the range is empty.
func (s *Store) Snapshot(startMS, endMS int64) ([]Entry, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].StartMS() >= startMS })
	hi := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].StartMS() >= endMS })
	out := append([]Entry(nil), s.entries[lo:hi]...)
	var gen int64
	for _, e := range out {
		if e.Generation > gen {
			gen = e.Generation
		}
	}
	return out, gen
}

// EntryAt returns the entry whose half-open [start, end) contains tsMS.
// With lockedOnly set, an entry outside the locked window reports false.
func (s *Store) EntryAt(tsMS int64, lockedOnly bool) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].StartMS() > tsMS })
	if i == 0 {
		return Entry{}, false
	}
	e := s.entries[i-1]
	if tsMS < e.StartMS() || tsMS >= e.EndMS() {
		return Entry{}, false
	}
	if lockedOnly && !s.inLockedWindow(e) {
		return Entry{}, false
	}
	return e, true
}

// inLockedWindow reports whether e overlaps [now, now+lockedWindow). An
// entry straddling the window edge counts as locked; one starting exactly
// at the edge is flexible.
func (s *Store) inLockedWindow(e Entry) bool {
	now := s.clk.Now().UnixMilli()
	return e.EndMS() > now && e.StartMS() < s.lockedEndMS()
}

// AddEntries seeds the window during initial hydration. Entries keep the
// generations they were persisted with.
func (s *Store) AddEntries(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].StartMS() < s.entries[j].StartMS()
	})
	for _, e := range entries {
		if e.Generation > s.maxGen {
			s.maxGen = e.Generation
		}
	}
}

// NextGeneration reports the generation the next successful publish will
// commit under. It is a read-only peek; publishes allocate their own
// generation while holding the store lock, so two concurrent publishers
// can never commit under the same id.
func (s *Store) NextGeneration() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxGen + 1
}

// Seed stamps entries with a freshly allocated generation and adds them
// to an empty window. Allocation and insert share the lock, so a publish
// racing the seed still gets a later generation.
func (s *Store) Seed(entries []Entry) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.maxGen + 1
	for i := range entries {
		entries[i].Generation = gen
	}
	s.entries = append(s.entries, entries...)
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].StartMS() < s.entries[j].StartMS()
	})
	s.maxGen = gen
	return gen
}

// WindowEndMS returns the end of the last entry, 0 when empty. The horizon
// loop seeds its execution depth from this after hydration.
func (s *Store) WindowEndMS() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0
	}
	return s.entries[len(s.entries)-1].EndMS()
}

// PublishAtomicReplace swaps the entries fully inside [rangeStartMS,
// rangeEndMS) for newEntries under a generation allocated inside the
// store's critical section, strictly greater than every generation the
// window has seen. Without operatorOverride a range reaching into the
// locked window is refused and the window is left untouched. With
// operatorOverride the override record is persisted before any mutation;
// a record failure aborts the publish.
func (s *Store) PublishAtomicReplace(ctx context.Context, rangeStartMS, rangeEndMS int64,
	newEntries []Entry, reasonCode string, operatorOverride bool) PublishResult {

	s.mu.Lock()
	defer s.mu.Unlock()

	if !operatorOverride && rangeStartMS < s.lockedEndMS() {
		return PublishResult{
			OK:   false,
			Code: CodeLockedWindow,
			Err: fmt.Errorf("range start %d inside locked window ending %d",
				rangeStartMS, s.lockedEndMS()),
		}
	}

	if operatorOverride {
		if err := s.persistOverride(ctx, rangeStartMS, rangeEndMS, reasonCode, len(newEntries)); err != nil {
			return PublishResult{OK: false, Code: override.CodePersistFailed, Err: err}
		}
	}

	generation := s.maxGen + 1
	out := make([]Entry, 0, len(s.entries)+len(newEntries))
	for _, e := range s.entries {
		if e.StartMS() >= rangeStartMS && e.EndMS() <= rangeEndMS {
			continue
		}
		out = append(out, e)
	}
	for _, e := range newEntries {
		e.ChannelID = s.channelID
		e.Generation = generation
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartMS() < out[j].StartMS() })
	s.entries = out
	s.maxGen = generation
	return PublishResult{OK: true, Generation: generation}
}

func (s *Store) persistOverride(ctx context.Context, rangeStartMS, rangeEndMS int64, reasonCode string, entries int) error {
	if s.records == nil {
		return fmt.Errorf("no override record store configured")
	}
	rec := override.Record{
		Layer:        override.LayerExecutionWindowStore,
		TargetID:     fmt.Sprintf("%s/%d-%d", s.channelID, rangeStartMS, rangeEndMS),
		ReasonCode:   reasonCode,
		CreatedUTCMS: s.clk.Now().UnixMilli(),
		Summary:      fmt.Sprintf("replace execution range with %d entries", entries),
	}
	return s.records.Persist(ctx, rec)
}
