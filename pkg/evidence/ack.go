// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AckStore persists the durable high-water mark of accepted evidence
// sequences, one file per (channel, playout session). Marks only move
// forward; a crash never observes a half-written file because every
// update is temp-file + fsync + rename.
type AckStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]uint64
}

type ackRecord struct {
	AckedSequence uint64 `json:"acked_sequence"`
}

// NewAckStore roots the store at dir; files appear lazily per session.
func NewAckStore(dir string) *AckStore {
	return &AckStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
		cache: make(map[string]uint64),
	}
}

// Get returns the durable mark for the session, 0 when none exists yet.
func (s *AckStore) Get(channelID, sessionID string) (uint64, error) {
	key, err := s.key(channelID, sessionID)
	if err != nil {
		return 0, err
	}
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	return s.loadLocked(key, channelID, sessionID)
}

// Advance raises the mark to seq and makes it durable before returning.
// A seq at or below the current mark is a no-op.
func (s *AckStore) Advance(channelID, sessionID string, seq uint64) error {
	key, err := s.key(channelID, sessionID)
	if err != nil {
		return err
	}
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	cur, err := s.loadLocked(key, channelID, sessionID)
	if err != nil {
		return err
	}
	if seq <= cur {
		return nil
	}

	path := s.path(channelID, sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(ackRecord{AckedSequence: seq})
	if err != nil {
		return err
	}
	if err := writeAtomic(path, append(data, '\n')); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[key] = seq
	s.mu.Unlock()
	return nil
}

// loadLocked reads the mark, serving from cache after the first disk hit.
// Callers hold the per-key lock.
func (s *AckStore) loadLocked(key, channelID, sessionID string) (uint64, error) {
	s.mu.Lock()
	cur, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return cur, nil
	}

	data, err := os.ReadFile(s.path(channelID, sessionID))
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.cache[key] = 0
		s.mu.Unlock()
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var rec ackRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, fmt.Errorf("corrupt ack file for %s: %w", key, err)
	}
	s.mu.Lock()
	s.cache[key] = rec.AckedSequence
	s.mu.Unlock()
	return rec.AckedSequence, nil
}

func (s *AckStore) key(channelID, sessionID string) (string, error) {
	if err := checkPathIDs(channelID, sessionID); err != nil {
		return "", fmt.Errorf("ack store: %w", err)
	}
	return channelID + "/" + sessionID, nil
}

func (s *AckStore) path(channelID, sessionID string) string {
	return filepath.Join(s.dir, channelID, sessionID+".ack")
}

func (s *AckStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}
