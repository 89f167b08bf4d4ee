// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package override is the append-only audit trail for operator-forced
// replacements. Every forced mutation of scheduling or execution state
// persists a Record here before the artifact changes; if the record cannot
// be made durable the mutation must not happen.
package override

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Layer identifies which store an override replaced.
type Layer string

const (
	LayerScheduleDay          Layer = "ScheduleDay"
	LayerExecutionWindowStore Layer = "ExecutionWindowStore"
)

// CodePersistFailed is surfaced by callers when the record write fails and
// the guarded mutation is aborted.
const CodePersistFailed = "OVERRIDE_RECORD_PERSIST_FAILED"

// Record is one audit row. CreatedUTCMS must be at or before the commit
// time of the artifact it authorizes.
type Record struct {
	Layer        Layer  `json:"layer"`
	TargetID     string `json:"target_id"`
	ReasonCode   string `json:"reason_code"`
	CreatedUTCMS int64  `json:"created_utc_ms"`
	Summary      string `json:"summary,omitempty"`
}

// PersistError wraps any failure to durably append a record.
type PersistError struct {
	err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: %v", CodePersistFailed, e.err)
}

func (e *PersistError) Unwrap() error { return e.err }

// Store is the append-only record store. List returns records for one
// layer, oldest first; the zero Layer returns everything.
type Store interface {
	Persist(ctx context.Context, rec Record) error
	List(ctx context.Context, layer Layer) ([]Record, error)
}

// Memory is the in-process Store used by tests and by cores running
// without a durable override directory. The failure switch makes
// record-first abort paths testable.
type Memory struct {
	mu      sync.Mutex
	records []Record
	failing bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{} }

// FailPersists makes every subsequent Persist fail until reset.
func (m *Memory) FailPersists(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = fail
}

func (m *Memory) Persist(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return &PersistError{err: errors.New("persist failure switch enabled")}
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) List(_ context.Context, layer Layer) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if layer == "" || r.Layer == layer {
			out = append(out, r)
		}
	}
	return out, nil
}
