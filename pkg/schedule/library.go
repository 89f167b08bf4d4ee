// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// AssetMeta describes one playable asset as the library knows it.
// DurationMS is the actual media runtime; ChapterMarkersMS are ad-break
// insertion points offset from the start of the content.
type AssetMeta struct {
	AssetID          string            `json:"asset_id"`
	URI              string            `json:"uri"`
	Title            string            `json:"title"`
	DurationMS       int64             `json:"duration_ms"`
	ChapterMarkersMS []int64           `json:"chapter_markers_ms,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}

// PoolSelector picks a set of assets either by named pool or by tag match
// (all pairs must match).
type PoolSelector struct {
	Name  string            `json:"name,omitempty"`
	Match map[string]string `json:"match,omitempty"`
}

// Library resolves asset ids, program episode lists and pools for the
// compiler.
type Library interface {
	Asset(ctx context.Context, assetID string) (AssetMeta, error)
	ProgramEpisodes(ctx context.Context, programID string) ([]AssetMeta, error)
	ResolvePool(ctx context.Context, sel PoolSelector) ([]AssetMeta, error)
}

// StaticLibrary is an in-memory Library fed from sidecar files or test
// setup. Safe for concurrent use.
type StaticLibrary struct {
	mu       sync.RWMutex
	assets   map[string]AssetMeta
	programs map[string][]string
	pools    map[string][]string
}

// NewStaticLibrary returns an empty library.
func NewStaticLibrary() *StaticLibrary {
	return &StaticLibrary{
		assets:   make(map[string]AssetMeta),
		programs: make(map[string][]string),
		pools:    make(map[string][]string),
	}
}

// AddAsset registers or replaces an asset.
func (l *StaticLibrary) AddAsset(meta AssetMeta) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assets[meta.AssetID] = meta
}

// SetProgram sets the ordered episode list for a program.
func (l *StaticLibrary) SetProgram(programID string, assetIDs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[programID] = append([]string(nil), assetIDs...)
}

// SetPool sets the member list for a named pool.
func (l *StaticLibrary) SetPool(name string, assetIDs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pools[name] = append([]string(nil), assetIDs...)
}

func (l *StaticLibrary) Asset(_ context.Context, assetID string) (AssetMeta, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	meta, ok := l.assets[assetID]
	if !ok {
		return AssetMeta{}, fmt.Errorf("asset %q not in library", assetID)
	}
	return meta, nil
}

func (l *StaticLibrary) ProgramEpisodes(_ context.Context, programID string) ([]AssetMeta, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids, ok := l.programs[programID]
	if !ok {
		return nil, fmt.Errorf("program %q not in library", programID)
	}
	eps := make([]AssetMeta, 0, len(ids))
	for _, id := range ids {
		meta, ok := l.assets[id]
		if !ok {
			return nil, fmt.Errorf("program %q episode %q not in library", programID, id)
		}
		eps = append(eps, meta)
	}
	return eps, nil
}

func (l *StaticLibrary) ResolvePool(_ context.Context, sel PoolSelector) ([]AssetMeta, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if sel.Name != "" {
		ids, ok := l.pools[sel.Name]
		if !ok {
			return nil, fmt.Errorf("pool %q not in library", sel.Name)
		}
		members := make([]AssetMeta, 0, len(ids))
		for _, id := range ids {
			meta, ok := l.assets[id]
			if !ok {
				return nil, fmt.Errorf("pool %q member %q not in library", sel.Name, id)
			}
			members = append(members, meta)
		}
		return members, nil
	}
	var members []AssetMeta
	for _, meta := range l.assets {
		if matchesTags(meta.Tags, sel.Match) {
			members = append(members, meta)
		}
	}
	// Map iteration order is random; pool order must be stable across
	// recompiles.
	sort.Slice(members, func(i, j int) bool { return members[i].AssetID < members[j].AssetID })
	return members, nil
}

func matchesTags(tags, match map[string]string) bool {
	if len(match) == 0 {
		return false
	}
	for k, v := range match {
		if tags[k] != v {
			return false
		}
	}
	return true
}

type sidecar struct {
	AssetMeta
	ProgramID string   `json:"program_id,omitempty"`
	Episode   int      `json:"episode,omitempty"`
	Pools     []string `json:"pools,omitempty"`
}

// LoadDir walks dir for *.json sidecars and registers the assets they
// describe. A sidecar without duration_ms whose uri points at a local mp4 is
// probed for its mvhd duration. Program episode order follows the sidecars'
// episode numbers.
func (l *StaticLibrary) LoadDir(dir string) error {
	type episodeRef struct {
		assetID string
		episode int
	}
	programs := make(map[string][]episodeRef)
	pools := make(map[string][]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var sc sidecar
		if err := json.Unmarshal(data, &sc); err != nil {
			return fmt.Errorf("sidecar %s: %w", path, err)
		}
		if sc.AssetID == "" {
			return fmt.Errorf("sidecar %s: missing asset_id", path)
		}
		if sc.DurationMS == 0 && strings.HasSuffix(sc.URI, ".mp4") {
			mediaPath := sc.URI
			if !filepath.IsAbs(mediaPath) {
				mediaPath = filepath.Join(filepath.Dir(path), mediaPath)
			}
			durMS, err := ProbeDurationMS(mediaPath)
			if err != nil {
				return fmt.Errorf("sidecar %s: probe %s: %w", path, mediaPath, err)
			}
			sc.DurationMS = durMS
		}
		l.AddAsset(sc.AssetMeta)
		if sc.ProgramID != "" {
			programs[sc.ProgramID] = append(programs[sc.ProgramID], episodeRef{sc.AssetID, sc.Episode})
		}
		for _, p := range sc.Pools {
			pools[p] = append(pools[p], sc.AssetID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for programID, refs := range programs {
		sort.SliceStable(refs, func(i, j int) bool { return refs[i].episode < refs[j].episode })
		ids := make([]string, len(refs))
		for i, r := range refs {
			ids[i] = r.assetID
		}
		l.SetProgram(programID, ids...)
	}
	for name, ids := range pools {
		sort.Strings(ids)
		l.SetPool(name, ids...)
	}
	return nil
}
