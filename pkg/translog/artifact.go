// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package translog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/retrovue/playout/pkg/clock"
)

// Row type labels that are not segment types.
const (
	RowBlock = "BLOCK"
	RowFence = "FENCE"
)

// ArtifactExistsError is returned when a write would touch an existing
// artifact. Transmission-log artifacts are immutable: no overwrite, ever.
type ArtifactExistsError struct {
	Path string
}

func (e *ArtifactExistsError) Error() string {
	return fmt.Sprintf("TL-ART-001: artifact already exists: %s", e.Path)
}

// ArtifactPaths names the two files written per locked log.
type ArtifactPaths struct {
	Tlog  string
	JSONL string
}

// Row is one artifact line: a BLOCK header, a segment, or a FENCE. The
// same row list renders both the .tlog and the .tlog.jsonl so the two
// files cannot drift apart.
type Row struct {
	EventID    string
	BlockID    string
	Start      time.Time
	DurationMS int64
	Type       string
	AssetURI   string
	note       string
}

// Rows flattens a log into artifact rows: per entry one BLOCK row, one row
// per segment, one FENCE row. Event ids follow the fixed scheme block_id,
// {block_id}-S{index:04d}, {block_id}-FENCE.
func Rows(lg Log) []Row {
	rows := make([]Row, 0, len(lg.Entries)*3)
	for _, e := range lg.Entries {
		rows = append(rows, Row{
			EventID:    e.BlockID,
			BlockID:    e.BlockID,
			Start:      e.Start,
			DurationMS: e.DurationMS(),
			Type:       RowBlock,
			note: fmt.Sprintf("%s UTC_START=%s UTC_END=%s",
				e.BlockID, e.Start.Format(TimeLayout), e.End.Format(TimeLayout)),
		})
		at := e.Start
		for _, s := range e.Segments {
			rows = append(rows, Row{
				EventID:    fmt.Sprintf("%s-S%04d", e.BlockID, s.Index),
				BlockID:    e.BlockID,
				Start:      at,
				DurationMS: s.DurationMS,
				Type:       s.Type.Label(),
				AssetURI:   s.AssetURI,
			})
			at = at.Add(time.Duration(s.DurationMS) * time.Millisecond)
		}
		rows = append(rows, Row{
			EventID: e.BlockID + "-FENCE",
			BlockID: e.BlockID,
			Start:   e.End,
			Type:    RowFence,
			note:    "UTC_END=" + e.End.Format(TimeLayout),
		})
	}
	return rows
}

// titleColumn renders the TITLE / ASSET column for a row: the asset's
// filename hard-truncated at 80 characters, "-" when there is no asset,
// or the row's note for BLOCK and FENCE rows.
func (r Row) titleColumn() string {
	if r.note != "" {
		return r.note
	}
	if r.AssetURI == "" {
		return "-"
	}
	name := filepath.Base(r.AssetURI)
	if len(name) > 80 {
		name = name[:80]
	}
	return name
}

// ArtifactWriter emits the immutable artifact pair under
// {BaseDir}/{channel_id}/{broadcast_date}.tlog and .tlog.jsonl.
type ArtifactWriter struct {
	BaseDir string
	Version string // software version stamped into the header
}

// Write encodes and atomically commits both artifact files for a locked
// log. generatedUTC is a parameter, not a clock read, so regeneration with
// the same inputs is byte-identical.
func (w ArtifactWriter) Write(lg Log, generatedUTC time.Time) (ArtifactPaths, error) {
	var paths ArtifactPaths
	if !lg.Locked {
		return paths, fmt.Errorf("refusing to write artifacts for unlocked log %s", lg.ID)
	}
	if err := clock.CheckUTC("generated_utc", generatedUTC); err != nil {
		return paths, err
	}
	if err := Validate(lg); err != nil {
		return paths, err
	}
	dir := filepath.Join(w.BaseDir, lg.ChannelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return paths, err
	}
	paths.Tlog = filepath.Join(dir, lg.BroadcastDate+".tlog")
	paths.JSONL = paths.Tlog + ".jsonl"
	for _, p := range []string{paths.Tlog, paths.JSONL} {
		if _, err := os.Stat(p); err == nil {
			return paths, &ArtifactExistsError{Path: p}
		}
	}
	text, err := EncodeTlog(lg, generatedUTC, w.Version)
	if err != nil {
		return paths, err
	}
	if err := writeAtomic(paths.JSONL, EncodeJSONL(lg)); err != nil {
		return paths, fmt.Errorf("write %s: %w", paths.JSONL, err)
	}
	if err := writeAtomic(paths.Tlog, text); err != nil {
		return paths, fmt.Errorf("write %s: %w", paths.Tlog, err)
	}
	syncDir(dir)
	return paths, nil
}

func writeAtomic(path string, data []byte) error {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer pf.Cleanup() //nolint:errcheck // best-effort removal of the temp file
	if _, err := pf.Write(data); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

// syncDir makes the renames themselves durable. Best effort: a filesystem
// that cannot fsync a directory still has both files intact.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

const (
	tlogHeaderRow = "TIME     DUR      TYPE     EVENT_ID                         TITLE / ASSET"
	tlogUnderline = "-------- -------- -------- -------------------------------- --------------------------------------------"
)

// EncodeTlog renders the fixed-width human artifact. The TIME column is
// channel-local wall time; the UTC instants ride in BLOCK and FENCE notes.
func EncodeTlog(lg Log, generatedUTC time.Time, version string) ([]byte, error) {
	loc, err := time.LoadLocation(lg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("transmission log %s: bad timezone %q: %w", lg.ID, lg.Timezone, err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# RetroVue transmission log\n")
	fmt.Fprintf(&buf, "# channel: %s\n", lg.ChannelID)
	fmt.Fprintf(&buf, "# date: %s\n", lg.BroadcastDate)
	fmt.Fprintf(&buf, "# broadcast_day_start: %02d:00\n", lg.DayStartHour)
	fmt.Fprintf(&buf, "# timezone: %s\n", lg.Timezone)
	fmt.Fprintf(&buf, "# generated_utc: %s\n", generatedUTC.Format(TimeLayout))
	fmt.Fprintf(&buf, "# transmission_log_id: %s\n", lg.ID)
	fmt.Fprintf(&buf, "# version: %s\n", version)
	buf.WriteString(tlogHeaderRow + "\n")
	buf.WriteString(tlogUnderline + "\n")
	for _, r := range Rows(lg) {
		fmt.Fprintf(&buf, "%-8s %-8s %-8s %-32s %s\n",
			r.Start.In(loc).Format("15:04:05"), FormatHMS(r.DurationMS), r.Type, r.EventID, r.titleColumn())
	}
	return buf.Bytes(), nil
}

// FormatHMS renders a millisecond duration as HH:MM:SS, the DUR column
// format shared by every fixed-width artifact.
func FormatHMS(ms int64) string {
	s := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// jsonlRow is the sidecar line format. Field order is the artifact byte
// format; do not reorder.
type jsonlRow struct {
	EventID             string `json:"event_id"`
	BlockID             string `json:"block_id"`
	ScheduledStartUTC   string `json:"scheduled_start_utc"`
	ScheduledDurationMS int64  `json:"scheduled_duration_ms"`
	Type                string `json:"type"`
	AssetURI            string `json:"asset_uri"`
}

// EncodeJSONL renders the machine sidecar: one JSON object per artifact
// row, same row set as the .tlog.
func EncodeJSONL(lg Log) []byte {
	var buf bytes.Buffer
	for _, r := range Rows(lg) {
		// Flat struct of strings and ints; Marshal cannot fail.
		b, _ := json.Marshal(jsonlRow{
			EventID:             r.EventID,
			BlockID:             r.BlockID,
			ScheduledStartUTC:   r.Start.Format(TimeLayout),
			ScheduledDurationMS: r.DurationMS,
			Type:                r.Type,
			AssetURI:            r.AssetURI,
		})
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ReadJSONL parses a .tlog.jsonl artifact back into rows.
func ReadJSONL(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []Row
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		var jr jsonlRow
		if err := json.Unmarshal(sc.Bytes(), &jr); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		start, err := time.Parse(TimeLayout, jr.ScheduledStartUTC)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		// Parse yields UTC only for a literal Z offset; an artifact edited
		// to carry a zone offset is rejected, not converted.
		if err := clock.CheckUTC("scheduled_start_utc", start); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		rows = append(rows, Row{
			EventID:    jr.EventID,
			BlockID:    jr.BlockID,
			Start:      start,
			DurationMS: jr.ScheduledDurationMS,
			Type:       jr.Type,
			AssetURI:   jr.AssetURI,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// Fixed column offsets of the .tlog body layout.
const (
	tlogTypeCol    = 18
	tlogEventIDCol = 27
	tlogTitleCol   = 60
)

// VerifyBijection checks that the .tlog and .tlog.jsonl carry the same
// event id set with identical TYPE assignments.
func VerifyBijection(tlogPath, jsonlPath string) error {
	jsonRows, err := ReadJSONL(jsonlPath)
	if err != nil {
		return err
	}
	jsonTypes := make(map[string]string, len(jsonRows))
	for _, r := range jsonRows {
		jsonTypes[r.EventID] = r.Type
	}

	f, err := os.Open(tlogPath)
	if err != nil {
		return err
	}
	defer f.Close()

	textTypes := make(map[string]string, len(jsonRows))
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "TIME ") || strings.HasPrefix(line, "---") {
			continue
		}
		if len(line) < tlogTitleCol {
			return fmt.Errorf("%s: malformed body row %q", tlogPath, line)
		}
		id := strings.TrimRight(line[tlogEventIDCol:tlogEventIDCol+32], " ")
		typ := strings.TrimRight(line[tlogTypeCol:tlogTypeCol+8], " ")
		textTypes[id] = typ
	}
	if err := sc.Err(); err != nil {
		return err
	}

	for id, typ := range textTypes {
		jt, ok := jsonTypes[id]
		if !ok {
			return fmt.Errorf("event %s present in .tlog but missing from .jsonl", id)
		}
		if jt != typ {
			return fmt.Errorf("event %s typed %s in .tlog but %s in .jsonl", id, typ, jt)
		}
	}
	for id := range jsonTypes {
		if _, ok := textTypes[id]; !ok {
			return fmt.Errorf("event %s present in .jsonl but missing from .tlog", id)
		}
	}
	return nil
}
