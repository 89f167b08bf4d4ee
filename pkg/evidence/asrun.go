// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package evidence

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/retrovue/playout/pkg/schedule"
	"github.com/retrovue/playout/pkg/translog"
)

// As-run row statuses. START opens a block, AIRED closes a segment that
// played to its end, TRUNCATED closes a segment the fence cut short, and
// FENCE closes the block itself.
const (
	StatusStart     = "START"
	StatusAired     = "AIRED"
	StatusTruncated = "TRUNCATED"
	StatusFence     = "FENCE"
)

// AsRunRow is one line of a day's as-run log. EventUUID is the uuid of the
// evidence event that caused the row; it is the replay-dedup key, so every
// row must carry one and no uuid appears twice within a day.
type AsRunRow struct {
	ActualUTC  time.Time
	DurationMS int64
	Status     string
	Type       string
	EventID    string
	Notes      string
	EventUUID  string
	BlockID    string
}

// asrunJSONLRow is the sidecar line format. Field order is the artifact
// byte format; do not reorder.
type asrunJSONLRow struct {
	EventID    string `json:"event_id"`
	BlockID    string `json:"block_id"`
	ActualUTC  string `json:"actual_utc"`
	DurationMS int64  `json:"duration_ms"`
	Status     string `json:"status"`
	Type       string `json:"type"`
	Notes      string `json:"notes"`
	EventUUID  string `json:"event_uuid"`
}

// AsRunWriter maintains the per-channel, per-day as-run pair under
// {dir}/{channel_id}/{date}.asrun and .asrun.jsonl. The JSONL sidecar is
// the machine record and the reload source after a restart; the
// fixed-width file is regenerated from the same rows on every append so
// the two cannot drift apart. Both files are replaced whole through
// temp-file + fsync + rename, never appended in place.
type AsRunWriter struct {
	dir          string
	timezone     string
	loc          *time.Location
	dayStartHour int

	mu   sync.Mutex
	days map[string]*asrunDay
}

type asrunDay struct {
	rows []AsRunRow
	seen map[string]bool
}

// NewAsRunWriter roots the writer at dir. The timezone and day-start hour
// drive broadcast-date routing and the local-time ACTUAL column.
func NewAsRunWriter(dir, timezone string, dayStartHour int) (*AsRunWriter, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("as-run writer: bad timezone %q: %w", timezone, err)
	}
	return &AsRunWriter{
		dir:          dir,
		timezone:     timezone,
		loc:          loc,
		dayStartHour: dayStartHour,
		days:         make(map[string]*asrunDay),
	}, nil
}

// BroadcastDate maps an instant onto the broadcast date whose log it
// belongs to, using the writer's zone and day-start hour.
func (w *AsRunWriter) BroadcastDate(at time.Time) string {
	return schedule.BroadcastDate(at, w.loc, w.dayStartHour)
}

// Seen reports whether an event uuid already has rows on the given day.
func (w *AsRunWriter) Seen(channelID, date, eventUUID string) (bool, error) {
	if err := checkPathIDs(channelID, date); err != nil {
		return false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	day, err := w.dayLocked(channelID, date)
	if err != nil {
		return false, err
	}
	return day.seen[eventUUID], nil
}

// Rows returns a copy of the day's rows in append order.
func (w *AsRunWriter) Rows(channelID, date string) ([]AsRunRow, error) {
	if err := checkPathIDs(channelID, date); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	day, err := w.dayLocked(channelID, date)
	if err != nil {
		return nil, err
	}
	return append([]AsRunRow(nil), day.rows...), nil
}

// Append adds rows to the day and commits both files before returning.
// Rows whose event uuid is already on disk are dropped, so replaying an
// evidence batch after a crash is a no-op. Returns the number of rows
// actually written; zero means nothing touched the disk.
func (w *AsRunWriter) Append(channelID, date string, rows []AsRunRow) (int, error) {
	if err := checkPathIDs(channelID, date); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	day, err := w.dayLocked(channelID, date)
	if err != nil {
		return 0, err
	}

	fresh := make([]AsRunRow, 0, len(rows))
	batch := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.EventUUID == "" {
			return 0, fmt.Errorf("as-run row %s has no event uuid", r.EventID)
		}
		if day.seen[r.EventUUID] || batch[r.EventUUID] {
			continue
		}
		batch[r.EventUUID] = true
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	next := make([]AsRunRow, 0, len(day.rows)+len(fresh))
	next = append(next, day.rows...)
	next = append(next, fresh...)
	if err := w.writeDayLocked(channelID, date, next); err != nil {
		return 0, err
	}
	day.rows = next
	for _, r := range fresh {
		day.seen[r.EventUUID] = true
	}
	return len(fresh), nil
}

// dayLocked returns the in-memory day, loading it from the JSONL sidecar
// on first touch. Callers hold w.mu.
func (w *AsRunWriter) dayLocked(channelID, date string) (*asrunDay, error) {
	key := channelID + "/" + date
	if day, ok := w.days[key]; ok {
		return day, nil
	}
	rows, err := readAsRunJSONL(w.jsonlPath(channelID, date))
	if err != nil {
		return nil, err
	}
	day := &asrunDay{rows: rows, seen: make(map[string]bool, len(rows))}
	for _, r := range rows {
		day.seen[r.EventUUID] = true
	}
	w.days[key] = day
	return day, nil
}

func (w *AsRunWriter) writeDayLocked(channelID, date string, rows []AsRunRow) error {
	dir := filepath.Join(w.dir, channelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	jsonlPath := w.jsonlPath(channelID, date)
	textPath := filepath.Join(dir, date+".asrun")
	if err := writeAtomic(jsonlPath, encodeAsRunJSONL(rows)); err != nil {
		return fmt.Errorf("write %s: %w", jsonlPath, err)
	}
	if err := writeAtomic(textPath, w.encodeAsRun(channelID, date, rows)); err != nil {
		return fmt.Errorf("write %s: %w", textPath, err)
	}
	syncDir(dir)
	return nil
}

func (w *AsRunWriter) jsonlPath(channelID, date string) string {
	return filepath.Join(w.dir, channelID, date+".asrun.jsonl")
}

const (
	asrunHeaderRow = "ACTUAL   DUR      STATUS     TYPE     EVENT_ID                         NOTES"
	asrunUnderline = "-------- -------- ---------- -------- -------------------------------- --------------------------------------------"
)

// encodeAsRun renders the fixed-width human file. The ACTUAL column is
// channel-local wall time; the header carries no timestamps so a rewrite
// with the same rows is byte-identical.
func (w *AsRunWriter) encodeAsRun(channelID, date string, rows []AsRunRow) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# RetroVue as-run log\n")
	fmt.Fprintf(&buf, "# channel: %s\n", channelID)
	fmt.Fprintf(&buf, "# date: %s\n", date)
	fmt.Fprintf(&buf, "# broadcast_day_start: %02d:00\n", w.dayStartHour)
	fmt.Fprintf(&buf, "# timezone: %s\n", w.timezone)
	buf.WriteString(asrunHeaderRow + "\n")
	buf.WriteString(asrunUnderline + "\n")
	for _, r := range rows {
		notes := r.Notes
		if notes == "" {
			notes = "-"
		}
		fmt.Fprintf(&buf, "%-8s %-8s %-10s %-8s %-32s %s\n",
			r.ActualUTC.In(w.loc).Format("15:04:05"), translog.FormatHMS(r.DurationMS),
			r.Status, r.Type, r.EventID, notes)
	}
	return buf.Bytes()
}

func encodeAsRunJSONL(rows []AsRunRow) []byte {
	var buf bytes.Buffer
	for _, r := range rows {
		// Flat struct of strings and ints; Marshal cannot fail.
		b, _ := json.Marshal(asrunJSONLRow{
			EventID:    r.EventID,
			BlockID:    r.BlockID,
			ActualUTC:  r.ActualUTC.UTC().Format(translog.TimeLayout),
			DurationMS: r.DurationMS,
			Status:     r.Status,
			Type:       r.Type,
			Notes:      r.Notes,
			EventUUID:  r.EventUUID,
		})
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// readAsRunJSONL loads a day back from its sidecar. A missing file is an
// empty day, not an error.
func readAsRunJSONL(path string) ([]AsRunRow, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []AsRunRow
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		var jr asrunJSONLRow
		if err := json.Unmarshal(sc.Bytes(), &jr); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		at, err := time.Parse(translog.TimeLayout, jr.ActualUTC)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad actual_utc: %w", path, lineNo, err)
		}
		rows = append(rows, AsRunRow{
			ActualUTC:  at,
			DurationMS: jr.DurationMS,
			Status:     jr.Status,
			Type:       jr.Type,
			EventID:    jr.EventID,
			Notes:      jr.Notes,
			EventUUID:  jr.EventUUID,
			BlockID:    jr.BlockID,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// checkPathIDs rejects identifiers that could escape the store root when
// used as path components. Channel and session ids arrive off the wire.
func checkPathIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
			return fmt.Errorf("unsafe path id %q", id)
		}
	}
	return nil
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
