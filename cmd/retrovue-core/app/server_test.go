// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrovue/playout/pkg/override"
)

func newTestServer(t *testing.T) (*Server, *Core, *httptest.Server) {
	t.Helper()
	cfg := testConfig(t)
	core, _ := newTestCore(t, cfg)
	ch, _ := core.Channel("wxrv")
	ch.Horizon.EvaluateOnce(context.Background())

	srv, err := SetupServer(cfg, core, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return srv, core, ts
}

func testFullRequest(t *testing.T, ts *httptest.Server, method, path string, body []byte) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

func TestHealthzReflectsCompliance(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, body := testFullRequest(t, ts, "GET", "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")
}

func TestAPIListChannels(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, body := testFullRequest(t, ts, "GET", "/api/channels", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Channels []channelSummary `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Channels, 1)
	assert.Equal(t, "wxrv", out.Channels[0].ID)
	assert.True(t, out.Channels[0].NextBlockCompliant)
	assert.Equal(t, time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC).UnixMilli(),
		out.Channels[0].WindowEndUTCMS)
}

func TestAPIHorizonStatus(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, body := testFullRequest(t, ts, "GET", "/api/channels/wxrv/horizon", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"epg_farthest_date":"2025-03-03"`)

	resp, _ = testFullRequest(t, ts, "GET", "/api/channels/nope/horizon", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIPublishOverrideRecordFirst(t *testing.T) {
	_, core, ts := newTestServer(t)

	// Replace the 17:00 slot, which sits outside the 15-minute locked
	// window but would still be refused without operator authority if it
	// were inside it.
	start := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	reqBody := map[string]any{
		"range_start_utc_ms": start.UnixMilli(),
		"range_end_utc_ms":   start.Add(30 * time.Minute).UnixMilli(),
		"reason_code":        "BREAKING_NEWS",
		"entries": []map[string]any{{
			"block_id":             "blk-news",
			"block_index":          22,
			"start_utc":            start.Format(time.RFC3339),
			"end_utc":              start.Add(30 * time.Minute).Format(time.RFC3339),
			"channel_id":           "wxrv",
			"programming_day_date": "2025-03-01",
			"segments": []map[string]any{{
				"segment_index":         0,
				"segment_type":          "content",
				"asset_uri":             "file:///news/special.mp4",
				"asset_start_offset_ms": 0,
				"segment_duration_ms":   1_800_000,
			}},
		}},
	}
	data, err := json.Marshal(reqBody)
	require.NoError(t, err)

	resp, body := testFullRequest(t, ts, "POST", "/api/channels/wxrv/publish", data)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var out struct {
		Generation int64 `json:"generation"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, int64(2), out.Generation)

	// The replacement is live in the window.
	ch, _ := core.Channel("wxrv")
	e, ok := ch.Window.EntryAt(start.UnixMilli(), false)
	require.True(t, ok)
	assert.Equal(t, "blk-news", e.BlockID)

	// And the audit record landed before it.
	resp, body = testFullRequest(t, ts, "GET", "/api/overrides?layer=ExecutionWindowStore", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs struct {
		Records []override.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(body, &recs))
	require.Len(t, recs.Records, 1)
	assert.Equal(t, "BREAKING_NEWS", recs.Records[0].ReasonCode)
	assert.Equal(t, override.LayerExecutionWindowStore, recs.Records[0].Layer)
}

func TestAPIEntriesSnapshot(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, body := testFullRequest(t, ts, "GET", "/api/channels/wxrv/entries?from_utc_ms=0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Entries    []json.RawMessage `json:"entries"`
		Generation int64             `json:"generation"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Len(t, out.Entries, 24)
	assert.Equal(t, int64(1), out.Generation)
}

func TestHLSEndpointsBeforeFeed(t *testing.T) {
	_, core, ts := newTestServer(t)
	ch, _ := core.Channel("wxrv")
	// Stop unblocks the playlist wait; nothing was ever fed.
	ch.Segmenter.Stop()

	resp, _ := testFullRequest(t, ts, "GET", "/channels/wxrv/hls/index.m3u8", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = testFullRequest(t, ts, "GET", "/channels/wxrv/hls/seg_00000.ts", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = testFullRequest(t, ts, "POST", "/channels/nope/ingest", []byte{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = testFullRequest(t, ts, "POST", "/channels/wxrv/ingest", []byte{0x47})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "stopped segmenter refuses ingest")
}

func TestAPIVersion(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, body := testFullRequest(t, ts, "GET", "/api/version", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "v0.4.0")
}
