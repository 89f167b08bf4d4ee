// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/retrovue/playout/pkg/hls"
)

const ingestChunkSize = 32 * 1024

// handleIngest consumes a TS stream from AIR and feeds the channel's
// segmenter. AIR keeps one long-lived POST open per attached stream; the
// handler returns when the body ends or the segmenter stops.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.core.Channel(chi.URLParam(r, "channelID"))
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	if err := ch.Segmenter.Start(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	buf := make([]byte, ingestChunkSize)
	for {
		n, err := r.Body.Read(buf)
		if n > 0 {
			if ferr := ch.Segmenter.Feed(buf[:n]); ferr != nil {
				if errors.Is(ferr, hls.ErrStopped) {
					http.Error(w, ferr.Error(), http.StatusConflict)
					return
				}
				http.Error(w, ferr.Error(), http.StatusInternalServerError)
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			// Client went away; the segments already cut stay served.
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePlaylist serves the channel's live media playlist. A playout that
// has started but not yet cut a segment holds the request briefly rather
// than bouncing the player.
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.core.Channel(chi.URLParam(r, "channelID"))
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	if !ch.Segmenter.WaitForPlaylist(2 * time.Second) {
		http.Error(w, "playlist not ready", http.StatusNotFound)
		return
	}
	pl, ok := ch.Segmenter.Playlist()
	if !ok {
		http.Error(w, "playlist not ready", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(pl))
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.core.Channel(chi.URLParam(r, "channelID"))
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	name := chi.URLParam(r, "segment")
	data, ok := ch.Segmenter.SegmentData(name)
	if !ok {
		http.Error(w, "segment gone", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "max-age=60")
	_, _ = w.Write(data)
}
