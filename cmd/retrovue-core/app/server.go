// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retrovue/playout/internal"
	"github.com/retrovue/playout/pkg/logging"
)

// Server is the operator-facing HTTP surface: the JSON API, the HLS
// preview endpoints, the TS ingest endpoint, metrics, and log control.
type Server struct {
	Router chi.Router
	Cfg    *ServerConfig

	core   *Core
	logger *slog.Logger
}

// SetupServer sets up router, middleware, and server over a built core.
func SetupServer(cfg *ServerConfig, core *Core, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(addVersionAndCORSHeaders)
	r.Use(NewPrometheusMiddleware())

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped. The ingest stream is mounted outside
	// the timeout group since it stays open for the life of a playout.
	srv := &Server{Router: r, Cfg: cfg, core: core, logger: logger}

	r.Group(func(r chi.Router) {
		if cfg.TimeoutS > 0 {
			r.Use(middleware.Timeout(time.Duration(cfg.TimeoutS) * time.Second))
		}

		r.Mount("/metrics", promhttp.Handler())
		r.Get("/healthz", srv.handleHealthz)
		for _, route := range logging.LogRoutes {
			r.Method(route.Method, route.Path, route.Handler)
		}

		r.Get("/channels/{channelID}/hls/index.m3u8", srv.handlePlaylist)
		r.Get("/channels/{channelID}/hls/{segment}", srv.handleSegment)

		r.Route("/api", createRouteAPI(srv))
	})
	r.Post("/channels/{channelID}/ingest", srv.handleIngest)

	logger.Info("core server ready",
		"version", internal.GetVersion(), "port", cfg.Port, "channels", len(core.ChannelIDs()))
	return srv, nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	for _, id := range s.core.ChannelIDs() {
		ch, _ := s.core.Channel(id)
		if !ch.Horizon.Status().NextBlockCompliant {
			http.Error(w, fmt.Sprintf("channel %s has no block covering now", id),
				http.StatusServiceUnavailable)
			return
		}
	}
	fmt.Fprintln(w, "ok")
}
