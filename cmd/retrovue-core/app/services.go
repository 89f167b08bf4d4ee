// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"google.golang.org/grpc"

	"github.com/retrovue/playout/pkg/clock"
	"github.com/retrovue/playout/pkg/evidence/airpb"
	"github.com/retrovue/playout/pkg/store"
)

// BuildSupervisor assembles the process tree: one horizon loop per
// channel, the evidence gRPC listener, the retention purger, and the
// HTTP server. Any service that dies is restarted with suture's default
// backoff; the loops themselves are written to absorb their own planning
// failures, so a restart here means a real crash.
func BuildSupervisor(cfg *ServerConfig, core *Core, srv *Server, logger *slog.Logger) *suture.Supervisor {
	handler := &sutureslog.Handler{Logger: logger}
	root := suture.New("retrovue-core", suture.Spec{
		EventHook: handler.MustHook(),
	})

	for _, id := range core.ChannelIDs() {
		ch, _ := core.Channel(id)
		root.Add(ch.Horizon)
	}

	gs := grpc.NewServer()
	airpb.RegisterEvidenceServiceServer(gs, core.Evidence)
	root.Add(&grpcService{
		addr:   fmt.Sprintf(":%d", cfg.EvidencePort),
		server: gs,
		logger: logger,
	})

	root.Add(&retentionService{
		retention: core.Retention,
		clk:       core.Clock,
		interval:  time.Duration(cfg.PurgeIntervalMin) * time.Minute,
		logger:    logger,
	})

	root.Add(&httpService{
		srv:    &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: srv.Router},
		logger: logger,
	})

	return root
}

// httpService runs the operator HTTP server under the supervisor.
type httpService struct {
	srv    *http.Server
	logger *slog.Logger
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http shutdown failed", "err", err)
		}
		return ctx.Err()
	}
}

func (s *httpService) String() string { return "http-server" }

// grpcService runs the evidence listener under the supervisor.
type grpcService struct {
	addr   string
	server *grpc.Server
	logger *slog.Logger
}

func (s *grpcService) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("evidence listen %s: %w", s.addr, err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(lis)
	}()
	s.logger.Info("evidence stream listening", "addr", s.addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.server.GracefulStop()
		return ctx.Err()
	}
}

func (s *grpcService) String() string { return "evidence-grpc" }

// retentionService fires both purge tiers on a fixed cadence. The tiers
// throttle themselves, so a short cadence here costs nothing.
type retentionService struct {
	retention *store.Retention
	clk       clock.Clock
	interval  time.Duration
	logger    *slog.Logger
}

func (s *retentionService) Serve(ctx context.Context) error {
	interval := s.interval
	if interval <= 0 {
		interval = time.Hour
	}
	for {
		planning, err := s.retention.PurgePlanning(ctx)
		if err != nil {
			s.logger.Warn("planning purge failed", "err", err)
		}
		transmission, err := s.retention.PurgeTransmission(ctx)
		if err != nil {
			s.logger.Warn("transmission purge failed", "err", err)
		}
		if planning > 0 || transmission > 0 {
			s.logger.Info("retention purge",
				"planning_rows", planning, "transmission_rows", transmission)
		}
		t := s.clk.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C():
		}
	}
}

func (s *retentionService) String() string { return "retention-purger" }
