// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/retrovue/playout/cmd/retrovue-core/app"
	"github.com/retrovue/playout/pkg/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg, err := app.LoadConfig(os.Args, cwd)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err.Error())
		return 1
	}

	if err := logging.InitSlog(cfg.LogLevel, cfg.LogFormat); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %s\n", err.Error())
		return 1
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("core setup failed", "err", err)
		return 1
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("core close failed", "err", err)
		}
	}()

	srv, err := app.SetupServer(cfg, core, logger)
	if err != nil {
		logger.Error("server setup failed", "err", err)
		return 1
	}

	root := app.BuildSupervisor(cfg, core, srv, logger)
	err = root.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("supervisor exited", "err", err)
		return 1
	}
	logger.Info("core stopped")
	return 0
}
